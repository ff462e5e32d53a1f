package directors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sevr/src/engine"

	"go.mongodb.org/mongo-driver/bson"
)

// NamespaceCollectionName is the reserved collection holding plugin namespaces.
const NamespaceCollectionName = "sevr_meta_ns"

var (
	ErrInvalidNamespaceKey = errors.New("namespace keys must be non-empty and must not contain '.' or '$'")
	ErrNamespaceKeyMissing = errors.New("namespace key not set")
)

// Namespace is a small persisted key/value space handed to a plugin so it can
// keep its own metadata without defining a collection.
type Namespace struct {
	name  string
	store engine.DocumentStore
}

func NewNamespace(name string, store engine.DocumentStore) *Namespace {
	return &Namespace{name: name, store: store}
}

func (n *Namespace) Name() string {
	return n.name
}

// Set stores value under key.
func (n *Namespace) Set(ctx context.Context, key string, value interface{}) error {
	if err := validateNamespaceKey(key); err != nil {
		return err
	}
	if err := n.store.UpsertFields(ctx, NamespaceCollectionName, n.name, bson.M{"values." + key: value}); err != nil {
		return fmt.Errorf("namespace '%s': %w", n.name, err)
	}
	return nil
}

// Get decodes the value stored under key into out.
func (n *Namespace) Get(ctx context.Context, key string, out interface{}) error {
	if err := validateNamespaceKey(key); err != nil {
		return err
	}

	var doc struct {
		Values map[string]bson.RawValue `bson:"values"`
	}
	err := n.store.FindByID(ctx, NamespaceCollectionName, n.name, &doc)
	if errors.Is(err, engine.ErrDocumentNotFound) {
		return fmt.Errorf("namespace '%s' key '%s': %w", n.name, key, ErrNamespaceKeyMissing)
	}
	if err != nil {
		return fmt.Errorf("namespace '%s': %w", n.name, err)
	}

	raw, exists := doc.Values[key]
	if !exists {
		return fmt.Errorf("namespace '%s' key '%s': %w", n.name, key, ErrNamespaceKeyMissing)
	}
	if err := raw.Unmarshal(out); err != nil {
		return fmt.Errorf("namespace '%s' key '%s': %w", n.name, key, err)
	}
	return nil
}

func validateNamespaceKey(key string) error {
	if key == "" || strings.ContainsAny(key, ".$") {
		return ErrInvalidNamespaceKey
	}
	return nil
}
