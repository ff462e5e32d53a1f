package datastore

import (
	"context"
	"fmt"
	"sync"

	"sevr/src/engine"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryStore keeps collections in process memory. It backs the memory
// backend and the test suites.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]bson.M
}

var _ engine.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]bson.M),
	}
}

func (m *MemoryStore) UpsertFields(ctx context.Context, collection string, id interface{}, set bson.M) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs, exists := m.collections[collection]
	if !exists {
		docs = make(map[string]bson.M)
		m.collections[collection] = docs
	}

	// Stored documents are replaced, never mutated, so readers decoding a
	// document outside the lock always see a complete version of it.
	key := idKey(id)
	doc := bson.M{"_id": id}
	if stored, exists := docs[key]; exists {
		var err error
		if doc, err = cloneDocument(stored); err != nil {
			return fmt.Errorf("upsert into '%s': %w", collection, err)
		}
	}
	if err := applySet(doc, set); err != nil {
		return fmt.Errorf("upsert into '%s': %w", collection, err)
	}

	// Detach the caller's values from the stored copy
	updated, err := cloneDocument(doc)
	if err != nil {
		return fmt.Errorf("upsert into '%s': %w", collection, err)
	}
	docs[key] = updated
	return nil
}

func (m *MemoryStore) FindByID(ctx context.Context, collection string, id interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	doc, exists := m.collections[collection][idKey(id)]
	m.mu.RUnlock()

	if !exists {
		return engine.ErrDocumentNotFound
	}
	return decodeInto(doc, out)
}

// Count returns the number of documents held in collection.
func (m *MemoryStore) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
