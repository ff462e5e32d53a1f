package engine

import (
	"context"
	"fmt"
	"sync"

	"sevr/src/helpers"
	"sevr/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Collection is the runtime handle for one schema-backed collection.
type Collection struct {
	name       string
	definition *models.Definition
	store      DocumentStore
	logger     *zap.SugaredLogger

	mu    sync.RWMutex
	hooks hookSet
}

// NewCollection creates a handle for def. The store is shared by reference with
// every other handle built by the same registry.
func NewCollection(name string, def *models.Definition, store DocumentStore, logger *zap.SugaredLogger) *Collection {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Collection{
		name:       name,
		definition: def,
		store:      store,
		logger:     logger,
		hooks:      make(hookSet),
	}
}

func (c *Collection) Name() string {
	return c.name
}

// Definition returns a copy of the collection's definition.
func (c *Collection) Definition() *models.Definition {
	return c.definition.Clone()
}

// Singular returns the model name of the collection.
func (c *Collection) Singular() string {
	return c.definition.Singular
}

// Store returns the shared backing store.
func (c *Collection) Store() DocumentStore {
	return c.store
}

// AttachHook registers fn to run at the given phase of event.
func (c *Collection) AttachHook(phase Phase, event string, fn HookFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.hooks.add(phase, event, fn); err != nil {
		return fmt.Errorf("collection '%s': %w", c.name, err)
	}
	return nil
}

// HookCount returns the number of hooks attached for (phase, event).
func (c *Collection) HookCount(phase Phase, event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks.count(phase, event)
}

// Save writes doc to the collection, running pre-save hooks before the write
// and post-save hooks after it succeeds. A document without an _id gets a
// generated one, written into doc itself so the caller sees the assigned id.
func (c *Collection) Save(ctx context.Context, doc models.Document) (models.Document, error) {
	if doc == nil {
		doc = models.Document{}
	}

	c.mu.RLock()
	hooks := make(hookSet, len(c.hooks))
	for key, fns := range c.hooks {
		hooks[key] = append([]HookFunc(nil), fns...)
	}
	c.mu.RUnlock()

	if err := hooks.run(ctx, PhasePre, EventSave, doc); err != nil {
		return nil, fmt.Errorf("save to '%s' aborted: %w", c.name, err)
	}

	id, ok := doc["_id"]
	if !ok || id == nil {
		id = helpers.GenerateUUID()
		doc["_id"] = id
	}

	set := make(bson.M, len(doc))
	for key, value := range doc {
		if key == "_id" {
			continue
		}
		set[key] = value
	}

	if err := c.store.UpsertFields(ctx, c.name, id, set); err != nil {
		return nil, fmt.Errorf("failed to save document to '%s': %w", c.name, err)
	}
	c.logger.Debugw("saved document", "collection", c.name, "id", id)

	if err := hooks.run(ctx, PhasePost, EventSave, doc); err != nil {
		return doc, fmt.Errorf("document saved to '%s' but %w", c.name, err)
	}
	return doc, nil
}

// FindByID loads the document with the given id.
func (c *Collection) FindByID(ctx context.Context, id interface{}) (models.Document, error) {
	var doc models.Document
	if err := c.store.FindByID(ctx, c.name, id, &doc); err != nil {
		return nil, fmt.Errorf("failed to load document from '%s': %w", c.name, err)
	}
	return doc, nil
}
