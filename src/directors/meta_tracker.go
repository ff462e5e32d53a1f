package directors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sevr/src/engine"
	"sevr/src/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const (
	// MetaCollectionName is the reserved collection holding the ledger document.
	MetaCollectionName = "sevr_meta"

	ledgerID = 0
)

// MetaTracker maintains the ledger that records whether the database and each
// collection have ever been written to.
type MetaTracker struct {
	registry *CollectionRegistry
	store    engine.DocumentStore
	logger   *zap.SugaredLogger

	mu     sync.RWMutex
	ledger models.Ledger

	pending sync.WaitGroup
}

func NewMetaTracker(registry *CollectionRegistry, store engine.DocumentStore, logger *zap.SugaredLogger) *MetaTracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MetaTracker{
		registry: registry,
		store:    store,
		logger:   logger,
		ledger:   models.Ledger{ID: ledgerID, Collections: map[string]models.CollectionState{}},
	}
}

// Bootstrap reads or creates the ledger, caches it, and attaches a post-save
// hook to every collection still marked new. It must run once per process.
func (t *MetaTracker) Bootstrap(ctx context.Context) (models.Ledger, error) {
	var existing models.Ledger
	err := t.store.FindByID(ctx, MetaCollectionName, ledgerID, &existing)
	if err != nil && !errors.Is(err, engine.ErrDocumentNotFound) {
		return models.Ledger{}, fmt.Errorf("failed to check meta ledger: %w", err)
	}

	var update bson.M
	if errors.Is(err, engine.ErrDocumentNotFound) {
		collections := bson.M{}
		for _, name := range t.registry.Names() {
			collections[name] = bson.M{"new": true}
		}
		update = bson.M{"newDatabase": true, "collections": collections}
		t.logger.Infof("No meta ledger found, marking database and %d collections as new", len(collections))
	} else {
		update = bson.M{"newDatabase": false}
		t.logger.Info("Meta ledger found, marking database as existing")
	}

	if err := t.store.UpsertFields(ctx, MetaCollectionName, ledgerID, update); err != nil {
		return models.Ledger{}, fmt.Errorf("failed to write meta ledger: %w", err)
	}

	ledger, err := t.readLedger(ctx)
	if err != nil {
		return models.Ledger{}, err
	}

	t.mu.Lock()
	t.ledger = ledger
	t.mu.Unlock()

	t.attachHooks(ledger)
	return ledger.Clone(), nil
}

func (t *MetaTracker) attachHooks(ledger models.Ledger) {
	for name, coll := range t.registry.Collections() {
		state, tracked := ledger.Collections[name]
		if !tracked || !state.New {
			continue
		}
		if err := coll.AttachHook(engine.PhasePost, engine.EventSave, t.newCollectionHook(name)); err != nil {
			t.logger.Errorf("Failed to attach meta hook to '%s': %v", name, err)
		}
	}
}

// newCollectionHook flips the collection out of "new" in the background. The
// write that fired it never waits for or sees the ledger update.
func (t *MetaTracker) newCollectionHook(name string) engine.HookFunc {
	return func(ctx context.Context, doc models.Document) error {
		if !t.IsNewCollection(name) {
			return nil
		}

		t.pending.Add(1)
		go func() {
			defer t.pending.Done()
			if err := t.markCollectionUsed(context.WithoutCancel(ctx), name); err != nil {
				t.logger.Warnf("Failed to update meta ledger for '%s', will retry on next save: %v", name, err)
			}
		}()
		return nil
	}
}

func (t *MetaTracker) markCollectionUsed(ctx context.Context, name string) error {
	path := "collections." + name + ".new"
	if err := t.store.UpsertFields(ctx, MetaCollectionName, ledgerID, bson.M{path: false}); err != nil {
		return err
	}

	ledger, err := t.readLedger(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.ledger = mergeLedger(t.ledger, ledger)
	t.mu.Unlock()

	t.logger.Debugf("Collection '%s' is no longer new", name)
	return nil
}

func (t *MetaTracker) readLedger(ctx context.Context) (models.Ledger, error) {
	var ledger models.Ledger
	if err := t.store.FindByID(ctx, MetaCollectionName, ledgerID, &ledger); err != nil {
		return models.Ledger{}, fmt.Errorf("failed to read meta ledger: %w", err)
	}
	if ledger.Collections == nil {
		ledger.Collections = map[string]models.CollectionState{}
	}
	return ledger, nil
}

// mergeLedger folds a freshly read ledger into the cached one. A collection
// that is not new in either stays not new, so read-backs arriving out of
// order never resurrect the flag.
func mergeLedger(cached, read models.Ledger) models.Ledger {
	merged := read.Clone()
	for name, state := range cached.Collections {
		if current, ok := merged.Collections[name]; ok && !state.New {
			current.New = false
			merged.Collections[name] = current
		}
	}
	return merged
}

// Ledger returns a copy of the cached ledger.
func (t *MetaTracker) Ledger() models.Ledger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledger.Clone()
}

// IsNewDatabase reports whether the ledger was created by this process.
func (t *MetaTracker) IsNewDatabase() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledger.NewDatabase
}

// IsNewCollection reports whether name has never been written to.
func (t *MetaTracker) IsNewCollection(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledger.Collections[name].New
}

// Wait blocks until every in-flight ledger update has finished.
func (t *MetaTracker) Wait() {
	t.pending.Wait()
}
