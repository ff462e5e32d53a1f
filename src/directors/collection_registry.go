package directors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sevr/src/engine"
	"sevr/src/models"

	"go.uber.org/zap"
)

var ErrInvalidCollectionName = errors.New("name must be non-empty and must not contain '.' or '$'")

// ConfigError aborts a registry build when a definition is unusable.
type ConfigError struct {
	Collection string
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("`%s` collection %s", e.Collection, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CollectionRegistry builds and memoizes one collection handle per definition.
type CollectionRegistry struct {
	definitions map[string]*models.Definition
	instances   map[string]*engine.Collection
	store       engine.DocumentStore
	logger      *zap.SugaredLogger
	mu          sync.RWMutex
}

// Private instance and mutex guarding the process-wide registry
var (
	registryInstance *CollectionRegistry
	registryMu       sync.Mutex
)

// InitCollectionRegistry builds the process-wide registry. When one already
// exists it is returned as is and defs, store and logger are ignored.
func InitCollectionRegistry(defs map[string]*models.Definition, store engine.DocumentStore, logger *zap.SugaredLogger) (*CollectionRegistry, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registryInstance != nil {
		registryInstance.logger.Warnf("CollectionRegistry already initialized, ignoring %d new definitions", len(defs))
		return registryInstance, nil
	}

	registry, err := NewCollectionRegistry(defs, store, logger)
	if err != nil {
		return nil, err
	}
	registryInstance = registry
	return registry, nil
}

// GetCollectionRegistry returns the process-wide registry, or nil before InitCollectionRegistry succeeds.
func GetCollectionRegistry() *CollectionRegistry {
	registryMu.Lock()
	defer registryMu.Unlock()
	return registryInstance
}

// NewCollectionRegistry builds a standalone registry. Every definition gets a
// handle and every reference field is checked against the full set of model
// names; the first invalid field fails the whole build.
func NewCollectionRegistry(defs map[string]*models.Definition, store engine.DocumentStore, logger *zap.SugaredLogger) (*CollectionRegistry, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := &CollectionRegistry{
		definitions: make(map[string]*models.Definition, len(defs)),
		instances:   make(map[string]*engine.Collection, len(defs)),
		store:       store,
		logger:      logger,
	}

	for key, def := range defs {
		if def == nil {
			return nil, &ConfigError{Collection: key, Err: errors.New("has no definition")}
		}
		// Names are path segments of the meta ledger
		if key == "" || strings.ContainsAny(key, ".$") {
			return nil, &ConfigError{Collection: key, Err: ErrInvalidCollectionName}
		}
		clone := def.Clone()
		clone.Name = key
		r.definitions[key] = clone
	}

	names := r.Names()
	for _, key := range names {
		r.getInstanceLocked(key)
	}

	// The model set is complete before any field is checked so forward and
	// self references resolve regardless of order.
	modelNames := engine.NewModelSet()
	for _, key := range names {
		modelNames.Add(r.definitions[key].Singular)
	}

	for _, key := range names {
		def := r.definitions[key]
		var errs []error
		for _, field := range sortedKeys(def.Fields) {
			if !engine.IsValidFieldRef(def.Fields[field], field, modelNames, &errs) && len(errs) > 0 {
				logger.Errorf("Collection '%s' failed validation: %v", key, errs[0])
				return nil, &ConfigError{Collection: key, Err: errs[0]}
			}
		}
	}

	logger.Infof("CollectionRegistry initialized with %d collections", len(r.instances))
	return r, nil
}

// GetInstance returns the handle for name, building and caching it on first use.
func (r *CollectionRegistry) GetInstance(name string) (*engine.Collection, bool) {
	r.mu.RLock()
	coll, exists := r.instances[name]
	r.mu.RUnlock()
	if exists {
		return coll, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	coll = r.getInstanceLocked(name)
	return coll, coll != nil
}

func (r *CollectionRegistry) getInstanceLocked(name string) *engine.Collection {
	if coll, exists := r.instances[name]; exists {
		return coll
	}
	def, exists := r.definitions[name]
	if !exists {
		return nil
	}
	coll := engine.NewCollection(name, def, r.store, r.logger)
	r.instances[name] = coll
	return coll
}

// GetInstanceByModelName returns the handle whose definition has the given singular name.
func (r *CollectionRegistry) GetInstanceByModelName(singular string) (*engine.Collection, bool) {
	for _, key := range r.Names() {
		if r.definitions[key].Singular == singular {
			return r.GetInstance(key)
		}
	}
	return nil, false
}

// Collections returns a copy of the name to handle map.
func (r *CollectionRegistry) Collections() map[string]*engine.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	collections := make(map[string]*engine.Collection, len(r.instances))
	for name, coll := range r.instances {
		collections[name] = coll
	}
	return collections
}

// Definitions returns copies of the registered definitions.
func (r *CollectionRegistry) Definitions() map[string]*models.Definition {
	defs := make(map[string]*models.Definition, len(r.definitions))
	for name, def := range r.definitions {
		defs[name] = def.Clone()
	}
	return defs
}

// Names returns the registered collection names in sorted order.
func (r *CollectionRegistry) Names() []string {
	return sortedKeys(r.definitions)
}

// Store returns the backing store shared by all handles.
func (r *CollectionRegistry) Store() engine.DocumentStore {
	return r.store
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
