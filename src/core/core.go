package core

import (
	"context"
	"errors"
	"fmt"

	"sevr/src/datastore"
	"sevr/src/directors"
	"sevr/src/engine"
	"sevr/src/models"
	"sevr/src/settings"

	"go.uber.org/zap"
)

var (
	ErrNilPlugin    = errors.New("plugin must be a function")
	ErrNotConnected = errors.New("sevr is not connected")
	ErrConnected    = errors.New("sevr is already connected")
)

// buildRegistry is swapped out by tests that must not share the process-wide registry.
var buildRegistry = directors.InitCollectionRegistry

// PluginFunc is called once the registry is ready, with the app, the config
// the plugin was attached with, and a namespace for its own metadata.
type PluginFunc func(s *Sevr, config interface{}, ns *directors.Namespace) error

type plugin struct {
	fn        PluginFunc
	config    interface{}
	namespace string
}

// Sevr wires the document store, the collection registry and the meta ledger together.
type Sevr struct {
	settings    *settings.Arguments
	definitions map[string]*models.Definition
	logger      *zap.SugaredLogger

	store    engine.DocumentStore
	ownStore bool
	registry *directors.CollectionRegistry
	meta     *directors.MetaTracker
	plugins  []plugin
	ready    chan struct{}
}

// InitSevr builds the logger and loads the collection definitions named by config.
func InitSevr(config *settings.Arguments) (*Sevr, error) {
	if err := settings.Validate(config); err != nil {
		return nil, err
	}

	logger, err := NewLogger(config)
	if err != nil {
		return nil, err
	}

	defs, err := engine.LoadDefinitionsFile(config.DefinitionsFile)
	if err != nil {
		return nil, err
	}

	return New(config, defs, logger), nil
}

// New creates an app from already loaded definitions.
func New(config *settings.Arguments, defs map[string]*models.Definition, logger *zap.SugaredLogger) *Sevr {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sevr{
		settings:    config,
		definitions: defs,
		logger:      logger,
		ready:       make(chan struct{}),
	}
}

// NewLogger builds the zap logger: development output when debugging,
// production JSON otherwise.
func NewLogger(config *settings.Arguments) (*zap.SugaredLogger, error) {
	var zc zap.Config
	if config.Debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.OutputPaths = []string{"stdout"}
	if config.LogFile != "" {
		zc.OutputPaths = append(zc.OutputPaths, config.LogFile)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Attach queues a plugin to run once Connect has built the registry.
func (s *Sevr) Attach(fn PluginFunc, config interface{}, namespace string) error {
	if fn == nil {
		return ErrNilPlugin
	}
	s.plugins = append(s.plugins, plugin{fn: fn, config: config, namespace: namespace})
	return nil
}

// Connect opens the configured store, builds the collection registry and runs
// the attached plugins. The store is closed again if any step fails.
func (s *Sevr) Connect(ctx context.Context) error {
	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	return s.connectOpened(store)
}

// connectOpened connects with a store opened by the app itself.
func (s *Sevr) connectOpened(store engine.DocumentStore) error {
	if err := s.ConnectWithStore(store); err != nil {
		if closeErr := store.Close(context.Background()); closeErr != nil {
			s.logger.Warnf("Failed to close store after connect error: %v", closeErr)
		}
		return err
	}
	return nil
}

// ConnectWithStore is Connect for a store the caller has already opened. On
// success the app owns store; on failure it is left to the caller and Connect
// can be retried.
func (s *Sevr) ConnectWithStore(store engine.DocumentStore) error {
	if s.registry != nil {
		return ErrConnected
	}

	registry, err := buildRegistry(s.definitions, store, s.logger)
	if err != nil {
		return fmt.Errorf("failed to build collection registry: %w", err)
	}

	s.registry = registry
	s.store = registry.Store()
	s.meta = directors.NewMetaTracker(registry, s.store, s.logger)

	for _, p := range s.plugins {
		if err := p.fn(s, p.config, directors.NewNamespace(p.namespace, s.store)); err != nil {
			s.registry, s.store, s.meta = nil, nil, nil
			return fmt.Errorf("plugin for namespace '%s' failed: %w", p.namespace, err)
		}
	}

	// An earlier registry keeps its own store, which stays with its owner
	s.ownStore = s.store == store
	if !s.ownStore {
		s.logger.Warn("Collection registry was already initialized with another store")
		if err := store.Close(context.Background()); err != nil {
			s.logger.Warnf("Failed to close unused store: %v", err)
		}
	}

	close(s.ready)
	s.logger.Info("Sevr connected, collections ready")
	return nil
}

func (s *Sevr) openStore(ctx context.Context) (engine.DocumentStore, error) {
	switch s.settings.Backend {
	case settings.BackendMongo:
		return datastore.ConnectMongo(ctx, s.settings.Connection, s.logger)
	case settings.BackendFile:
		return datastore.NewFileStore(s.settings.DataDir, s.logger)
	case settings.BackendMemory:
		return datastore.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown backend: %s", s.settings.Backend)
}

// InitMeta bootstraps the meta ledger. Call it after Connect.
func (s *Sevr) InitMeta(ctx context.Context) (models.Ledger, error) {
	if s.meta == nil {
		return models.Ledger{}, ErrNotConnected
	}
	return s.meta.Bootstrap(ctx)
}

// Ready is closed once Connect has succeeded.
func (s *Sevr) Ready() <-chan struct{} {
	return s.ready
}

// Close waits for pending ledger updates and closes the store.
func (s *Sevr) Close(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.meta.Wait()

	_ = s.logger.Sync()
	if !s.ownStore {
		return nil
	}
	return s.store.Close(ctx)
}

func (s *Sevr) Settings() *settings.Arguments {
	return s.settings
}

func (s *Sevr) Logger() *zap.SugaredLogger {
	return s.logger
}

func (s *Sevr) Registry() *directors.CollectionRegistry {
	return s.registry
}

func (s *Sevr) Meta() *directors.MetaTracker {
	return s.meta
}

// Store returns the shared backing store.
func (s *Sevr) Store() engine.DocumentStore {
	return s.store
}

// Collections returns the registered collection handles.
func (s *Sevr) Collections() map[string]*engine.Collection {
	if s.registry == nil {
		return map[string]*engine.Collection{}
	}
	return s.registry.Collections()
}

// Definitions returns copies of the loaded definitions.
func (s *Sevr) Definitions() map[string]*models.Definition {
	defs := make(map[string]*models.Definition, len(s.definitions))
	for name, def := range s.definitions {
		defs[name] = def.Clone()
	}
	return defs
}
