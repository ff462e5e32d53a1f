package datastore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"sevr/src/engine"
	"sevr/src/helpers"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// FileStore keeps one BSON file per collection in a data directory. Writes are
// read-modify-write cycles under an exclusive flock so several processes can
// share the directory.
type FileStore struct {
	DataDirectory string
	logger        *zap.SugaredLogger
	mu            sync.Mutex
}

var _ engine.DocumentStore = (*FileStore)(nil)

// collectionFile is the on-disk layout of a collection file.
type collectionFile struct {
	Documents map[string]bson.M `bson:"documents"`
}

func NewFileStore(dataDir string, logger *zap.SugaredLogger) (*FileStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := helpers.EnsureDir(dataDir); err != nil {
		return nil, err
	}
	return &FileStore{DataDirectory: dataDir, logger: logger}, nil
}

func (f *FileStore) collectionPath(name string) string {
	return filepath.Join(f.DataDirectory, name+".bson")
}

func (f *FileStore) UpsertFields(ctx context.Context, collection string, id interface{}, set bson.M) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.collectionPath(collection)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("error opening collection file %s: %w", path, err)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("error locking collection file %s: %w", path, err)
	}
	defer unix.Flock(int(file.Fd()), unix.LOCK_UN)

	contents, err := readCollectionFile(file)
	if err != nil {
		return fmt.Errorf("error reading collection file %s: %w", path, err)
	}

	key := idKey(id)
	doc, exists := contents.Documents[key]
	if !exists {
		doc = bson.M{"_id": id}
	}
	if err := applySet(doc, set); err != nil {
		return fmt.Errorf("upsert into '%s': %w", collection, err)
	}
	contents.Documents[key] = doc

	data, err := helpers.EncodeBSON(contents)
	if err != nil {
		return err
	}
	if err := file.Truncate(0); err != nil {
		return fmt.Errorf("error truncating collection file %s: %w", path, err)
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("error writing collection file %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("error syncing collection file %s: %w", path, err)
	}
	f.logger.Debugf("Wrote %d documents to %s", len(contents.Documents), path)
	return nil
}

func (f *FileStore) FindByID(ctx context.Context, collection string, id interface{}, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.collectionPath(collection)
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return engine.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("error opening collection file %s: %w", path, err)
	}
	defer file.Close()

	if err := unix.Flock(int(file.Fd()), unix.LOCK_SH); err != nil {
		return fmt.Errorf("error locking collection file %s: %w", path, err)
	}
	defer unix.Flock(int(file.Fd()), unix.LOCK_UN)

	contents, err := readCollectionFile(file)
	if err != nil {
		return fmt.Errorf("error reading collection file %s: %w", path, err)
	}

	doc, exists := contents.Documents[idKey(id)]
	if !exists {
		return engine.ErrDocumentNotFound
	}
	return decodeInto(doc, out)
}

func (f *FileStore) Close(ctx context.Context) error {
	return nil
}

func readCollectionFile(file *os.File) (*collectionFile, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	contents := &collectionFile{}
	if len(data) > 0 {
		if err := helpers.DecodeBSON(data, contents); err != nil {
			return nil, err
		}
	}
	if contents.Documents == nil {
		contents.Documents = make(map[string]bson.M)
	}
	return contents, nil
}
