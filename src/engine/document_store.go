package engine

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// DocumentStore is the backing-store connection shared by every collection handle.
// It is owned by the collection registry; handles must never close it.
type DocumentStore interface {
	// UpsertFields merges set into the document with the given id, creating it when missing.
	// Keys may be dotted paths into nested documents.
	UpsertFields(ctx context.Context, collection string, id interface{}, set bson.M) error

	// FindByID decodes the document with the given id into out.
	// Returns ErrDocumentNotFound when no such document exists.
	FindByID(ctx context.Context, collection string, id interface{}, out interface{}) error

	Close(ctx context.Context) error
}

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidHookPhase = errors.New("invalid hook phase")
	ErrNilHook          = errors.New("hook function is nil")
)
