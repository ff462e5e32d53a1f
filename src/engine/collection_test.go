package engine_test

import (
	"context"
	"errors"
	"testing"

	"sevr/src/datastore"
	"sevr/src/engine"
	"sevr/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostsCollection(store engine.DocumentStore) *engine.Collection {
	def := &models.Definition{
		Name:     "posts",
		Singular: "Post",
		Fields: map[string]*models.FieldSpec{
			"title": models.Plain("string"),
		},
	}
	return engine.NewCollection("posts", def, store, nil)
}

func TestCollection_SaveAssignsID(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	coll := newPostsCollection(store)

	doc := models.Document{"title": "hello"}
	saved, err := coll.Save(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, saved["_id"])
	assert.Equal(t, saved["_id"], doc["_id"], "the id is written back into the caller's document")

	loaded, err := coll.FindByID(ctx, saved["_id"])
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded["title"])
}

func TestCollection_SaveMergesExisting(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	coll := newPostsCollection(store)

	_, err := coll.Save(ctx, models.Document{"_id": "p1", "title": "first", "views": "1"})
	require.NoError(t, err)
	_, err = coll.Save(ctx, models.Document{"_id": "p1", "title": "second"})
	require.NoError(t, err)

	loaded, err := coll.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "second", loaded["title"])
	assert.Equal(t, "1", loaded["views"])
	assert.Equal(t, 1, store.Count("posts"))
}

func TestCollection_HooksRunInOrder(t *testing.T) {
	ctx := context.Background()
	coll := newPostsCollection(datastore.NewMemoryStore())

	var calls []string
	require.NoError(t, coll.AttachHook(engine.PhasePre, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		calls = append(calls, "pre")
		doc["stamped"] = true
		return nil
	}))
	require.NoError(t, coll.AttachHook(engine.PhasePost, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		calls = append(calls, "post:"+doc["title"].(string))
		return nil
	}))
	require.NoError(t, coll.AttachHook(engine.PhasePost, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		calls = append(calls, "post2")
		return nil
	}))

	saved, err := coll.Save(ctx, models.Document{"title": "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pre", "post:hi", "post2"}, calls)
	assert.Equal(t, true, saved["stamped"])
	assert.Equal(t, 2, coll.HookCount(engine.PhasePost, engine.EventSave))
}

func TestCollection_PreHookAbortsWrite(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	coll := newPostsCollection(store)

	rejected := errors.New("rejected")
	postCalled := false
	require.NoError(t, coll.AttachHook(engine.PhasePre, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		return rejected
	}))
	require.NoError(t, coll.AttachHook(engine.PhasePost, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		postCalled = true
		return nil
	}))

	_, err := coll.Save(ctx, models.Document{"title": "nope"})
	require.ErrorIs(t, err, rejected)
	assert.False(t, postCalled)
	assert.Equal(t, 0, store.Count("posts"))
}

func TestCollection_PostHooksSkippedOnFailedWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coll := newPostsCollection(datastore.NewMemoryStore())
	postCalled := false
	require.NoError(t, coll.AttachHook(engine.PhasePost, engine.EventSave, func(ctx context.Context, doc models.Document) error {
		postCalled = true
		return nil
	}))

	_, err := coll.Save(ctx, models.Document{"title": "x"})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, postCalled)
}

func TestCollection_AttachHookValidation(t *testing.T) {
	coll := newPostsCollection(datastore.NewMemoryStore())

	err := coll.AttachHook("during", engine.EventSave, func(ctx context.Context, doc models.Document) error { return nil })
	assert.ErrorIs(t, err, engine.ErrInvalidHookPhase)

	err = coll.AttachHook(engine.PhasePost, engine.EventSave, nil)
	assert.ErrorIs(t, err, engine.ErrNilHook)
}

func TestCollection_DefinitionIsCopy(t *testing.T) {
	coll := newPostsCollection(datastore.NewMemoryStore())

	def := coll.Definition()
	def.Singular = "Changed"
	def.Fields["extra"] = models.Plain("string")

	assert.Equal(t, "Post", coll.Singular())
	assert.NotContains(t, coll.Definition().Fields, "extra")
}

func TestCollection_FindByIDMissing(t *testing.T) {
	coll := newPostsCollection(datastore.NewMemoryStore())

	_, err := coll.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrDocumentNotFound)
}
