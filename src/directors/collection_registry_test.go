package directors

import (
	"errors"
	"testing"

	"sevr/src/datastore"
	"sevr/src/engine"
	"sevr/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogDefinitions() map[string]*models.Definition {
	return map[string]*models.Definition{
		"user": {
			Singular: "User",
			Fields:   map[string]*models.FieldSpec{"name": models.Plain("")},
		},
		"post": {
			Singular: "Post",
			Fields:   map[string]*models.FieldSpec{"author": models.Ref("User")},
		},
	}
}

func TestNewCollectionRegistry_ValidDefinitions(t *testing.T) {
	store := datastore.NewMemoryStore()
	registry, err := NewCollectionRegistry(blogDefinitions(), store, nil)
	require.NoError(t, err)

	collections := registry.Collections()
	require.Len(t, collections, 2)
	assert.Contains(t, collections, "user")
	assert.Contains(t, collections, "post")
	assert.Equal(t, []string{"post", "user"}, registry.Names())

	for name, coll := range collections {
		assert.Equal(t, name, coll.Name())
		assert.Equal(t, name, coll.Definition().Name, "name is injected from the key")
		assert.Same(t, store, coll.Store())
	}

	post, ok := registry.GetInstanceByModelName("Post")
	require.True(t, ok)
	assert.Same(t, collections["post"], post)
}

func TestNewCollectionRegistry_UnknownReference(t *testing.T) {
	defs := map[string]*models.Definition{
		"post": {
			Singular: "Post",
			Fields:   map[string]*models.FieldSpec{"author": models.Ref("Nobody")},
		},
	}

	registry, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
	require.Error(t, err)
	assert.Nil(t, registry)
	assert.Contains(t, err.Error(), "post")
	assert.Contains(t, err.Error(), "Nobody")

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "post", cfgErr.Collection)

	var refErr *engine.ReferenceError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, "author", refErr.Field)
	assert.Equal(t, "Nobody", refErr.Target)
}

func TestNewCollectionRegistry_FailsFastOnFirstError(t *testing.T) {
	defs := map[string]*models.Definition{
		"post": {
			Singular: "Post",
			Fields: map[string]*models.FieldSpec{
				"author":   models.Ref("Ghost"),
				"reviewer": models.Ref("Phantom"),
			},
		},
	}

	_, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
	require.Error(t, err)
	assert.Equal(t, "`post` collection field `author` references unknown model `Ghost`", err.Error())
}

func TestNewCollectionRegistry_NestedUnknownReference(t *testing.T) {
	defs := blogDefinitions()
	defs["comment"] = &models.Definition{
		Singular: "Comment",
		Fields: map[string]*models.FieldSpec{
			"thread": models.ArrayOf(models.SubDocument(map[string]*models.FieldSpec{
				"by": models.Ref("Moderator"),
			})),
		},
	}

	_, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comment")
	assert.Contains(t, err.Error(), "Moderator")
}

func TestNewCollectionRegistry_ForwardAndSelfReferences(t *testing.T) {
	defs := map[string]*models.Definition{
		"a_posts": {
			Singular: "Post",
			Fields: map[string]*models.FieldSpec{
				"author":  models.Ref("User"),
				"replyTo": models.Ref("Post"),
			},
		},
		"z_users": {
			Singular: "User",
			Fields:   map[string]*models.FieldSpec{"friends": models.ArrayOf(models.Ref("User"))},
		},
	}

	registry, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Len(t, registry.Collections(), 2)
}

func TestNewCollectionRegistry_NilDefinition(t *testing.T) {
	_, err := NewCollectionRegistry(map[string]*models.Definition{"ghost": nil}, datastore.NewMemoryStore(), nil)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "ghost", cfgErr.Collection)
}

func TestNewCollectionRegistry_InvalidCollectionNames(t *testing.T) {
	for _, name := range []string{"blog.posts", "$posts", ""} {
		defs := blogDefinitions()
		defs[name] = &models.Definition{Singular: "Entry"}

		_, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
		require.ErrorIs(t, err, ErrInvalidCollectionName, name)

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, name, cfgErr.Collection)
	}
}

func TestNewCollectionRegistry_CopiesDefinitions(t *testing.T) {
	defs := blogDefinitions()
	registry, err := NewCollectionRegistry(defs, datastore.NewMemoryStore(), nil)
	require.NoError(t, err)

	defs["user"].Singular = "Changed"
	defs["extra"] = &models.Definition{Singular: "Extra"}

	assert.Empty(t, defs["user"].Name, "caller's definitions are not mutated")
	_, ok := registry.GetInstanceByModelName("Changed")
	assert.False(t, ok)
	_, ok = registry.GetInstance("extra")
	assert.False(t, ok)
}

func TestCollectionRegistry_GetInstanceMemoizes(t *testing.T) {
	registry, err := NewCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)

	first, ok := registry.GetInstance("user")
	require.True(t, ok)
	second, ok := registry.GetInstance("user")
	require.True(t, ok)
	assert.Same(t, first, second)
}

func TestCollectionRegistry_LookupMisses(t *testing.T) {
	registry, err := NewCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)

	coll, ok := registry.GetInstance("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, coll)

	coll, ok = registry.GetInstanceByModelName("Nobody")
	assert.False(t, ok)
	assert.Nil(t, coll)
}

func TestCollectionRegistry_CollectionsIsCopy(t *testing.T) {
	registry, err := NewCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)

	view := registry.Collections()
	delete(view, "user")
	view["intruder"] = nil

	assert.Len(t, registry.Collections(), 2)
	_, ok := registry.GetInstance("user")
	assert.True(t, ok)

	defs := registry.Definitions()
	defs["user"].Singular = "Changed"
	user, _ := registry.GetInstance("user")
	assert.Equal(t, "User", user.Singular())
}

func TestInitCollectionRegistry_Singleton(t *testing.T) {
	resetCollectionRegistry()
	t.Cleanup(resetCollectionRegistry)

	assert.Nil(t, GetCollectionRegistry())

	store := datastore.NewMemoryStore()
	first, err := InitCollectionRegistry(blogDefinitions(), store, nil)
	require.NoError(t, err)
	assert.Same(t, first, GetCollectionRegistry())

	// later arguments are ignored
	other := map[string]*models.Definition{"tag": {Singular: "Tag"}}
	second, err := InitCollectionRegistry(other, datastore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, store, second.Store())
	_, ok := second.GetInstance("tag")
	assert.False(t, ok)
}

func TestInitCollectionRegistry_FailureLeavesNoSingleton(t *testing.T) {
	resetCollectionRegistry()
	t.Cleanup(resetCollectionRegistry)

	bad := map[string]*models.Definition{
		"post": {Singular: "Post", Fields: map[string]*models.FieldSpec{"author": models.Ref("Nobody")}},
	}
	_, err := InitCollectionRegistry(bad, datastore.NewMemoryStore(), nil)
	require.Error(t, err)
	assert.Nil(t, GetCollectionRegistry())

	registry, err := InitCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Same(t, registry, GetCollectionRegistry())
}

func TestInitCollectionRegistry_ResetStartsFresh(t *testing.T) {
	resetCollectionRegistry()
	t.Cleanup(resetCollectionRegistry)

	first, err := InitCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)

	resetCollectionRegistry()
	second, err := InitCollectionRegistry(blogDefinitions(), datastore.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}
