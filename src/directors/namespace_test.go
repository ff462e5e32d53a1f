package directors

import (
	"context"
	"testing"

	"sevr/src/datastore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace_SetGet(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()
	auth := NewNamespace("sevr-auth", store)

	require.NoError(t, auth.Set(ctx, "secret", "s3cr3t"))
	require.NoError(t, auth.Set(ctx, "attempts", 3))

	var secret string
	require.NoError(t, auth.Get(ctx, "secret", &secret))
	assert.Equal(t, "s3cr3t", secret)

	var attempts int
	require.NoError(t, auth.Get(ctx, "attempts", &attempts))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "sevr-auth", auth.Name())
}

func TestNamespace_Isolation(t *testing.T) {
	ctx := context.Background()
	store := datastore.NewMemoryStore()

	require.NoError(t, NewNamespace("one", store).Set(ctx, "key", "first"))

	var value string
	err := NewNamespace("two", store).Get(ctx, "key", &value)
	assert.ErrorIs(t, err, ErrNamespaceKeyMissing)

	require.NoError(t, NewNamespace("two", store).Set(ctx, "other", "x"))
	err = NewNamespace("two", store).Get(ctx, "key", &value)
	assert.ErrorIs(t, err, ErrNamespaceKeyMissing)
}

func TestNamespace_InvalidKeys(t *testing.T) {
	ns := NewNamespace("plugin", datastore.NewMemoryStore())

	for _, key := range []string{"", "a.b", "$set"} {
		assert.ErrorIs(t, ns.Set(context.Background(), key, 1), ErrInvalidNamespaceKey, key)
	}
}
