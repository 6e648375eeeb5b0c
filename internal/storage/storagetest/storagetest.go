// Package storagetest holds behaviour checks shared by every ObjectStore
// implementation.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firstpro/mock-feedback-service/internal/storage"
)

// Run exercises store against the ObjectStore contract. Keys live under a
// random prefix so the suite can run against shared external backends.
func Run(t *testing.T, store storage.ObjectStore) {
	t.Helper()
	ctx := context.Background()
	prefix := "conformance-" + uuid.NewString() + "/"

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, prefix+"missing.json")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		key := prefix + "put.json"
		require.NoError(t, store.Put(ctx, key, []byte(`{"a":1}`), "application/json"))

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, obj.Key)
		assert.Equal(t, `{"a":1}`, string(obj.Body))
		assert.Equal(t, "application/json", obj.ContentType)
		assert.NotEmpty(t, obj.Version)

		require.NoError(t, store.Put(ctx, key, []byte(`{"a":2}`), "application/json"))
		obj, err = store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"a":2}`, string(obj.Body))
	})

	t.Run("PutIfMatchCreateOnly", func(t *testing.T) {
		key := prefix + "create.json"
		version, err := store.PutIfMatch(ctx, key, []byte("one"), "text/plain", "")
		require.NoError(t, err)
		assert.NotEmpty(t, version)

		_, err = store.PutIfMatch(ctx, key, []byte("two"), "text/plain", "")
		assert.ErrorIs(t, err, storage.ErrVersionMismatch)

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "one", string(obj.Body))
	})

	t.Run("PutIfMatchVersion", func(t *testing.T) {
		key := prefix + "cas.json"
		_, err := store.PutIfMatch(ctx, key, []byte("v1"), "text/plain", "")
		require.NoError(t, err)

		first, err := store.Get(ctx, key)
		require.NoError(t, err)

		next, err := store.PutIfMatch(ctx, key, []byte("v2"), "text/plain", first.Version)
		require.NoError(t, err)
		assert.NotEqual(t, first.Version, next)

		// The first version is stale now.
		_, err = store.PutIfMatch(ctx, key, []byte("v3"), "text/plain", first.Version)
		assert.ErrorIs(t, err, storage.ErrVersionMismatch)

		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(obj.Body))
		assert.Equal(t, next, obj.Version)
	})

	t.Run("PutIfMatchMissing", func(t *testing.T) {
		_, err := store.PutIfMatch(ctx, prefix+"absent.json", []byte("x"), "text/plain", "1")
		assert.ErrorIs(t, err, storage.ErrVersionMismatch)
	})

	t.Run("List", func(t *testing.T) {
		listPrefix := prefix + "list/"
		for _, name := range []string{"c", "a", "b"} {
			require.NoError(t, store.Put(ctx, listPrefix+name, []byte(name), "text/plain"))
		}
		require.NoError(t, store.Put(ctx, prefix+"other", []byte("x"), "text/plain"))

		keys, err := store.List(ctx, listPrefix, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{listPrefix + "a", listPrefix + "b", listPrefix + "c"}, keys)

		keys, err = store.List(ctx, listPrefix, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{listPrefix + "a", listPrefix + "b"}, keys)

		keys, err = store.List(ctx, prefix+"nothing-here/", 10)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("ListLiteralPrefix", func(t *testing.T) {
		// Wildcard characters in a prefix must match literally.
		listPrefix := prefix + "lit_"
		require.NoError(t, store.Put(ctx, listPrefix+"1", []byte("1"), "text/plain"))
		require.NoError(t, store.Put(ctx, prefix+"litX2", []byte("2"), "text/plain"))

		keys, err := store.List(ctx, listPrefix, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("%s1", listPrefix)}, keys)
	})
}
