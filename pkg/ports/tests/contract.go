// Package tests provides a reusable contract suite for SessionStore
// implementations. Every store adapter runs the same suite.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports"
)

// RunSessionStoreContract verifies that a SessionStore implementation adheres
// to the interface contract.
func RunSessionStoreContract(t *testing.T, store ports.SessionStore) {
	ctx := context.Background()
	key := "contract-" + time.Now().Format("20060102150405")

	t.Run("save and load", func(t *testing.T) {
		sess := domain.NewSession(key, "kcc")
		sess.Language = "hindi"
		sess.SetAnswer("state", "Maharashtra")
		sess.SetAnswer("district", "Pune")

		require.NoError(t, store.Save(ctx, sess))

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, loaded.Key)
		assert.Equal(t, "kcc", loaded.FlowID)
		assert.Equal(t, "hindi", loaded.Language)
		require.Len(t, loaded.Answers, 2)
		assert.Equal(t, "state", loaded.Answers[0].Key, "insertion order must survive persistence")
	})

	t.Run("load is isolated from store state", func(t *testing.T) {
		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		loaded.SetAnswer("state", "Punjab")

		again, err := store.Load(ctx, key)
		require.NoError(t, err)
		v, _ := again.Answer("state")
		assert.Equal(t, "Maharashtra", v, "mutating a loaded session must not affect the store")
	})

	t.Run("load non-existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSession(key, "kcc")))
		require.NoError(t, store.Delete(ctx, key))

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("list", func(t *testing.T) {
		k1, k2 := key+"-1", key+"-2"
		require.NoError(t, store.Save(ctx, domain.NewSession(k1, "kcc")))
		require.NoError(t, store.Save(ctx, domain.NewSession(k2, "pm_kisan")))
		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}
