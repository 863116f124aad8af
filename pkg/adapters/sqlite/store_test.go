package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/agrivaani/agrivaani/pkg/adapters/sqlite"
	"github.com/agrivaani/agrivaani/pkg/domain"
	"github.com/agrivaani/agrivaani/pkg/ports/tests"
)

func TestStore_Contract(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tests.RunSessionStoreContract(t, store)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := sqlite.Open(path)
	require.NoError(t, err)

	sess := domain.NewSession("farmer-1", "pm_kisan")
	sess.CurrentNode = "district"
	sess.SetAnswer("state", "Maharashtra")
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	loaded, err := reopened.Load(ctx, "farmer-1")
	require.NoError(t, err)
	assert.Equal(t, "district", loaded.CurrentNode)
	v, ok := loaded.Answer("state")
	assert.True(t, ok)
	assert.Equal(t, "Maharashtra", v)
}
