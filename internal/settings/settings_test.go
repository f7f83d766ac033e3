package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedock/gamedock/internal/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

func TestLoadWithoutOverridesKeepsDefaults(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db.Conn(), View{InstallRoot: "/games", MinScore: 40, DebridConfigured: true}, zerolog.Nop())

	require.NoError(t, svc.Load(context.Background()))

	view := svc.Current()
	assert.Equal(t, "/games", view.InstallRoot)
	assert.Equal(t, 40.0, view.MinScore)
	assert.True(t, view.DebridConfigured)
}

func TestOverridesSurviveReload(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	svc := NewService(db.Conn(), View{InstallRoot: "/games", MinScore: 40}, zerolog.Nop())
	require.NoError(t, svc.SetInstallRoot(ctx, "/mnt/bigdisk/games"))
	require.NoError(t, svc.SetMinScore(ctx, 55))

	// A fresh service over the same database simulates a restart.
	reloaded := NewService(db.Conn(), View{InstallRoot: "/games", MinScore: 40}, zerolog.Nop())
	require.NoError(t, reloaded.Load(ctx))

	view := reloaded.Current()
	assert.Equal(t, "/mnt/bigdisk/games", view.InstallRoot)
	assert.Equal(t, 55.0, view.MinScore)
}

func TestSetRejectsInvalidValues(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewService(db.Conn(), View{}, zerolog.Nop())

	assert.ErrorIs(t, svc.SetInstallRoot(ctx, ""), ErrInvalidValue)
	assert.ErrorIs(t, svc.SetMinScore(ctx, -1), ErrInvalidValue)
}
