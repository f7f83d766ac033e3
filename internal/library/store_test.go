package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamedock/gamedock/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	return NewStore(db.Conn(), zerolog.Nop())
}

func TestUpsertAndGetByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
		Name:        "Hollow Knight",
		InstallDir:  "/games/Hollow Knight",
		Executable:  "/games/Hollow Knight/hollow_knight.exe",
		SizeBytes:   9 << 30,
		RepackerTag: "fitgirl",
	}))

	rec, err := store.GetByName(ctx, "hollow knight")
	require.NoError(t, err)
	assert.Equal(t, "Hollow Knight", rec.Name)
	assert.Equal(t, "/games/Hollow Knight", rec.InstallDir)
	assert.Equal(t, "windows", rec.Platform)
	assert.Equal(t, "fitgirl", rec.RepackerTag)
	assert.Equal(t, int64(9<<30), rec.SizeBytes)

	_, err = store.GetByName(ctx, "Silksong")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestUpsertRefreshesByInstallPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
		Name:       "Hades",
		InstallDir: "/games/Hades",
		SizeBytes:  10 << 30,
	}))
	require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
		Name:       "Hades",
		InstallDir: "/games/Hades",
		Executable: "/games/Hades/Hades.exe",
		SizeBytes:  15 << 30,
	}))

	games, err := store.ListInstalledGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, int64(15<<30), games[0].SizeBytes)
	assert.Equal(t, "/games/Hades/Hades.exe", games[0].Executable)
}

func TestRemoveMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Celeste", "Cuphead", "Control"} {
		require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
			Name:       name,
			InstallDir: "/games/" + name,
		}))
	}

	removed, err := store.RemoveMissing(ctx, []string{"/games/Celeste", "/games/Control"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.GetByName(ctx, "Cuphead")
	assert.ErrorIs(t, err, ErrGameNotFound)

	games, err := store.ListInstalledGames(ctx)
	require.NoError(t, err)
	assert.Len(t, games, 2)
}

func TestRemoveMissingEmptyKeepClearsAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
		Name:       "Celeste",
		InstallDir: "/games/Celeste",
	}))

	removed, err := store.RemoveMissing(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSearchByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Hollow Knight Silksong", "Hollow Knight", "Hades", "Half-Life 2"} {
		require.NoError(t, store.Upsert(ctx, InstalledGameRecord{
			Name:       name,
			InstallDir: "/games/" + name,
		}))
	}

	results, err := store.SearchByName(ctx, "hollow")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Hollow Knight", results[0].Name)
	assert.Equal(t, "Hollow Knight Silksong", results[1].Name)

	results, err = store.SearchByName(ctx, "zzzzzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAcquisitionHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-10 * time.Minute).UTC()
	require.NoError(t, store.RecordAcquisition(ctx, AcquisitionRecord{
		JobID:       "job-1",
		GameName:    "Hollow Knight",
		SourceName:  "fitgirl",
		FinalStatus: "Completed",
		SizeBytes:   9 << 30,
		StartedAt:   started,
	}))
	require.NoError(t, store.RecordAcquisition(ctx, AcquisitionRecord{
		JobID:        "job-2",
		GameName:     "Hades",
		FinalStatus:  "Error",
		ErrorKind:    "ArchiveCorrupt",
		ErrorMessage: "crc failed",
		StartedAt:    started,
	}))

	records, err := store.ListAcquisitionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byJob := map[string]AcquisitionRecord{}
	for _, rec := range records {
		byJob[rec.JobID] = rec
	}
	assert.Equal(t, "Completed", byJob["job-1"].FinalStatus)
	assert.Equal(t, "fitgirl", byJob["job-1"].SourceName)
	assert.Equal(t, "ArchiveCorrupt", byJob["job-2"].ErrorKind)
	assert.Equal(t, "unknown", byJob["job-2"].RepackerTag)

	records, err = store.ListAcquisitionHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
