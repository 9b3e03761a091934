package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruworg/stash/internal/config"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.Config{SQLitePath: filepath.Join(t.TempDir(), "test.db")}
	database, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func TestCreateAndGetLink(t *testing.T) {
	database := setupTestDB(t)

	owner := "user-42"
	created, err := database.CreateLink("abc123", &owner, time.Hour)
	require.NoError(t, err)
	assert.True(t, created.ExpiresAt.After(created.CreatedAt))

	got, err := database.GetLink("abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, "user-42", *got.OwnerID)
	assert.False(t, got.Expired(time.Now()))
}

func TestCreateLinkRejectsNonPositiveTTL(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.CreateLink("abc123", nil, 0)
	assert.Error(t, err)

	_, err = database.CreateLink("abc123", nil, -time.Hour)
	assert.Error(t, err)
}

func TestGetLinkNotFound(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.GetLink("missing")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestNilOwner(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.CreateLink("anon01", nil, time.Hour)
	require.NoError(t, err)

	got, err := database.GetLink("anon01")
	require.NoError(t, err)
	assert.Nil(t, got.OwnerID)
}

func TestExtendLink(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.CreateLink("abc123", nil, time.Hour)
	require.NoError(t, err)

	newExpiry := time.Now().Add(48 * time.Hour)
	require.NoError(t, database.ExtendLink("abc123", newExpiry))

	got, err := database.GetLink("abc123")
	require.NoError(t, err)
	assert.WithinDuration(t, newExpiry, got.ExpiresAt, time.Second)

	assert.ErrorIs(t, database.ExtendLink("missing", newExpiry), ErrLinkNotFound)
}

func TestDeleteLinkIsIdempotent(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.CreateLink("abc123", nil, time.Hour)
	require.NoError(t, err)

	require.NoError(t, database.DeleteLink("abc123"))
	require.NoError(t, database.DeleteLink("abc123"))

	_, err = database.GetLink("abc123")
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestListAndDeleteExpired(t *testing.T) {
	database := setupTestDB(t)

	_, err := database.CreateLink("fresh1", nil, time.Hour)
	require.NoError(t, err)
	_, err = database.CreateLink("stale1", nil, time.Millisecond)
	require.NoError(t, err)
	_, err = database.CreateLink("stale2", nil, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	expired, err := database.ListExpired(time.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"stale1", "stale2"}, expired)

	require.NoError(t, database.DeleteExpired(expired))

	// A second pass over the same ids deletes nothing and raises no errors.
	require.NoError(t, database.DeleteExpired(expired))

	remaining, err := database.ListExpired(time.Now())
	require.NoError(t, err)
	assert.Empty(t, remaining)

	_, err = database.GetLink("fresh1")
	assert.NoError(t, err)
}
