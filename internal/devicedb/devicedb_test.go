package devicedb

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(db, zap.NewNop(), func() time.Time { return now }), &now
}

func TestObserveCreatesAndUpdates(t *testing.T) {
	store, now := testStore(t)

	rec, err := store.Observe("17ef:6182", "Legion Controller", "xinput", true)
	require.NoError(t, err)
	assert.Equal(t, *now, rec.FirstSeenAt)
	assert.Equal(t, *now, rec.LastSeenAt)
	assert.Equal(t, 1, rec.Sessions)

	first := *now
	*now = now.Add(time.Hour)
	rec, err = store.Observe("17ef:6182", "Legion Controller", "xinput", false)
	require.NoError(t, err)
	assert.Equal(t, first, rec.FirstSeenAt, "first sighting is sticky")
	assert.Equal(t, *now, rec.LastSeenAt)
	assert.Equal(t, 1, rec.Sessions, "non-session sighting does not count")
}

func TestList(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Observe("17ef:6182", "Legion Controller", "xinput", true)
	require.NoError(t, err)
	_, err = store.Observe("17ef:6185", "Legion Controller", "fps", false)
	require.NoError(t, err)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "17ef:6182", records[0].Address)
	assert.Equal(t, "17ef:6185", records[1].Address)
}
