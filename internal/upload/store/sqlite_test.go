package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ro11032005/mediaingest/internal/upload"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s := openTestStore(t)

	created := time.Date(2026, 8, 5, 12, 0, 0, 0, time.UTC)
	sess := &upload.Session{
		ID:          "20260805120000-0011223344556677",
		Owner:       "user-7",
		Filename:    "clip.mp4",
		MediaType:   "video/mp4",
		TotalSize:   3 << 20,
		Digest:      "0123456789abcdef0123456789abcdef",
		ChunkSize:   1 << 20,
		TotalChunks: 3,
		State:       upload.StateInitiated,
		CreatedAt:   created,
		LastChunkAt: created,
	}
	require.NoError(t, s.Create(sess))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.Filename, got.Filename)
	require.Equal(t, sess.Digest, got.Digest)
	require.Equal(t, upload.StateInitiated, got.State)
	require.True(t, got.CreatedAt.Equal(created))
	require.True(t, got.CompletedAt.IsZero(), "unset completion timestamp must survive the round trip as zero")
}

func TestSQLiteStore_UpdatePersistsTransition(t *testing.T) {
	s := openTestStore(t)

	sess := newSession("20260805120000-aaaaaaaaaaaaaaaa", upload.StateInitiated)
	require.NoError(t, s.Create(sess))

	sess.State = upload.StateCompleted
	sess.StoredPath = "2026/08/05/anonymous/f_abc.jpg"
	sess.CompletedAt = time.Now().UTC()
	require.NoError(t, s.Update(sess))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Equal(t, upload.StateCompleted, got.State)
	require.Equal(t, sess.StoredPath, got.StoredPath)
	require.False(t, got.CompletedAt.IsZero())
}

func TestSQLiteStore_MissingSession(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("absent")
	require.ErrorIs(t, err, upload.ErrNotFound)
	require.ErrorIs(t, s.Update(newSession("absent", upload.StateInitiated)), upload.ErrNotFound)
}

func TestSQLiteStore_ListByState(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Create(newSession("20260805120000-0000000000000001", upload.StateUploading)))
	require.NoError(t, s.Create(newSession("20260805120000-0000000000000002", upload.StateCancelled)))

	open, err := s.ListByState(upload.StateInitiated, upload.StateUploading)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, upload.StateUploading, open[0].State)
}
