package upload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeExistenceChecker struct {
	existing map[string]bool
}

func (f *fakeExistenceChecker) Exists(relPath string) bool { return f.existing[relPath] }

func TestDedupIndex_LookupMiss(t *testing.T) {
	d := NewDedupIndex(t.TempDir(), &fakeExistenceChecker{})
	_, found, err := d.Lookup("deadbeef")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDedupIndex_RegisterThenLookup(t *testing.T) {
	checker := &fakeExistenceChecker{existing: map[string]bool{"2024/01/01/anonymous/x_y.jpg": true}}
	d := NewDedupIndex(t.TempDir(), checker)

	require.NoError(t, d.Register("ABCDEF", "2024/01/01/anonymous/x_y.jpg"))

	// lookup is case-insensitive on the digest
	rel, found, err := d.Lookup("abcdef")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "2024/01/01/anonymous/x_y.jpg", rel)
}

func TestDedupIndex_StaleEntryTreatedAsAbsent(t *testing.T) {
	checker := &fakeExistenceChecker{existing: map[string]bool{}}
	d := NewDedupIndex(t.TempDir(), checker)

	require.NoError(t, d.Register("abc123", "2024/01/01/anonymous/gone.jpg"))

	_, found, err := d.Lookup("abc123")
	require.NoError(t, err)
	require.False(t, found, "entry referencing a missing object must be treated as absent, not an error")
}

func TestDedupIndex_RegisterIncrementsGeneration(t *testing.T) {
	d := NewDedupIndex(t.TempDir(), &fakeExistenceChecker{})
	require.Equal(t, int64(0), d.Generation())
	require.NoError(t, d.Register("a", "p"))
	require.Equal(t, int64(1), d.Generation())
}
