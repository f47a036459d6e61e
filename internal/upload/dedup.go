package upload

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/atomic"
)

const dedupIndexFilename = "md5_index.json"

// existenceChecker is the subset of ObjectStore the dedup index needs to
// re-validate a lookup before trusting it: the lookup-then-existence
// check is the property that keeps a stale index entry from being
// handed back as a hit.
type existenceChecker interface {
	Exists(relPath string) bool
}

// DedupIndex is a persistent digest -> relative-path map, rewritten in
// full on every Register. It is deliberately a thin contract
// (Lookup/Register) so a real KV store could replace the JSON file
// without touching the Session Manager.
type DedupIndex struct {
	path  string
	store existenceChecker
	mu    sync.Mutex
	gen   atomic.Int64 // write generation, surfaced for diagnostics
}

// NewDedupIndex returns a DedupIndex backed by a md5_index.json file
// under storageRoot.
func NewDedupIndex(storageRoot string, store existenceChecker) *DedupIndex {
	return &DedupIndex{
		path:  storageRoot + string(os.PathSeparator) + dedupIndexFilename,
		store: store,
	}
}

func (d *DedupIndex) load() (map[string]string, error) {
	data, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dedup: read: %w", err)
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("dedup: decode: %w", err)
	}
	return m, nil
}

// Lookup returns the relative path registered for digest, but only if the
// referenced object still exists; a stale mapping is treated as absent,
// never as an error.
func (d *DedupIndex) Lookup(digest string) (string, bool, error) {
	digest = strings.ToLower(digest)
	d.mu.Lock()
	m, err := d.load()
	d.mu.Unlock()
	if err != nil {
		return "", false, err
	}

	relPath, ok := m[digest]
	if !ok {
		return "", false, nil
	}
	if !d.store.Exists(relPath) {
		return "", false, nil
	}
	return relPath, true, nil
}

// Register upserts digest -> relPath and rewrites the index file.
// Concurrent callers are serialised by d.mu.
func (d *DedupIndex) Register(digest, relPath string) error {
	digest = strings.ToLower(digest)
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.load()
	if err != nil {
		return err
	}
	m[digest] = relPath

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("dedup: encode: %w", err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("dedup: write temp: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		return fmt.Errorf("dedup: rename: %w", err)
	}
	d.gen.Add(1)
	return nil
}

// Generation returns the number of successful Register calls so far.
func (d *DedupIndex) Generation() int64 { return d.gen.Load() }
