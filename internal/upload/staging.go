package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/bytebufferpool"
)

const reassembleReadChunk = 256 * 1024

// ChunkStaging owns the filesystem area that holds received chunks for a
// session until finalisation or cleanup.
type ChunkStaging struct {
	root string
}

// NewChunkStaging returns a ChunkStaging rooted at root, creating it if
// necessary.
func NewChunkStaging(root string) (*ChunkStaging, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("staging: mkdir root: %w", err)
	}
	return &ChunkStaging{root: root}, nil
}

func (c *ChunkStaging) sessionDir(sessionID string) string {
	return filepath.Join(c.root, "upload_"+sessionID)
}

func (c *ChunkStaging) chunkPath(sessionID string, index int) string {
	return filepath.Join(c.sessionDir(sessionID), fmt.Sprintf("chunk_%d.bin", index))
}

// HasChunk is a pure existence test.
func (c *ChunkStaging) HasChunk(sessionID string, index int) bool {
	_, err := os.Stat(c.chunkPath(sessionID, index))
	return err == nil
}

// StageChunk moves the incoming payload into its final staged path via a
// temp-then-rename sequence, which is atomic on the same filesystem. The
// caller is responsible for the HasChunk idempotence check; the probe
// and the counter increment it gates must share a critical section.
func (c *ChunkStaging) StageChunk(sessionID string, index int, r io.Reader) error {
	dir := c.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("staging: mkdir session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, fmt.Sprintf("chunk_%d.*.part", index))
	if err != nil {
		return fmt.Errorf("staging: create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("staging: close: %w", err)
	}

	if err := os.Rename(tmpPath, c.chunkPath(sessionID, index)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("staging: rename: %w", err)
	}
	return nil
}

// EnumerateChunks returns the set of indices present, parsed from
// filenames. A missing staging directory yields an empty set, not an
// error.
func (c *ChunkStaging) EnumerateChunks(sessionID string) (map[int]bool, error) {
	entries, err := os.ReadDir(c.sessionDir(sessionID))
	if os.IsNotExist(err) {
		return map[int]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staging: readdir: %w", err)
	}

	out := map[int]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ".bin") {
			continue
		}
		idxStr := strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), ".bin")
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			continue
		}
		out[idx] = true
	}
	return out, nil
}

// Reassemble streams chunks 0..totalChunks-1 in order into outputPath. It
// fails (and removes any partial output) if a chunk is missing or
// unreadable.
func (c *ChunkStaging) Reassemble(sessionID string, totalChunks int, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("staging: create output: %w", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Set(make([]byte, reassembleReadChunk))

	for i := 0; i < totalChunks; i++ {
		path := c.chunkPath(sessionID, i)
		in, err := os.Open(path)
		if err != nil {
			out.Close()
			os.Remove(outputPath)
			return fmt.Errorf("%w: chunk %d missing or unreadable: %v", ErrDataLoss, i, err)
		}
		_, copyErr := io.CopyBuffer(out, in, buf.B)
		in.Close()
		if copyErr != nil {
			out.Close()
			os.Remove(outputPath)
			return fmt.Errorf("%w: chunk %d copy failed: %v", ErrDataLoss, i, copyErr)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("staging: close output: %w", err)
	}
	return nil
}

// Purge recursively deletes the staging subdirectory for sessionID.
func (c *ChunkStaging) Purge(sessionID string) error {
	if err := os.RemoveAll(c.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("staging: purge: %w", err)
	}
	return nil
}

// PurgeExpired deletes any staging subdirectory whose mtime is older than
// now-timeout and returns the count deleted.
func (c *ChunkStaging) PurgeExpired(now time.Time, timeout time.Duration) (int, error) {
	entries, err := os.ReadDir(c.root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("staging: readdir root: %w", err)
	}

	// Sort for deterministic sweep order, matching the rest of the
	// codebase's preference for predictable iteration in tests.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	deleted := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "upload_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > timeout {
			if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
				return deleted, fmt.Errorf("staging: purge expired %s: %w", e.Name(), err)
			}
			deleted++
		}
	}
	return deleted, nil
}
