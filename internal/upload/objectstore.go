package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/multierr"
)

const anonymousOwner = "anonymous"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ObjectStore owns the finalised-object filesystem layout.
type ObjectStore struct {
	root string
}

// NewObjectStore returns an ObjectStore rooted at root, creating it if
// necessary.
func NewObjectStore(root string) (*ObjectStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: mkdir root: %w", err)
	}
	return &ObjectStore{root: root}, nil
}

// Root returns the storage root directory.
func (s *ObjectStore) Root() string { return s.root }

// Store moves sourcePath into its canonical, date- and owner-partitioned
// location and returns the path relative to the storage root.
func (s *ObjectStore) Store(sourcePath, originalFilename, owner string) (string, error) {
	now := time.Now().UTC()
	ownerSeg := owner
	if ownerSeg == "" {
		ownerSeg = anonymousOwner
	}

	ext := strings.TrimPrefix(filepath.Ext(originalFilename), ".")
	stem := strings.TrimSuffix(filepath.Base(originalFilename), filepath.Ext(originalFilename))
	stem = unsafeFilenameChars.ReplaceAllString(stem, "_")
	if len(stem) > 100 {
		stem = stem[:100]
	}
	if stem == "" {
		stem = "file"
	}

	suffix := ulid.Make().String() // 26 chars, time-monotonic + random
	name := stem + "_" + suffix
	if ext != "" {
		name += "." + ext
	}

	relDir := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"), ownerSeg)
	relPath := filepath.Join(relDir, name)

	targetDir := filepath.Join(s.root, relDir)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("objectstore: mkdir target: %w", err)
	}

	targetPath := filepath.Join(s.root, relPath)
	if err := os.Rename(sourcePath, targetPath); err != nil {
		return "", fmt.Errorf("objectstore: move: %w", err)
	}

	return filepath.ToSlash(relPath), nil
}

// Exists reports whether relPath exists under the storage root.
func (s *ObjectStore) Exists(relPath string) bool {
	_, err := os.Stat(s.FullPath(relPath))
	return err == nil
}

// Delete removes relPath from the storage root. Missing files are not an
// error.
func (s *ObjectStore) Delete(relPath string) error {
	err := os.Remove(s.FullPath(relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("objectstore: delete: %w", err)
	}
	return nil
}

// FullPath resolves relPath against the storage root.
func (s *ObjectStore) FullPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Stats reports the recursive file count and byte total under the
// storage root, ignoring the dedup index file.
type Stats struct {
	FileCount  int64
	TotalBytes int64
}

func (s *ObjectStore) Stats() (Stats, error) {
	var st Stats
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Base(path) == dedupIndexFilename {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		st.FileCount++
		st.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("objectstore: stats: %w", err)
	}
	return st, nil
}

// SweepResult reports the outcome of PurgeExpired: how many objects were
// scanned, deleted, and how many bytes that freed, plus any per-item
// error count.
type SweepResult struct {
	Scanned    int64
	Deleted    int64
	Errors     int64
	FreedBytes int64
}

// PurgeExpired deletes any object file whose mtime is older than
// now-retention and removes any directories that become empty as a
// result, leaving the dedup index file untouched. Per-item failures are
// aggregated with multierr rather than aborting the sweep, so one bad
// file doesn't stop the rest of the walk.
func (s *ObjectStore) PurgeExpired(now time.Time, retention time.Duration) (SweepResult, error) {
	var result SweepResult
	var errs error

	walkErr := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Errors++
			return nil
		}
		if d.IsDir() || filepath.Base(path) == dedupIndexFilename {
			return nil
		}
		result.Scanned++

		info, err := d.Info()
		if err != nil {
			errs = multierr.Append(errs, err)
			result.Errors++
			return nil
		}
		if now.Sub(info.ModTime()) <= retention {
			return nil
		}

		size := info.Size()
		if err := os.Remove(path); err != nil {
			errs = multierr.Append(errs, err)
			result.Errors++
			return nil
		}
		result.Deleted++
		result.FreedBytes += size
		return nil
	})
	if walkErr != nil {
		errs = multierr.Append(errs, walkErr)
		result.Errors++
	}

	if err := removeEmptyDirs(s.root); err != nil {
		errs = multierr.Append(errs, err)
		result.Errors++
	}

	return result, errs
}

// removeEmptyDirs deletes empty subdirectories under root, deepest first,
// never removing root itself.
func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("objectstore: walk for empty dirs: %w", err)
	}

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	var errs error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if len(entries) == 0 {
			if err := os.Remove(dir); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}
