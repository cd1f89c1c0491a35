package internal

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// Index holds every regular file below a root and their cumulative size.
// It is immutable once BuildIndex returns.
type Index struct {
	Paths     []string
	TotalSize int64
}

// BuildIndex collects the regular files reachable from root without following
// symlinks. maxDepth limits recursion (0 - unlimited). Problems with single
// entries are logged and the entry dropped; only an unusable root is fatal.
func BuildIndex(root string, maxDepth int) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexNotFound, root, err)
	}

	info, err := statEntry(abs)
	if err != nil {
		return nil, err
	}

	idx := &Index{}
	if !info.IsDir() {
		if err := idx.addFile(abs); err != nil {
			return nil, err
		}
		return idx, nil
	}

	err = WalkWithDepth(abs, maxDepth, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == abs {
				return fmt.Errorf("%w: %s: %w", ErrIndexEntries, path, err)
			}
			logrus.WithError(err).WithField("path", path).Warn("Failed to read entry; skipping")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		if d.Type()&iofs.ModeSymlink != 0 {
			logrus.WithField("path", path).Warn("Symlink; skipping")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if err := idx.addFile(path); err != nil {
			logrus.WithError(err).Warn("Skipping")
			return nil
		}
		logrus.Tracef("Indexed %s", path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.Infof("Indexed %d files (%s)", len(idx.Paths), humanize.Bytes(uint64(idx.TotalSize)))
	return idx, nil
}

// addFile validates a single file and accounts its size.
func (idx *Index) addFile(path string) error {
	info, err := statEntry(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrIndexIrregular, path)
	}
	idx.Paths = append(idx.Paths, path)
	idx.TotalSize += info.Size()
	return nil
}

// statEntry is Lstat with errors mapped onto the indexing taxonomy.
func statEntry(path string) (os.FileInfo, error) {
	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrIndexPermission, path, err)
	case info.Mode()&iofs.ModeSymlink != 0:
		return nil, fmt.Errorf("%w: %s", ErrIndexSymlink, path)
	}
	return info, nil
}

// WalkWithDepth uses WalkDir and cuts branches by depth.
func WalkWithDepth(root string, maxDepth int, fn iofs.WalkDirFunc) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fn(path, d, err)
		}
		if maxDepth > 0 {
			rel, _ := filepath.Rel(root, path)
			if rel != "." && depthCount(rel) > maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		return fn(path, d, nil)
	})
}

func depthCount(rel string) int {
	if rel == "" {
		return 0
	}
	return strings.Count(rel, string(os.PathSeparator)) + 1
}
