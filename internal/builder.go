package internal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mholt/archives"
	"github.com/sirupsen/logrus"
)

// build compiles every rule source in the bundle at bundlePath and publishes
// the result as the artifact for version published. Sources that fail to
// compile are logged and skipped.
func (u *Updater) build(ctx context.Context, bundlePath string, published time.Time) (string, error) {
	fsys, err := archives.FileSystem(ctx, bundlePath, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderArchive, err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer closer.Close()
	}

	compiler, err := u.engine.NewCompiler()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderCompile, err)
	}

	exts := toSet(u.engine.SourceExtensions())
	var (
		failed   *multierror.Error
		compiled int
	)
	walkErr := iofs.WalkDir(fsys, ".", func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			failed = multierror.Append(failed, fmt.Errorf("%s: %w", p, err))
			return nil
		}
		if d.IsDir() || !hasExtension(exts, p) {
			return nil
		}
		data, err := iofs.ReadFile(fsys, p)
		if err != nil {
			failed = multierror.Append(failed, fmt.Errorf("%s: %w", p, err))
			return nil
		}
		if err := compiler.Add(p, data); err != nil {
			logrus.WithError(err).WithField("member", p).Warn("Skipping rule source that failed to compile")
			failed = multierror.Append(failed, err)
			return nil
		}
		compiled++
		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderArchive, walkErr)
	}
	if failed != nil {
		logrus.WithField("failed", len(failed.Errors)).Warnf("%d rule sources were skipped", len(failed.Errors))
	}
	if compiled == 0 {
		if failed != nil {
			return "", fmt.Errorf("%w: %w", ErrBuilderNoRules, failed.ErrorOrNil())
		}
		return "", ErrBuilderNoRules
	}
	logrus.WithField("sources", compiled).Infof("Compiled %s rules", u.engine.Name())

	rules, err := compiler.Build()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderCompile, err)
	}
	defer rules.Close()

	allowlistCacheDir(u.cacheDir)

	target := filepath.Join(u.cacheDir, ArtifactName(published, u.engine.ArtifactExtension()))
	tmp, err := os.CreateTemp(u.cacheDir, ".build-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBuilderIO, err)
	}
	tmpName := tmp.Name()
	w := bufio.NewWriter(tmp)
	if err := rules.Save(w); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrBuilderSerialization, err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrBuilderSerialization, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrBuilderIO, err)
	}
	// Readers only ever see complete artifacts.
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: %w", ErrBuilderIO, err)
	}
	logrus.WithField("path", target).Info("Published ruleset")
	return target, nil
}
