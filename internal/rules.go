package internal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SigHunter/internal/engine"

	"github.com/sirupsen/logrus"
)

const lastCheckFile = ".last_check"

// Rules is a loaded ruleset and the version it was published at.
type Rules struct {
	engine.Ruleset
	Version time.Time
	Path    string
}

// RuleStore owns the on-disk rule cache and the currently loaded ruleset.
// Replacing the loaded ruleset is atomic; scans holding an older one keep
// using it until they finish.
type RuleStore struct {
	dir           string
	engine        engine.Engine
	updater       *Updater
	offline       bool
	checkInterval time.Duration
	keep          int

	mu      sync.Mutex // serialises updates
	current atomic.Pointer[Rules]
	now     func() time.Time
}

func NewRuleStore(cfg *Config, eng engine.Engine, updater *Updater) *RuleStore {
	return &RuleStore{
		dir:           cfg.CacheDir,
		engine:        eng,
		updater:       updater,
		offline:       cfg.Offline,
		checkInterval: cfg.CheckInterval,
		keep:          cfg.KeepRulesets,
		now:           time.Now,
	}
}

// LocalVersion returns the newest cached ruleset version, if any.
func (s *RuleStore) LocalVersion() (time.Time, bool, error) {
	versions, err := s.artifacts()
	if err != nil || len(versions) == 0 {
		return time.Time{}, false, err
	}
	return versions[0].version, true, nil
}

type artifact struct {
	version time.Time
	path    string
}

// artifacts lists cached rulesets newest first.
func (s *RuleStore) artifacts() ([]artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteLocalIO, err)
	}
	var out []artifact
	ext := s.engine.ArtifactExtension()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if t, ok := ParseArtifactName(e.Name(), ext); ok {
			out = append(out, artifact{version: t, path: filepath.Join(s.dir, e.Name())})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version.After(out[j].version) })
	return out, nil
}

// EnsureCurrent returns the newest ruleset, checking the remote first unless
// offline or checked within the configured interval. A failed update is
// tolerated when a local ruleset exists.
func (s *RuleStore) EnsureCurrent(ctx context.Context) (*Rules, error) {
	return s.ensure(ctx, false)
}

// Refresh checks the remote regardless of when it was last checked.
func (s *RuleStore) Refresh(ctx context.Context) (*Rules, error) {
	return s.ensure(ctx, true)
}

func (s *RuleStore) ensure(ctx context.Context, force bool) (*Rules, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, have, err := s.LocalVersion()
	if err != nil {
		return nil, err
	}

	updated := false
	switch {
	case s.offline:
		logrus.Debug("Offline; using cached rules")
	case have && !force && s.fresh():
		logrus.Debug("Rules checked recently; skipping remote check")
	default:
		updated = s.update(ctx, local, have)
	}

	rules, err := s.loadNewest()
	if err != nil {
		return nil, err
	}
	if updated {
		if err := s.prune(s.keep); err != nil {
			logrus.WithError(err).Warn("Failed to prune old rulesets")
		}
	}
	return rules, nil
}

// loadNewest loads the newest cached ruleset that deserializes, falling back
// to older ones. The loaded ruleset becomes current.
func (s *RuleStore) loadNewest() (*Rules, error) {
	list, err := s.artifacts()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrScannerNoRules
	}
	cur := s.current.Load()
	var firstErr error
	for _, a := range list {
		if cur != nil && cur.Version.Equal(a.version) {
			return cur, nil
		}
		rules, err := s.load(a.version)
		if err != nil {
			logrus.WithError(err).WithField("path", a.path).Warn("Cached ruleset unusable; trying an older one")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.current.Store(rules)
		return rules, nil
	}
	return nil, firstErr
}

// update reports whether a new ruleset was published.
func (s *RuleStore) update(ctx context.Context, local time.Time, have bool) bool {
	published, err := s.updater.Update(ctx, local, have)
	switch {
	case err == nil:
		logrus.WithField("version", published).Info("Rules updated")
		s.markChecked()
		return true
	case errors.Is(err, ErrRemoteAlreadyUpdated):
		logrus.Info("Rules are up to date")
		s.markChecked()
	case have:
		logrus.WithError(err).Warn("Rule update failed; continuing with local rules")
	default:
		logrus.WithError(err).Error("Rule update failed")
	}
	return false
}

func (s *RuleStore) load(version time.Time) (*Rules, error) {
	path := filepath.Join(s.dir, ArtifactName(version, s.engine.ArtifactExtension()))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScannerRuleLoad, err)
	}
	defer f.Close()

	rs, err := s.engine.Load(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScannerRuleDeserialize, path, err)
	}
	logrus.WithFields(logrus.Fields{"version": version, "engine": s.engine.Name()}).Info("Loaded rules")
	return &Rules{Ruleset: rs, Version: version, Path: path}, nil
}

// Current returns the loaded ruleset or nil.
func (s *RuleStore) Current() *Rules { return s.current.Load() }

// Prune deletes all but the keep newest rulesets. The loaded one is never
// deleted.
func (s *RuleStore) Prune(keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune(keep)
}

func (s *RuleStore) prune(keep int) error {
	if keep < 1 {
		keep = 1
	}
	list, err := s.artifacts()
	if err != nil {
		return err
	}
	cur := s.current.Load()
	for i, a := range list {
		if i < keep || (cur != nil && cur.Path == a.path) {
			continue
		}
		if err := os.Remove(a.path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrRemoteLocalIO, err)
		}
		logrus.WithField("path", a.path).Debug("Pruned old ruleset")
	}
	return nil
}

func (s *RuleStore) fresh() bool {
	if s.checkInterval <= 0 {
		return false
	}
	data, err := os.ReadFile(filepath.Join(s.dir, lastCheckFile))
	if err != nil {
		return false
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	return s.now().Sub(t) < s.checkInterval
}

func (s *RuleStore) markChecked() {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		logrus.WithError(err).Warn("Failed to record update check")
		return
	}
	stamp := s.now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(filepath.Join(s.dir, lastCheckFile), []byte(stamp+"\n"), 0644); err != nil {
		logrus.WithError(err).Warn("Failed to record update check")
	}
}
