package internal

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// seedArtifact writes a compiled pattern ruleset for version into dir.
func seedArtifact(t *testing.T, dir string, version time.Time, src string) string {
	t.Helper()
	rules, err := ParsePatternRules(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, ArtifactName(version, ".patc"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := NewPatternRuleset(rules).Save(f); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestStore(cfg *Config) *RuleStore {
	return NewRuleStore(cfg, NewPatternEngine(), newTestUpdater(cfg))
}

func TestRuleStore_OfflineWithoutRules(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Offline = true
	if _, err := newTestStore(cfg).EnsureCurrent(context.Background()); !errors.Is(err, ErrScannerNoRules) {
		t.Fatalf("want ErrScannerNoRules, got %v", err)
	}
}

func TestRuleStore_OfflineUsesCache(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Offline = true
	v := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	seedArtifact(t, cfg.CacheDir, v, eicarRule)

	rules, err := newTestStore(cfg).EnsureCurrent(context.Background())
	if err != nil {
		t.Fatalf("EnsureCurrent: %v", err)
	}
	if !rules.Version.Equal(v) {
		t.Fatalf("version %v, want %v", rules.Version, v)
	}
}

func TestRuleStore_UpdatesThenReuses(t *testing.T) {
	r := newRemote(t, "2024-05-01T10:00:00Z", buildZip(t, map[string]string{"r/e.pat": eicarRule}))
	cfg := testConfig(t, r.url())
	store := newTestStore(cfg)
	ctx := context.Background()

	first, err := store.EnsureCurrent(ctx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.EnsureCurrent(ctx)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Fatal("unchanged version should reuse the loaded ruleset")
	}
	if r.downloads.Load() != 1 {
		t.Fatalf("want one download, got %d", r.downloads.Load())
	}
	if r.releases.Load() != 2 {
		t.Fatalf("zero check interval checks every time, got %d", r.releases.Load())
	}
	if store.Current() != second {
		t.Fatal("Current should return the loaded ruleset")
	}
}

func TestRuleStore_CheckInterval(t *testing.T) {
	r := newRemote(t, "2024-05-01T10:00:00Z", buildZip(t, map[string]string{"r/e.pat": eicarRule}))
	cfg := testConfig(t, r.url())
	cfg.CheckInterval = time.Hour
	store := newTestStore(cfg)
	ctx := context.Background()

	if _, err := store.EnsureCurrent(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.EnsureCurrent(ctx); err != nil {
		t.Fatal(err)
	}
	if r.releases.Load() != 1 {
		t.Fatalf("fresh cache must not hit the remote, got %d", r.releases.Load())
	}

	// Refresh ignores the interval.
	if _, err := store.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if r.releases.Load() != 2 {
		t.Fatalf("Refresh must check the remote, got %d", r.releases.Load())
	}

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := store.EnsureCurrent(ctx); err != nil {
		t.Fatal(err)
	}
	if r.releases.Load() != 3 {
		t.Fatalf("stale check must hit the remote, got %d", r.releases.Load())
	}
}

func TestRuleStore_NewerRemoteReplacesAndPrunes(t *testing.T) {
	r := newRemote(t, "2024-05-01T10:00:00Z", buildZip(t, map[string]string{"r/e.pat": eicarRule}))
	cfg := testConfig(t, r.url())
	cfg.KeepRulesets = 1
	old := seedArtifact(t, cfg.CacheDir, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "rule Old\nplain:old\n")
	store := newTestStore(cfg)

	rules, err := store.EnsureCurrent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rules.Version.Year() != 2024 {
		t.Fatalf("want the 2024 ruleset, got %v", rules.Version)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old ruleset should be pruned, stat err %v", err)
	}
}

func TestRuleStore_RemoteDownKeepsLocal(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	cfg := testConfig(t, url)
	v := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	seedArtifact(t, cfg.CacheDir, v, eicarRule)

	rules, err := newTestStore(cfg).EnsureCurrent(context.Background())
	if err != nil {
		t.Fatalf("failed update with a local ruleset must not be fatal: %v", err)
	}
	if !rules.Version.Equal(v) {
		t.Fatalf("version %v", rules.Version)
	}
}

func TestRuleStore_RemoteDownNoLocal(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	cfg := testConfig(t, url)
	if _, err := newTestStore(cfg).EnsureCurrent(context.Background()); !errors.Is(err, ErrScannerNoRules) {
		t.Fatalf("want ErrScannerNoRules, got %v", err)
	}
}

func TestRuleStore_CorruptArtifact(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Offline = true
	writeFile(t, filepath.Join(cfg.CacheDir, ArtifactName(time.Now(), ".patc")), "garbage without rules\n")

	if _, err := newTestStore(cfg).EnsureCurrent(context.Background()); !errors.Is(err, ErrScannerRuleDeserialize) {
		t.Fatalf("want ErrScannerRuleDeserialize, got %v", err)
	}
}

func TestRuleStore_CorruptNewestFallsBackToOlder(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Offline = true
	older := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	seedArtifact(t, cfg.CacheDir, older, eicarRule)
	writeFile(t, filepath.Join(cfg.CacheDir, ArtifactName(older.AddDate(1, 0, 0), ".patc")), "garbage without rules\n")
	store := newTestStore(cfg)

	rules, err := store.EnsureCurrent(context.Background())
	if err != nil {
		t.Fatalf("an older loadable ruleset should be used: %v", err)
	}
	if !rules.Version.Equal(older) {
		t.Fatalf("version %v, want %v", rules.Version, older)
	}
	if store.Current() != rules {
		t.Fatal("fallback ruleset should become current")
	}
}

func TestRuleStore_Prune(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Offline = true
	var paths []string
	for i := 1; i <= 4; i++ {
		paths = append(paths, seedArtifact(t, cfg.CacheDir, time.Date(2020+i, 1, 1, 0, 0, 0, 0, time.UTC), eicarRule))
	}
	writeFile(t, filepath.Join(cfg.CacheDir, "notes.txt"), "keep me")
	store := newTestStore(cfg)

	if err := store.Prune(2); err != nil {
		t.Fatal(err)
	}
	for i, p := range paths {
		_, err := os.Stat(p)
		if kept := i >= 2; kept != (err == nil) {
			t.Fatalf("%s: kept=%v err=%v", p, kept, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.CacheDir, "notes.txt")); err != nil {
		t.Fatal("unrelated files must survive pruning")
	}
	v, ok, err := store.LocalVersion()
	if err != nil || !ok || v.Year() != 2024 {
		t.Fatalf("LocalVersion after prune: %v %v %v", v, ok, err)
	}
}
