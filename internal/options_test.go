package internal

import (
	"runtime"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	ok := Config{RemoteURL: "http://x"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	bad := []Config{
		{RemoteURL: "http://x", MinMatches: -1},
		{RemoteURL: "http://x", MaxMatches: -1},
		{RemoteURL: "http://x", MinMatches: 3, MaxMatches: 2},
		{RemoteURL: "http://x", Engine: "clamav"},
		{RemoteURL: "http://x", MaxThreads: -2},
		{},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error for %+v", i, c)
		}
	}

	// min 0 means at least one, so max 1 is a valid window
	if err := (&Config{RemoteURL: "http://x", MaxMatches: 1}).Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	// offline needs no remote
	if err := (&Config{Offline: true}).Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestConfig_PrepareDefaults(t *testing.T) {
	c := Config{SkipExtensions: []string{"ZIP", "tar,gz"}}
	c.Prepare()
	if c.MaxThreads != runtime.NumCPU() {
		t.Fatalf("threads default: %d", c.MaxThreads)
	}
	if c.Engine != "yara" || c.RemoteURL != DefaultRemoteURL {
		t.Fatalf("defaults not applied: %+v", c)
	}
	if c.CacheDir == "" || c.LogDir == "" || c.CacheDir == c.LogDir {
		t.Fatalf("dirs: %q %q", c.CacheDir, c.LogDir)
	}
	if !c.skipped("/x/a.zip") || !c.skipped("b.GZ") || c.skipped("c.7z") {
		t.Fatal("skip list must be normalised and replace the defaults")
	}

	// idempotent
	before := c.SkipExtensions
	c.Prepare()
	if len(c.SkipExtensions) != len(before) {
		t.Fatalf("second Prepare changed skip list: %v", c.SkipExtensions)
	}
}

func TestConfig_PrepareDefaultSkipList(t *testing.T) {
	var c Config
	c.Prepare()
	for _, p := range []string{"a.zip", "a.7z", "a.rar"} {
		if !c.skipped(p) {
			t.Errorf("%s should be skipped by default", p)
		}
	}
	if c.skipped("a.exe") {
		t.Error("exe must be scanned")
	}
}

func TestConfig_EmptySkipListScansEverything(t *testing.T) {
	c := Config{SkipExtensions: []string{}}
	c.Prepare()
	if c.skipped("a.zip") {
		t.Fatal("explicit empty list disables skipping")
	}
}
