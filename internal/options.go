package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	DefaultRemoteURL      = "https://api.github.com/repos/Raspirus/yara-rules/releases/latest"
	DefaultUpdateSchedule = "0 */6 * * *"
)

// Config is built once at startup and passed explicitly to every component.
type Config struct {
	RemoteURL      string        `yaml:"remote_url"`
	CacheDir       string        `yaml:"cache_dir"`
	LogDir         string        `yaml:"log_dir"`
	MinMatches     int           `yaml:"min_matches"`
	MaxMatches     int           `yaml:"max_matches"`
	MaxThreads     int           `yaml:"max_threads"`
	MaxDepth       int           `yaml:"max_depth"`
	Engine         string        `yaml:"engine"`
	SkipExtensions []string      `yaml:"skip_extensions"`
	UpdateTimeout  time.Duration `yaml:"update_timeout"`
	UpdateRetries  int           `yaml:"update_retries"`
	ScanTimeout    time.Duration `yaml:"scan_timeout"`
	CheckInterval  time.Duration `yaml:"check_interval"`
	UpdateSchedule string        `yaml:"update_schedule"`
	Offline        bool          `yaml:"offline"`
	KeepRulesets   int           `yaml:"keep_rulesets"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`

	skipMap map[string]struct{}
}

// Validate checks invariants.
func (c *Config) Validate() error {
	if c.MinMatches < 0 || c.MaxMatches < 0 {
		return errors.New("min_matches and max_matches must not be negative")
	}
	if c.MaxMatches > 0 && c.MaxMatches < c.Thresholds().effectiveMin() {
		return fmt.Errorf("max_matches (%d) is below min_matches (%d)", c.MaxMatches, c.Thresholds().effectiveMin())
	}
	if c.MaxThreads < 0 {
		return errors.New("max_threads must not be negative")
	}
	switch c.Engine {
	case "", "yara", "pattern":
	default:
		return fmt.Errorf("unknown engine %q (want yara or pattern)", c.Engine)
	}
	if !c.Offline && c.RemoteURL == "" {
		return errors.New("remote_url is required unless offline")
	}
	return nil
}

// Prepare builds fast lookup structures and sensible defaults. It is safe to
// call more than once.
func (c *Config) Prepare() {
	if c.MaxThreads <= 0 {
		c.MaxThreads = runtime.NumCPU()
	}
	if c.Engine == "" {
		c.Engine = "yara"
	}
	if c.RemoteURL == "" && !c.Offline {
		c.RemoteURL = DefaultRemoteURL
	}
	if c.CacheDir == "" || c.LogDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		base = filepath.Join(base, "sighunter")
		if c.CacheDir == "" {
			c.CacheDir = filepath.Join(base, "rules")
		}
		if c.LogDir == "" {
			c.LogDir = filepath.Join(base, "logs", "scan")
		}
	}
	if c.SkipExtensions == nil {
		c.SkipExtensions = DefaultSkipExtensions
	}
	c.SkipExtensions = NormalizeExtensions(c.SkipExtensions)
	c.skipMap = toSet(c.SkipExtensions)
	if c.UpdateTimeout <= 0 {
		c.UpdateTimeout = 30 * time.Second
	}
	if c.UpdateRetries <= 0 {
		c.UpdateRetries = 3
	}
	if c.UpdateSchedule == "" {
		c.UpdateSchedule = DefaultUpdateSchedule
	}
	if c.KeepRulesets <= 0 {
		c.KeepRulesets = 3
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Thresholds returns the classification window.
func (c *Config) Thresholds() Thresholds {
	return Thresholds{MinMatches: c.MinMatches, MaxMatches: c.MaxMatches}
}

// skipped reports whether path has an extension the engine must not open.
// Requires Prepare.
func (c *Config) skipped(path string) bool {
	return hasExtension(c.skipMap, path)
}

func toSet(s []string) map[string]struct{} {
	if len(s) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(s))
	for _, x := range s {
		m[x] = struct{}{}
	}
	return m
}
