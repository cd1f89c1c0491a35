package internal

import (
	"bufio"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RuleFeedback is a matched rule and its description.
type RuleFeedback struct {
	Name        string
	Description string
}

func (r RuleFeedback) String() string { return r.Name + " - " + r.Description }

// Flag is a file whose match count fell inside the configured window.
type Flag struct {
	Path      string
	Hash      string // hex sha256, empty if the file could not be hashed
	Rules     []RuleFeedback
	RuleCount int
}

// VirusTotalURL returns the lookup link for the flagged file, or "" without a
// hash.
func (f Flag) VirusTotalURL() string { return VirusTotalURL(f.Hash) }

// Skip is a file that could not be evaluated.
type Skip struct {
	Path   string
	Reason string
}

// NotableFile is an entry of the result log.
type NotableFile interface {
	LogLine() string
}

func (f Flag) LogLine() string {
	var b strings.Builder
	b.WriteString("[flagged]\t")
	b.WriteString(oneLine(f.Path))
	b.WriteByte('\t')
	b.WriteString(f.Hash)
	for _, r := range f.Rules {
		b.WriteByte('\t')
		b.WriteString(oneLine(r.Name))
		b.WriteByte('\t')
		b.WriteString(oneLine(r.Description))
	}
	return b.String()
}

func (s Skip) LogLine() string {
	return "[skipped]\t" + oneLine(s.Path) + "\t" + oneLine(s.Reason)
}

var lineReplacer = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

// oneLine keeps a field from breaking the tab/line structure.
func oneLine(s string) string { return lineReplacer.Replace(s) }

// ResultLog is the append-only per-scan log of flagged and skipped files.
// Log may be called from many goroutines.
type ResultLog struct {
	Path string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// maxLogSuffix bounds the attempts to find an unused log name within one second.
const maxLogSuffix = 1000

// NewResultLog creates dir if needed and opens a fresh log named after the
// current time. Scans started within the same second get a numeric suffix.
func NewResultLog(dir string) (*ResultLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLogIO, err)
	}
	stamp := time.Now().UTC().Format(artifactTimeLayout)
	for i := 0; i < maxLogSuffix; i++ {
		name := stamp + ".log"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.log", stamp, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, iofs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLogIO, err)
		}
		return &ResultLog{Path: path, f: f, w: bufio.NewWriter(f)}, nil
	}
	return nil, fmt.Errorf("%w: no free log name for %s in %s", ErrLogIO, stamp, dir)
}

// Log appends one line and flushes it.
func (l *ResultLog) Log(entry NotableFile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return fmt.Errorf("%w: log closed", ErrLogWrite)
	}
	if _, err := l.w.WriteString(entry.LogLine() + "\n"); err != nil {
		return fmt.Errorf("%w: %w", ErrLogWrite, err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrLogWrite, err)
	}
	return nil
}

func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.w.Flush()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
