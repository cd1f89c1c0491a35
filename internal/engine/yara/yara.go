// Package yara adapts libyara (through go-yara) to the engine interfaces.
package yara

import (
	"fmt"
	"io"
	"time"

	"SigHunter/internal/engine"

	"github.com/hillu/go-yara/v4"
)

// Engine compiles .yar/.yara sources with libyara.
type Engine struct {
	// Timeout bounds a single file evaluation. Zero means no limit.
	Timeout time.Duration
}

func New(timeout time.Duration) *Engine { return &Engine{Timeout: timeout} }

func (e *Engine) Name() string               { return "yara" }
func (e *Engine) SourceExtensions() []string { return []string{".yar", ".yara"} }
func (e *Engine) ArtifactExtension() string  { return ".yarac" }

func (e *Engine) NewCompiler() (engine.Compiler, error) {
	c, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("yara compiler init: %w", err)
	}
	return &compiler{main: c, timeout: e.Timeout}, nil
}

func (e *Engine) Load(r io.Reader) (engine.Ruleset, error) {
	rules, err := yara.ReadRules(r)
	if err != nil {
		return nil, err
	}
	return &ruleset{rules: rules, timeout: e.Timeout}, nil
}

// compiler validates every source in a scratch compiler first: libyara
// compilers cannot be used again once an add has failed.
type compiler struct {
	main    *yara.Compiler
	timeout time.Duration
	added   int
}

func (c *compiler) Add(name string, source []byte) error {
	scratch, err := yara.NewCompiler()
	if err != nil {
		return fmt.Errorf("yara compiler init: %w", err)
	}
	defer scratch.Destroy()
	if err := scratch.AddString(string(source), name); err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	if err := c.main.AddString(string(source), name); err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	c.added++
	return nil
}

func (c *compiler) Build() (engine.Ruleset, error) {
	defer c.main.Destroy()
	if c.added == 0 {
		return nil, fmt.Errorf("no rules added")
	}
	rules, err := c.main.GetRules()
	if err != nil {
		return nil, fmt.Errorf("get rules: %w", err)
	}
	return &ruleset{rules: rules, timeout: c.timeout}, nil
}

type ruleset struct {
	rules   *yara.Rules
	timeout time.Duration
}

// Scan evaluates one file. libyara caps concurrent scans per ruleset at 32.
func (r *ruleset) Scan(path string) (engine.MatchResult, error) {
	var matches yara.MatchRules
	if err := r.rules.ScanFile(path, 0, r.timeout, &matches); err != nil {
		return nil, err
	}
	out := make(engine.Matches, 0, len(matches))
	for _, m := range matches {
		meta := make(map[string]string, len(m.Metas))
		for _, item := range m.Metas {
			meta[item.Identifier] = fmt.Sprintf("%v", item.Value)
		}
		out = append(out, engine.MatchedRule{Identifier: m.Rule, Metadata: meta})
	}
	return out, nil
}

func (r *ruleset) Save(w io.Writer) error { return r.rules.Write(w) }

func (r *ruleset) Close() error {
	if r.rules != nil {
		r.rules.Destroy()
		r.rules = nil
	}
	return nil
}
