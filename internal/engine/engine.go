// Package engine describes the pattern-matching capability the scanner drives.
// Implementations compile rule sources into a ruleset, persist it, and
// evaluate files against it.
package engine

import "io"

// DefaultDescription is reported for rules without a description metadata entry.
const DefaultDescription = "No description set"

// MatchedRule is a single rule that matched a scanned file.
type MatchedRule struct {
	Identifier string
	Metadata   map[string]string
}

// Description returns the rule's "description" metadata or DefaultDescription.
func (r MatchedRule) Description() string {
	if d, ok := r.Metadata["description"]; ok && d != "" {
		return d
	}
	return DefaultDescription
}

// MatchResult is the outcome of evaluating one file.
type MatchResult interface {
	MatchedRules() []MatchedRule
}

// Ruleset is a compiled, immutable rule collection. Scan must be safe for
// concurrent use.
type Ruleset interface {
	Scan(path string) (MatchResult, error)
	Save(w io.Writer) error
	Close() error
}

// Compiler accumulates rule sources. A failing Add leaves the compiler usable
// for further sources.
type Compiler interface {
	Add(name string, source []byte) error
	Build() (Ruleset, error)
}

// Engine is a pattern-matching backend.
type Engine interface {
	Name() string
	// SourceExtensions lists the file extensions (with dot) of rule sources.
	SourceExtensions() []string
	// ArtifactExtension is appended to compiled ruleset file names.
	ArtifactExtension() string
	NewCompiler() (Compiler, error)
	Load(r io.Reader) (Ruleset, error)
}

// Matches is a plain MatchResult.
type Matches []MatchedRule

func (m Matches) MatchedRules() []MatchedRule { return m }
