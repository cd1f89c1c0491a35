package internal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"SigHunter/internal/engine"

	"github.com/sirupsen/logrus"
)

// Pattern - fast interface for line match.
type Pattern interface {
	Match(string) bool
	Desc() string // source form, used when serializing
}

type RegexPattern struct{ re *regexp.Regexp }

func (p *RegexPattern) Match(s string) bool { return p.re.MatchString(s) }
func (p *RegexPattern) Desc() string        { return "re:" + p.re.String() }

type PlainPattern struct {
	s           string
	insensitive bool
}

func (p *PlainPattern) Match(s string) bool {
	if p.insensitive {
		return strings.Contains(strings.ToLower(s), p.s)
	}
	return strings.Contains(s, p.s)
}

func (p *PlainPattern) Desc() string {
	if p.insensitive {
		return "plain:i:" + p.s
	}
	return "plain:" + p.s
}

// PatternRule is a named group of patterns. It matches a file when any of its
// patterns matches any line.
type PatternRule struct {
	ID       string
	Meta     map[string]string
	Patterns []Pattern
}

// ParsePatternRules reads pattern rule source.
// Lines:
//
//	# comment
//	rule Eicar_Test
//	meta:description=EICAR test file
//	plain:X5O!P%@AP
//	plain:i:mimikatz
//	re:^user=\w+$
//	literal text
func ParsePatternRules(src io.Reader) ([]*PatternRule, error) {
	var (
		rules []*PatternRule
		cur   *PatternRule
		seen  = map[string]struct{}{}
	)
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if id, ok := strings.CutPrefix(line, "rule "); ok {
			id = strings.TrimSpace(id)
			if id == "" {
				return nil, fmt.Errorf("line %d: rule without identifier", lineNum)
			}
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("line %d: duplicated rule identifier %q", lineNum, id)
			}
			seen[id] = struct{}{}
			cur = &PatternRule{ID: id, Meta: map[string]string{}}
			rules = append(rules, cur)
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: pattern outside of a rule", lineNum)
		}
		switch {
		case strings.HasPrefix(line, "meta:"):
			key, value, ok := strings.Cut(line[5:], "=")
			if !ok || strings.TrimSpace(key) == "" {
				return nil, fmt.Errorf("line %d: invalid meta %q", lineNum, line)
			}
			cur.Meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
		case strings.HasPrefix(line, "re:"):
			re, err := regexp.Compile(line[3:])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid regex %q: %w", lineNum, line, err)
			}
			cur.Patterns = append(cur.Patterns, &RegexPattern{re: re})
		case strings.HasPrefix(line, "plain:i:"):
			cur.Patterns = append(cur.Patterns, &PlainPattern{s: strings.ToLower(line[8:]), insensitive: true})
		case strings.HasPrefix(line, "plain:"):
			cur.Patterns = append(cur.Patterns, &PlainPattern{s: line[6:]})
		default:
			cur.Patterns = append(cur.Patterns, &PlainPattern{s: line})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, r := range rules {
		if len(r.Patterns) == 0 {
			return nil, fmt.Errorf("rule %s has no patterns", r.ID)
		}
	}
	return rules, nil
}

// PatternEngine is a pure-Go engine over plain, case-insensitive and regex
// literals. It is the default when libyara is not available.
type PatternEngine struct{}

func NewPatternEngine() *PatternEngine { return &PatternEngine{} }

func (PatternEngine) Name() string               { return "pattern" }
func (PatternEngine) SourceExtensions() []string { return []string{".pat"} }
func (PatternEngine) ArtifactExtension() string  { return ".patc" }

func (PatternEngine) NewCompiler() (engine.Compiler, error) {
	return &patternCompiler{seen: map[string]struct{}{}}, nil
}

func (PatternEngine) Load(r io.Reader) (engine.Ruleset, error) {
	rules, err := ParsePatternRules(r)
	if err != nil {
		return nil, err
	}
	return &PatternRuleset{rules: rules}, nil
}

type patternCompiler struct {
	rules []*PatternRule
	seen  map[string]struct{}
}

func (c *patternCompiler) Add(name string, source []byte) error {
	rules, err := ParsePatternRules(bytes.NewReader(source))
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, err)
	}
	for _, r := range rules {
		if _, dup := c.seen[r.ID]; dup {
			return fmt.Errorf("compile %s: duplicated rule identifier %q", name, r.ID)
		}
	}
	for _, r := range rules {
		c.seen[r.ID] = struct{}{}
	}
	c.rules = append(c.rules, rules...)
	logrus.Debugf("Compiled %d pattern rules from %s", len(rules), name)
	return nil
}

func (c *patternCompiler) Build() (engine.Ruleset, error) {
	if len(c.rules) == 0 {
		return nil, fmt.Errorf("no rules added")
	}
	return &PatternRuleset{rules: c.rules}, nil
}

// PatternRuleset is immutable after construction and safe for concurrent scans.
type PatternRuleset struct {
	rules []*PatternRule
}

func NewPatternRuleset(rules []*PatternRule) *PatternRuleset { return &PatternRuleset{rules: rules} }

func (r *PatternRuleset) Len() int { return len(r.rules) }

func (r *PatternRuleset) Scan(path string) (engine.MatchResult, error) {
	return scanFile(path, r.rules)
}

// Save writes the normalised source form, which Load parses back.
func (r *PatternRuleset) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, rule := range r.rules {
		fmt.Fprintf(bw, "rule %s\n", rule.ID)
		keys := make([]string, 0, len(rule.Meta))
		for k := range rule.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(bw, "meta:%s=%s\n", k, rule.Meta[k])
		}
		for _, p := range rule.Patterns {
			fmt.Fprintln(bw, p.Desc())
		}
	}
	return bw.Flush()
}

func (r *PatternRuleset) Close() error { return nil }
