package internal

import (
	"bufio"
	"io"
	"os"
	"strings"

	"SigHunter/internal/engine"
)

// scanFile opens path and evaluates every rule against its lines.
func scanFile(path string, rules []*PatternRule) (engine.Matches, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return matchReader(f, rules)
}

const (
	readerBufSize = 64 * 1024
	// segmentOverlap is carried between the pieces of an over-long line so a
	// literal straddling the cut still matches.
	segmentOverlap = 4 * 1024
)

// matchReader streams lines and records each rule at most once, in rule order.
// Reading stops early once every rule has matched. Lines longer than the read
// buffer are evaluated in overlapping pieces, so memory stays bounded on files
// without newlines.
func matchReader(reader io.Reader, rules []*PatternRule) (engine.Matches, error) {
	br := bufio.NewReaderSize(reader, readerBufSize)
	hit := make([]bool, len(rules))
	remaining := len(rules)
	var carry []byte

	for remaining > 0 {
		b, err := br.ReadSlice('\n')
		if len(b) > 0 {
			seg := b
			if len(carry) > 0 {
				seg = append(carry, b...)
			}
			line := strings.TrimRight(string(seg), "\r\n")
			for i, rule := range rules {
				if hit[i] {
					continue
				}
				for _, p := range rule.Patterns {
					if p.Match(line) {
						hit[i] = true
						remaining--
						break
					}
				}
			}
			carry = carry[:0]
			if err == bufio.ErrBufferFull {
				carry = append(carry, b[max(0, len(b)-segmentOverlap):]...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			break
		}
	}

	var out engine.Matches
	for i, rule := range rules {
		if hit[i] {
			out = append(out, engine.MatchedRule{Identifier: rule.ID, Metadata: rule.Meta})
		}
	}
	return out, nil
}
