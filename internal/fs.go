package internal

import (
	"path/filepath"
	"strings"
	"time"
)

// artifactTimeLayout names compiled rulesets and scan logs. Colons are replaced
// so the names stay valid on every filesystem.
const artifactTimeLayout = "2006-01-02T15-04-05Z"

// DefaultSkipExtensions are container formats the engine is never pointed at.
var DefaultSkipExtensions = []string{
	".zip", ".tar", ".gz", ".bz2", ".xz",
	".rar", ".br", ".lz4", ".lz", ".mz",
	".sz", ".s2", ".zz", ".zst", ".7z",
}

// NormalizeExtensions turns "zip, .TAR,gz" style input into ".zip", ".tar", ".gz".
func NormalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ext := range in {
		for _, v := range strings.Split(ext, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			v = strings.TrimPrefix(v, ".")
			out = append(out, "."+strings.ToLower(v))
		}
	}
	return out
}

// hasExtension by lower-cased extension. O(1) map lookup
func hasExtension(set map[string]struct{}, path string) bool {
	if set == nil {
		return false
	}
	_, ok := set[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ArtifactName is the cache file name of a ruleset published at t.
func ArtifactName(t time.Time, ext string) string {
	return t.UTC().Format(artifactTimeLayout) + ext
}

// ParseArtifactName recovers the publication time from a cache file name.
// Names that do not parse are not rulesets.
func ParseArtifactName(name, ext string) (time.Time, bool) {
	base, ok := strings.CutSuffix(name, ext)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(artifactTimeLayout, base)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
