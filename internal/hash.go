package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

const virusTotalSearch = "https://virustotal.com/gui/search/"

// FileSHA256 streams path through sha256 and returns the hex digest.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VirusTotalURL is the lookup link for a hex sha256 digest.
func VirusTotalURL(hash string) string {
	if hash == "" {
		return ""
	}
	return virusTotalSearch + hash
}
