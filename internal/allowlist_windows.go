//go:build windows

package internal

import (
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// allowlistCacheDir asks Windows Defender to leave the rule cache alone. The
// compiled rules contain signature strings that real-time protection would
// otherwise quarantine. Failure is only logged.
func allowlistCacheDir(dir string) {
	quoted := "'" + strings.ReplaceAll(dir, "'", "''") + "'"
	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command",
		"Add-MpPreference -ExclusionPath "+quoted)
	if out, err := cmd.CombinedOutput(); err != nil {
		logrus.WithError(err).WithField("output", strings.TrimSpace(string(out))).
			Warn("Failed to add rule cache to Windows Defender exclusions")
		return
	}
	logrus.WithField("dir", dir).Debug("Rule cache excluded from Windows Defender")
}
