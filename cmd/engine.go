package main

import (
	"SigHunter/internal"
	"SigHunter/internal/engine"
	"SigHunter/internal/engine/yara"
	"fmt"

	"github.com/sirupsen/logrus"
)

// libyara refuses more concurrent scans than this on one ruleset.
const yaraMaxThreads = 32

func newEngine(cfg *internal.Config) (engine.Engine, error) {
	switch cfg.Engine {
	case "yara":
		if cfg.MaxThreads > yaraMaxThreads {
			logrus.Warnf("Limiting workers to %d for the yara engine", yaraMaxThreads)
			cfg.MaxThreads = yaraMaxThreads
		}
		return yara.New(cfg.ScanTimeout), nil
	case "pattern":
		return internal.NewPatternEngine(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
