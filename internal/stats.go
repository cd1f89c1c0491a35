package internal

import (
	"sync/atomic"
	"time"
)

// AppStats atomic counters for one scan
type AppStats struct {
	start          time.Time
	FilesFound     atomic.Int64
	FilesProcessed atomic.Int64
	BytesScanned   atomic.Int64
	Flagged        atomic.Int64
	Skipped        atomic.Int64
}

func (s *AppStats) Start() {
	s.start = time.Now()
}

func (s *AppStats) Elapsed() time.Duration {
	return time.Since(s.start)
}

// StatsSnapshot is a plain copy of AppStats.
type StatsSnapshot struct {
	FilesFound     int64
	FilesProcessed int64
	BytesScanned   int64
	Flagged        int64
	Skipped        int64
	Elapsed        time.Duration
}

func (s *AppStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		FilesFound:     s.FilesFound.Load(),
		FilesProcessed: s.FilesProcessed.Load(),
		BytesScanned:   s.BytesScanned.Load(),
		Flagged:        s.Flagged.Load(),
		Skipped:        s.Skipped.Load(),
		Elapsed:        s.Elapsed(),
	}
}
