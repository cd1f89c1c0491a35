package internal

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"sync"

	"SigHunter/internal/engine"

	"github.com/dustin/go-humanize"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Report is the outcome of a scan.
type Report struct {
	Flags      []Flag
	Skips      []Skip
	TotalFiles int
	TotalSize  int64
	LogPath    string
	Stats      StatsSnapshot
}

// Scanner runs index -> rules -> pool scan for one root at a time.
type Scanner struct {
	cfg      Config
	store    *RuleStore
	observer ProgressObserver
}

// NewScanner keeps a prepared copy of cfg. observer may be nil.
func NewScanner(cfg Config, store *RuleStore, observer ProgressObserver) *Scanner {
	cfg.Prepare()
	return &Scanner{cfg: cfg, store: store, observer: observer}
}

// Run scans every regular file below root. ctx only bounds the rule update;
// once file evaluation starts the scan runs to completion.
func (s *Scanner) Run(ctx context.Context, root string) (*Report, error) {
	logrus.WithField("root", root).Info("Indexing path")
	idx, err := BuildIndex(root, s.cfg.MaxDepth)
	if err != nil {
		return nil, err
	}

	logrus.Info("Preparing rules")
	rules, err := s.store.EnsureCurrent(ctx)
	if err != nil {
		return nil, err
	}

	log, err := NewResultLog(s.cfg.LogDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := log.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close scan log")
		}
	}()

	return s.ScanIndex(idx, rules, log)
}

// collector gathers per-file results from the workers.
type collector struct {
	mu    sync.Mutex
	flags []Flag
	skips []Skip
	log   *ResultLog
	stats *AppStats
}

func (c *collector) flag(f Flag) {
	c.mu.Lock()
	c.flags = append(c.flags, f)
	c.mu.Unlock()
	c.stats.Flagged.Add(1)
	c.write(f)
}

func (c *collector) skip(sk Skip) {
	c.mu.Lock()
	c.skips = append(c.skips, sk)
	c.mu.Unlock()
	c.stats.Skipped.Add(1)
	c.write(sk)
}

func (c *collector) write(entry NotableFile) {
	if c.log == nil {
		return
	}
	if err := c.log.Log(entry); err != nil {
		logrus.WithError(err).Warn("Failed to write scan log entry")
	}
}

// firstError keeps the first coordination failure seen by any worker.
type firstError struct {
	once sync.Once
	err  error
}

func (f *firstError) set(err error) {
	f.once.Do(func() { f.err = err })
}

// ScanIndex evaluates every indexed file with rules on a bounded pool. log
// may be nil. Per-file failures become Skips; only pool and progress channel
// failures abort.
func (s *Scanner) ScanIndex(idx *Index, rules engine.Ruleset, log *ResultLog) (*Report, error) {
	stats := &AppStats{}
	stats.Start()
	stats.FilesFound.Add(int64(len(idx.Paths)))
	col := &collector{log: log, stats: stats}
	thresholds := s.cfg.Thresholds()

	var (
		wg     sync.WaitGroup
		failed firstError
		wd     *Watchdog
	)
	pool, err := ants.NewPoolWithFunc(s.cfg.MaxThreads, func(i interface{}) {
		defer wg.Done()
		path := i.(string)
		if err := s.scanPath(path, rules, thresholds, wd, col); err != nil {
			logrus.WithError(err).WithField("path", path).Error("Scan job failed")
			failed.set(err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScannerPool, err)
	}
	defer pool.Release()

	wd = NewWatchdog(idx.TotalSize, s.cfg.MaxThreads, s.observer)
	wd.Start()

	logrus.Infof("Scanning %d files (%s) with %d workers",
		len(idx.Paths), humanize.Bytes(uint64(idx.TotalSize)), s.cfg.MaxThreads)
	for _, path := range idx.Paths {
		wg.Add(1)
		if err := pool.Invoke(path); err != nil {
			wg.Done()
			logrus.WithError(err).WithField("path", path).Error("submit task")
			col.skip(Skip{Path: path, Reason: ErrScannerSubmit.Error()})
			if err := wd.Send(&Processing{Path: path, Status: Failed(fmt.Errorf("%w: %w", ErrScannerSubmit, err))}); err != nil {
				failed.set(err)
			}
		}
	}
	wg.Wait()

	if err := wd.Finish(); err != nil {
		return nil, err
	}
	if failed.err != nil {
		return nil, failed.err
	}

	report := &Report{
		Flags:      col.flags,
		Skips:      col.skips,
		TotalFiles: len(idx.Paths),
		TotalSize:  idx.TotalSize,
		Stats:      stats.Snapshot(),
	}
	if log != nil {
		report.LogPath = log.Path
	}
	logrus.WithFields(logrus.Fields{
		"flagged": len(report.Flags),
		"skipped": len(report.Skips),
		"elapsed": report.Stats.Elapsed,
	}).Info("Scan finished")
	return report, nil
}

// scanPath evaluates one file and reports its transitions to wd. The returned
// error is a coordination failure; problems with the file itself are recorded
// as Skips.
func (s *Scanner) scanPath(path string, rules engine.Ruleset, thresholds Thresholds, wd *Watchdog, col *collector) error {
	if err := wd.Send(&Processing{Path: path, Status: Started()}); err != nil {
		return err
	}
	col.stats.FilesProcessed.Add(1)

	info, err := os.Lstat(path)
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		col.skip(Skip{Path: path, Reason: ErrScannerFileNotFound.Error()})
		return wd.Send(&Processing{Path: path, Status: Failed(fmt.Errorf("%w: %s", ErrScannerFileNotFound, path))})
	case err != nil:
		col.skip(Skip{Path: path, Reason: err.Error()})
		return wd.Send(&Processing{Path: path, Status: Failed(fmt.Errorf("%w: %w", ErrScannerIO, err))})
	case !info.Mode().IsRegular():
		// Replaced since indexing.
		col.skip(Skip{Path: path, Reason: ErrIndexIrregular.Error()})
		return wd.Send(&Processing{Path: path, Status: Failed(fmt.Errorf("%w: %s", ErrIndexIrregular, path))})
	}
	size := info.Size()

	if s.cfg.skipped(path) {
		logrus.WithField("path", path).Debug("Skipping container")
		col.skip(Skip{Path: path, Reason: ErrScannerUnsupported.Error()})
		return wd.Send(&Processing{Path: path, Status: FailedSized(ErrScannerUnsupported, size)})
	}

	res, err := rules.Scan(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Failed to scan file")
		col.skip(Skip{Path: path, Reason: err.Error()})
		return wd.Send(&Processing{Path: path, Status: FailedSized(fmt.Errorf("%w: %w", ErrScannerScan, err), size)})
	}
	col.stats.BytesScanned.Add(size)

	feedback := ruleFeedback(res)
	if thresholds.Flagged(len(feedback)) {
		hash, err := FileSHA256(path)
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Failed to hash flagged file")
		}
		logrus.WithFields(logrus.Fields{"path": path, "rules": len(feedback), "sha256": hash}).Info("File flagged")
		col.flag(Flag{Path: path, Hash: hash, Rules: feedback, RuleCount: len(feedback)})
	} else if len(feedback) > 0 {
		logrus.WithFields(logrus.Fields{"path": path, "rules": len(feedback)}).Debug("Matches outside the flag window")
	}
	return wd.Send(&Processing{Path: path, Status: Completed(size)})
}
