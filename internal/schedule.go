package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RefreshScheduler refreshes the rule store on a cron expression. Overlapping
// runs are skipped.
type RefreshScheduler struct {
	mu      sync.RWMutex
	c       *cron.Cron
	entryID cron.EntryID
	expr    string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRefreshScheduler creates a stopped scheduler. Call Start to activate it.
func NewRefreshScheduler(store *RuleStore, expr string) (*RefreshScheduler, error) {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	s := &RefreshScheduler{
		c:      cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		expr:   expr,
		ctx:    ctx,
		cancel: cancel,
	}
	id, err := s.c.AddFunc(expr, func() {
		if _, err := store.Refresh(s.ctx); err != nil {
			logrus.WithError(err).Error("Scheduled rule refresh failed")
			return
		}
		if next := s.NextRunAt(); next != nil {
			logrus.WithField("next", next.Format(time.RFC3339)).Info("Scheduled rule refresh done")
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.entryID = id
	logrus.WithField("cron", expr).Info("Rule refresh scheduled")
	return s, nil
}

// Start begins the cron loop.
func (s *RefreshScheduler) Start() {
	s.c.Start()
}

// Stop cancels a running refresh and waits for it to return.
func (s *RefreshScheduler) Stop() {
	s.cancel()
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time. Before Start it is computed from
// the expression.
func (s *RefreshScheduler) NextRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry := s.c.Entry(s.entryID)
	if entry.ID == 0 {
		return nil
	}
	t := entry.Next
	if t.IsZero() {
		t = entry.Schedule.Next(time.Now())
	}
	return &t
}

// Expr returns the cron expression.
func (s *RefreshScheduler) Expr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expr
}
