package internal

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// JobView is one line of the merged running/completed view.
type JobView struct {
	Path   string
	Status Status
}

// Snapshot is the progress state after an event.
type Snapshot struct {
	Percentage  float64
	ScannedSize int64
	TotalSize   int64
	// Jobs lists recently finished jobs (oldest first) followed by running ones.
	Jobs []JobView
}

// ProgressObserver receives a snapshot after every status event. It is called
// from the watchdog goroutine and should return quickly.
type ProgressObserver interface {
	Progress(Snapshot)
}

// ProgressFunc adapts a function to ProgressObserver.
type ProgressFunc func(Snapshot)

func (f ProgressFunc) Progress(s Snapshot) { f(s) }

// Watchdog is the single consumer of job status events.
type Watchdog struct {
	updates   chan *Processing
	done      chan struct{}
	totalSize int64
	limit     int
	observer  ProgressObserver

	mu     sync.RWMutex
	latest Snapshot
	err    error
}

// NewWatchdog creates a watchdog for a scan of totalSize bytes. limit bounds
// the completed view and is normally the pool size.
func NewWatchdog(totalSize int64, limit int, observer ProgressObserver) *Watchdog {
	if limit <= 0 {
		limit = 1
	}
	return &Watchdog{
		updates:   make(chan *Processing, limit*4),
		done:      make(chan struct{}),
		totalSize: totalSize,
		limit:     limit,
		observer:  observer,
		latest:    Snapshot{TotalSize: totalSize, Percentage: percentage(0, totalSize)},
	}
}

// Start runs the event loop on its own goroutine.
func (w *Watchdog) Start() {
	go func() {
		err := w.run()
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(w.done)
	}()
}

// Send hands an event to the watchdog. It fails once the watchdog has stopped.
func (w *Watchdog) Send(p *Processing) error {
	select {
	case <-w.done:
		return fmt.Errorf("%w: watchdog stopped", ErrWatchdogSend)
	default:
	}
	select {
	case w.updates <- p:
		return nil
	case <-w.done:
		return fmt.Errorf("%w: watchdog stopped", ErrWatchdogSend)
	}
}

// Finish sends the terminating sentinel and waits for the loop to exit,
// returning its error.
func (w *Watchdog) Finish() error {
	sendErr := w.Send(nil)
	<-w.done
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.err != nil {
		return w.err
	}
	return sendErr
}

// Latest returns the most recent snapshot.
func (w *Watchdog) Latest() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

func (w *Watchdog) run() error {
	var (
		scanned   int64
		running   []JobView
		completed []JobView
	)

	for {
		p, ok := <-w.updates
		if !ok {
			return fmt.Errorf("%w: channel closed without sentinel", ErrWatchdogRecv)
		}
		if p == nil {
			logrus.Debug("Stopping watchdog")
			return nil
		}

		if p.Status.Sized() {
			running = removeJob(running, p.Path)
			completed = append(completed, JobView{Path: p.Path, Status: p.Status})
			if len(completed) > w.limit {
				completed = completed[len(completed)-w.limit:]
			}
			scanned += p.Status.Size
		} else {
			running = upsertJob(running, JobView{Path: p.Path, Status: p.Status})
			running = trimRunning(running, w.limit)
		}

		snap := Snapshot{
			Percentage:  percentage(scanned, w.totalSize),
			ScannedSize: scanned,
			TotalSize:   w.totalSize,
			Jobs:        make([]JobView, 0, len(completed)+len(running)),
		}
		snap.Jobs = append(snap.Jobs, completed...)
		snap.Jobs = append(snap.Jobs, running...)

		w.mu.Lock()
		w.latest = snap
		w.mu.Unlock()

		if w.observer != nil {
			w.observer.Progress(snap)
		}
	}
}

func percentage(scanned, total int64) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(scanned) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}

func removeJob(jobs []JobView, path string) []JobView {
	out := jobs[:0]
	for _, j := range jobs {
		if j.Path != path {
			out = append(out, j)
		}
	}
	return out
}

func upsertJob(jobs []JobView, job JobView) []JobView {
	for i := range jobs {
		if jobs[i].Path == job.Path {
			jobs[i] = job
			return jobs
		}
	}
	return append(jobs, job)
}

// trimRunning drops the oldest failed-without-size entries once the view
// exceeds limit. Those jobs are finished and only kept for display.
func trimRunning(jobs []JobView, limit int) []JobView {
	for len(jobs) > limit {
		idx := -1
		for i, j := range jobs {
			if j.Status.Kind == StatusError {
				idx = i
				break
			}
		}
		if idx < 0 {
			return jobs
		}
		jobs = append(jobs[:idx], jobs[idx+1:]...)
	}
	return jobs
}
