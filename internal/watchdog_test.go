package internal

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recordingObserver) Progress(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func TestWatchdog_ProgressReachesTotal(t *testing.T) {
	obs := &recordingObserver{}
	wd := NewWatchdog(100, 2, obs)
	wd.Start()

	events := []*Processing{
		{Path: "a", Status: Started()},
		{Path: "b", Status: Started()},
		{Path: "a", Status: Completed(40)},
		{Path: "c", Status: Started()},
		{Path: "b", Status: FailedSized(ErrScannerScan, 10)},
		{Path: "c", Status: Completed(50)},
	}
	for _, e := range events {
		if err := wd.Send(e); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if err := wd.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if len(obs.snaps) != len(events) {
		t.Fatalf("want %d snapshots, got %d", len(events), len(obs.snaps))
	}
	prev := -1.0
	for _, s := range obs.snaps {
		if s.Percentage < prev {
			t.Fatalf("percentage decreased: %v after %v", s.Percentage, prev)
		}
		if s.Percentage > 100 {
			t.Fatalf("percentage above 100: %v", s.Percentage)
		}
		prev = s.Percentage
	}
	last := wd.Latest()
	if last.Percentage != 100 || last.ScannedSize != 100 {
		t.Fatalf("want 100%%, got %+v", last)
	}
	for _, j := range last.Jobs {
		if j.Status.Kind == StatusStarted {
			t.Fatalf("no job should still be running: %+v", last.Jobs)
		}
	}
}

func TestWatchdog_CompletedViewBounded(t *testing.T) {
	wd := NewWatchdog(10, 3, nil)
	wd.Start()
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("f%d", i)
		_ = wd.Send(&Processing{Path: p, Status: Started()})
		_ = wd.Send(&Processing{Path: p, Status: Completed(1)})
	}
	if err := wd.Finish(); err != nil {
		t.Fatal(err)
	}
	last := wd.Latest()
	if len(last.Jobs) != 3 {
		t.Fatalf("completed view should hold 3, got %d", len(last.Jobs))
	}
	if last.Jobs[2].Path != "f9" {
		t.Fatalf("newest job should be last, got %+v", last.Jobs)
	}
}

func TestWatchdog_UnsizedErrorsTrimmed(t *testing.T) {
	wd := NewWatchdog(10, 2, nil)
	wd.Start()
	for i := 0; i < 5; i++ {
		p := fmt.Sprintf("gone%d", i)
		_ = wd.Send(&Processing{Path: p, Status: Started()})
		_ = wd.Send(&Processing{Path: p, Status: Failed(ErrScannerFileNotFound)})
	}
	if err := wd.Finish(); err != nil {
		t.Fatal(err)
	}
	last := wd.Latest()
	if len(last.Jobs) > 2 {
		t.Fatalf("running view should be trimmed to 2, got %d", len(last.Jobs))
	}
	if last.ScannedSize != 0 {
		t.Fatalf("unsized errors must not add progress, got %d", last.ScannedSize)
	}
}

func TestWatchdog_ZeroTotal(t *testing.T) {
	wd := NewWatchdog(0, 1, nil)
	if wd.Latest().Percentage != 100 {
		t.Fatalf("empty scan is complete, got %v", wd.Latest().Percentage)
	}
	wd.Start()
	_ = wd.Send(&Processing{Path: "empty", Status: Completed(0)})
	if err := wd.Finish(); err != nil {
		t.Fatal(err)
	}
	if wd.Latest().Percentage != 100 {
		t.Fatalf("want 100, got %v", wd.Latest().Percentage)
	}
}

func TestWatchdog_SendAfterFinish(t *testing.T) {
	wd := NewWatchdog(1, 1, nil)
	wd.Start()
	if err := wd.Finish(); err != nil {
		t.Fatal(err)
	}
	if err := wd.Send(&Processing{Path: "late", Status: Started()}); !errors.Is(err, ErrWatchdogSend) {
		t.Fatalf("want ErrWatchdogSend, got %v", err)
	}
}

func TestWatchdog_ClosedChannel(t *testing.T) {
	wd := NewWatchdog(1, 1, nil)
	wd.Start()
	close(wd.updates)
	<-wd.done
	if err := wd.Finish(); !errors.Is(err, ErrWatchdogRecv) {
		t.Fatalf("want ErrWatchdogRecv, got %v", err)
	}
}
