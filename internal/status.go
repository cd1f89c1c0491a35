package internal

import "fmt"

// StatusKind is the state of a scan job.
type StatusKind int

const (
	// StatusStarted - the file is being processed
	StatusStarted StatusKind = iota
	// StatusCompleted - the file was evaluated
	StatusCompleted
	// StatusError - processing failed, with or without a known size
	StatusError
)

// Status is a job state transition reported by a scan worker.
type Status struct {
	Kind    StatusKind
	Size    int64
	HasSize bool
	Err     error
}

func Started() Status { return Status{Kind: StatusStarted} }

func Completed(size int64) Status {
	return Status{Kind: StatusCompleted, Size: size, HasSize: true}
}

// Failed is an error before the file size was known.
func Failed(err error) Status { return Status{Kind: StatusError, Err: err} }

// FailedSized is an error after the file size was known; the size still
// counts towards progress.
func FailedSized(err error, size int64) Status {
	return Status{Kind: StatusError, Err: err, Size: size, HasSize: true}
}

// Sized reports whether the status moves the job out of the running view.
func (s Status) Sized() bool {
	return s.Kind != StatusStarted && s.HasSize
}

func (s Status) String() string {
	switch s.Kind {
	case StatusCompleted:
		return "[OK]"
	case StatusError:
		return fmt.Sprintf("[Err] %v", s.Err)
	default:
		return "[..]"
	}
}

// Processing holds a path and the status it has now entered.
type Processing struct {
	Path   string
	Status Status
}
