package reconciler

import (
	"time"

	kerrors "github.com/PolarWolf314/pantry/internal/errors"
)

// Failure records why one cookbook could not be synced.
type Failure struct {
	Name    string
	Version string
	Err     error
}

func (f Failure) Error() string {
	return f.Name + ": " + f.Err.Error()
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report is the outcome of one sync run.
type Report struct {
	RunID     string
	Fetched   int
	Skipped   int
	Failed    []Failure
	Conflicts []Conflict
	LocalOnly []string
	// Attempts is the number of HTTP requests made, retries included, when
	// the source reports it.
	Attempts int64
	Duration time.Duration
}

// ExitCode is 0 when every cookbook synced and 1 when any failed.
func (r *Report) ExitCode() int {
	if len(r.Failed) > 0 {
		return kerrors.ExitPartial
	}
	return kerrors.ExitOK
}

// FailedNames returns the names of the failed cookbooks in report order.
func (r *Report) FailedNames() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Name)
	}
	return names
}
