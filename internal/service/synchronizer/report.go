package synchronizer

import (
	"context"

	"go.uber.org/multierr"

	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
)

// Status is the outcome of one module.
type Status string

const (
	// StatusUpToDate means the installed version is the latest one.
	StatusUpToDate Status = "up-to-date"
	// StatusUpdateAvailable means a newer version exists but updates are disabled.
	StatusUpdateAvailable Status = "update-available"
	// StatusInstalled means a missing module was installed.
	StatusInstalled Status = "installed"
	// StatusUpdated means an installed module was upgraded.
	StatusUpdated Status = "updated"
	// StatusWhatIf means the change was only reported because of dry-run mode.
	StatusWhatIf Status = "what-if"
	// StatusDeclined means the user did not confirm the change.
	StatusDeclined Status = "declined"
	// StatusWarning means a non-fatal error was logged.
	StatusWarning Status = "warning"
	// StatusFailed means the module could not be synchronized.
	StatusFailed Status = "failed"
)

// Result is the outcome for one requested module name.
type Result struct {
	// Name is the requested module name.
	Name string
	// Status is the outcome.
	Status Status
	// Action is the planned action, nil when planning did not complete.
	Action *module.Action
	// Version is the installed version after processing, if known.
	Version string
	// Err is set for warnings and failures.
	Err error
}

// Report collects the results of a run in request order.
type Report struct {
	// Results has one entry per requested name.
	Results []Result
}

// Failed returns the results with a fatal error.
func (r *Report) Failed() []Result {
	var failed []Result

	for _, result := range r.Results {
		if result.Status == StatusFailed {
			failed = append(failed, result)
		}
	}

	return failed
}

// Err combines the fatal errors of the run, or returns nil.
func (r *Report) Err() error {
	var err error

	for _, result := range r.Failed() {
		err = multierr.Append(err, result.Err)
	}

	return err
}

// Count returns how many results have the status.
func (r *Report) Count(status Status) int {
	count := 0

	for _, result := range r.Results {
		if result.Status == status {
			count++
		}
	}

	return count
}

// Log writes a one-line summary of the run.
func (r *Report) Log(ctx context.Context) {
	kvs := []any{"modules", len(r.Results)}

	for _, status := range []Status{
		StatusInstalled, StatusUpdated, StatusUpToDate, StatusUpdateAvailable,
		StatusWhatIf, StatusDeclined, StatusWarning, StatusFailed,
	} {
		if count := r.Count(status); count > 0 {
			kvs = append(kvs, string(status), count)
		}
	}

	if len(r.Failed()) > 0 {
		logger.WarnKV(ctx, "Synchronization finished with errors", kvs...)
		return
	}

	logger.InfoKV(ctx, "Synchronization finished", kvs...)
}
