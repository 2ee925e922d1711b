package module

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Reason categorizes why a module could not be synchronized.
type Reason string

const (
	// ReasonQueryLocalFailed means the installed versions could not be listed.
	ReasonQueryLocalFailed Reason = "QueryLocalFailed"
	// ReasonNotInstalled means the module is missing and installation is disabled.
	ReasonNotInstalled Reason = "NotInstalledAndInstallDisabled"
	// ReasonUnsupportedSource means the module was installed from another repository.
	ReasonUnsupportedSource Reason = "UnsupportedSource"
	// ReasonInstallFailed means installing a missing module failed.
	ReasonInstallFailed Reason = "InstallFailed"
	// ReasonQueryLatestFailed means the repository could not report the latest version.
	ReasonQueryLatestFailed Reason = "QueryLatestFailed"
	// ReasonUpdateFailed means upgrading an installed module failed.
	ReasonUpdateFailed Reason = "UpdateFailed"
)

// Sentinels matching each reason with errors.Is.
var (
	ErrQueryLocalFailed  = errors.New("unable to list installed versions")
	ErrNotInstalled      = errors.New("module is not installed")
	ErrUnsupportedSource = errors.New("module was installed from an unsupported source")
	ErrInstallFailed     = errors.New("install failed")
	ErrQueryLatestFailed = errors.New("unable to find latest version")
	ErrUpdateFailed      = errors.New("update failed")
)

// Severity tells whether an error stops processing of its module.
type Severity int

const (
	// SeverityFatal aborts the module and is reported as an error.
	SeverityFatal Severity = iota
	// SeverityWarning is logged and the module is considered processed.
	SeverityWarning
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}

	return "error"
}

// Error is the tagged error reported for a module.
type Error struct {
	// Message is a human readable description.
	Message string
	// Reason is the error category.
	Reason Reason
	// Target is the module name the error refers to.
	Target string
	// Location is the call site that observed the failure, as file:line.
	Location string
	// Err is the underlying cause, if any.
	Err error
}

// NewError builds an Error and records the caller as its location.
func NewError(reason Reason, target, message string, cause error) *Error {
	return &Error{
		Message:  message,
		Reason:   reason,
		Target:   target,
		Location: callerLocation(2), //nolint:mnd // Skip NewError and callerLocation.
		Err:      cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Target, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Target, e.Message)
}

// Unwrap exposes the reason sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2) //nolint:mnd // Sentinel plus cause.
	if sentinel := e.Reason.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// Severity returns whether the error is fatal for its module.
// Query and update failures on an installed module are warnings only.
func (e *Error) Severity() Severity {
	switch e.Reason {
	case ReasonQueryLatestFailed, ReasonUpdateFailed:
		return SeverityWarning
	default:
		return SeverityFatal
	}
}

// Fields returns the structured logging context of the error.
func (e *Error) Fields() []any {
	return []any{
		"message", e.Message,
		"reason", string(e.Reason),
		"target", e.Target,
		"severity", e.Severity().String(),
		"location", e.Location,
		"error", e.Err,
	}
}

func (r Reason) sentinel() error {
	switch r {
	case ReasonQueryLocalFailed:
		return ErrQueryLocalFailed
	case ReasonNotInstalled:
		return ErrNotInstalled
	case ReasonUnsupportedSource:
		return ErrUnsupportedSource
	case ReasonInstallFailed:
		return ErrInstallFailed
	case ReasonQueryLatestFailed:
		return ErrQueryLatestFailed
	case ReasonUpdateFailed:
		return ErrUpdateFailed
	default:
		return nil
	}
}

func callerLocation(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	location := fmt.Sprintf("%s:%d", filepath.Base(file), line)
	if fn := runtime.FuncForPC(pc); fn != nil {
		location = fn.Name() + " (" + location + ")"
	}

	return location
}
