package synchronizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/oshokin/modsync/internal/api/gallery"
	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
	"github.com/oshokin/modsync/internal/prompt"
	"github.com/oshokin/modsync/internal/service/common"
)

// LocalRegistry lists installed module versions.
type LocalRegistry interface {
	List(ctx context.Context, name string) ([]module.Installed, error)
}

// Repository is the trusted remote module repository.
type Repository interface {
	FindLatest(ctx context.Context, name string) (*module.Remote, error)
	Install(ctx context.Context, req *gallery.InstallRequest) (*module.Installed, error)
}

// Settings are the switches of one run.
type Settings struct {
	// Install allows installing missing modules.
	Install bool
	// Update allows upgrading outdated modules.
	Update bool
	// Scope is where modules are installed.
	Scope module.Scope
	// DryRun reports planned changes without applying them.
	DryRun bool
	// Force applies changes without asking.
	Force bool
}

// Synchronizer processes module names one after another.
type Synchronizer struct {
	// local lists installed versions.
	local LocalRegistry
	// repository finds and installs versions.
	repository Repository
	// confirmer is asked before every change unless forced.
	confirmer prompt.Confirmer
	// trustedHost is the only origin accepted for updates.
	trustedHost string
	// settings are the switches of the run.
	settings Settings
	// sessions lists running PowerShell sessions; nil disables the check.
	sessions func() ([]common.Process, error)
}

// New creates a synchronizer.
func New(
	local LocalRegistry,
	repository Repository,
	confirmer prompt.Confirmer,
	trustedHost string,
	settings Settings,
) *Synchronizer {
	if settings.Scope == "" {
		settings.Scope = module.ScopeCurrentUser
	}

	if confirmer == nil {
		confirmer = prompt.Always(false)
	}

	return &Synchronizer{
		local:       local,
		repository:  repository,
		confirmer:   confirmer,
		trustedHost: strings.ToLower(strings.TrimSpace(trustedHost)),
		settings:    settings,
		sessions:    common.PowerShellProcesses,
	}
}

// Sync processes every name in order and returns one result per name.
func (s *Synchronizer) Sync(ctx context.Context, names []string) *Report {
	report := &Report{
		Results: make([]Result, 0, len(names)),
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			report.Results = append(report.Results, Result{
				Name:   name,
				Status: StatusFailed,
				Err:    fmt.Errorf("%s: %w", name, err),
			})

			continue
		}

		report.Results = append(report.Results, s.syncOne(ctx, strings.TrimSpace(name)))
	}

	return report
}

// syncOne runs the per-module state machine.
func (s *Synchronizer) syncOne(ctx context.Context, name string) Result {
	ctx = logger.WithKV(ctx, "module", name)

	req := &module.Request{
		Name:    name,
		Install: s.settings.Install,
		Update:  s.settings.Update,
		Scope:   s.settings.Scope,
	}

	logger.Debug(ctx, "Looking for installed versions")

	installedVersions, err := s.local.List(ctx, name)
	if err != nil {
		return s.fail(ctx, name, nil,
			module.NewError(module.ReasonQueryLocalFailed, name, "unable to list installed versions", err))
	}

	current := module.Highest(installedVersions)
	if current == nil {
		action, planErr := PlanMissing(req)
		if planErr != nil {
			return s.fail(ctx, name, nil, planErr)
		}

		return s.confirmAndApply(ctx, action, "")
	}

	logger.InfoKV(ctx, "Found installed module",
		"version", current.Version.Original(), "scope", string(current.Scope), "path", current.Path)

	if err = CheckOrigin(current, s.trustedHost); err != nil {
		return s.fail(ctx, name, nil, err)
	}

	latest, err := s.repository.FindLatest(ctx, name)
	if err != nil {
		return s.fail(ctx, name, nil,
			module.NewError(module.ReasonQueryLatestFailed, name, "unable to find the latest version", err))
	}

	action, status := PlanUpgrade(req, current, latest)
	if action.Mutates() {
		return s.confirmAndApply(ctx, action, current.Version.Original())
	}

	if status == StatusUpdateAvailable {
		logger.WarnKV(ctx, "Update available, run with --update to install it",
			"installed", current.Version.Original(), "latest", latest.Version.Original())
	} else {
		logger.InfoKV(ctx, "Module is up to date", "version", current.Version.Original())
	}

	return Result{Name: name, Status: status, Action: action, Version: current.Version.Original()}
}

// confirmAndApply resolves confirmation and applies the action.
func (s *Synchronizer) confirmAndApply(ctx context.Context, action *module.Action, currentVersion string) Result {
	if !action.Mutates() {
		return Result{Name: action.Name, Status: StatusUpToDate, Action: action, Version: currentVersion}
	}

	confirmed, err := s.confirm(ctx, action)
	if err != nil {
		return s.fail(ctx, action.Name, action,
			module.NewError(failureReason(action), action.Name, "confirmation failed", err))
	}

	result := s.apply(ctx, action, confirmed)
	if result.Version == "" {
		result.Version = currentVersion
	}

	return result
}

// confirm decides whether the action may run: never in dry-run mode,
// always in force mode, otherwise as answered.
func (s *Synchronizer) confirm(ctx context.Context, action *module.Action) (bool, error) {
	switch {
	case s.settings.DryRun:
		return false, nil
	case s.settings.Force:
		return true, nil
	default:
		return s.confirmer.Confirm(ctx, action.Question())
	}
}

// apply performs the action when confirmed, otherwise only reports it.
func (s *Synchronizer) apply(ctx context.Context, action *module.Action, confirmed bool) Result {
	result := Result{
		Name:   action.Name,
		Action: action,
	}

	if !confirmed {
		if s.settings.DryRun {
			logger.InfoKV(ctx, "What if: "+action.Question(), "scope", string(action.Scope))

			result.Status = StatusWhatIf
		} else {
			logger.InfoKV(ctx, "Skipped, not confirmed", "action", action.Kind.String())

			result.Status = StatusDeclined
		}

		return result
	}

	s.warnOpenSessions(ctx)

	request := &gallery.InstallRequest{
		Name:         action.Name,
		Version:      action.Version,
		Scope:        action.Scope,
		Force:        true,
		AllowClobber: true,
	}

	installedModule, err := s.repository.Install(ctx, request)
	if err != nil {
		message := "installation failed"
		if action.Kind == module.ActionUpdate {
			message = "update failed"
		}

		return s.fail(ctx, action.Name, action, module.NewError(failureReason(action), action.Name, message, err))
	}

	result.Status = StatusInstalled
	if action.Kind == module.ActionUpdate {
		result.Status = StatusUpdated
	}

	if installedModule != nil && installedModule.Version != nil {
		result.Version = installedModule.Version.Original()
	}

	logger.InfoKV(ctx, "Module "+string(result.Status), "version", result.Version, "scope", string(action.Scope))

	return result
}

// fail logs a tagged error with its structured context and turns it into a result.
func (s *Synchronizer) fail(ctx context.Context, name string, action *module.Action, err error) Result {
	result := Result{
		Name:   name,
		Action: action,
		Status: StatusFailed,
		Err:    err,
	}

	tagged, ok := err.(*module.Error) //nolint:errorlint // Errors built in this package are never wrapped.
	if !ok {
		logger.ErrorKV(ctx, "Module failed", "error", err)
		return result
	}

	if tagged.Severity() == module.SeverityWarning {
		logger.WarnKV(ctx, tagged.Message, tagged.Fields()...)

		result.Status = StatusWarning

		return result
	}

	logger.ErrorKV(ctx, tagged.Message, tagged.Fields()...)

	return result
}

// warnOpenSessions tells the user that running sessions keep old versions loaded.
func (s *Synchronizer) warnOpenSessions(ctx context.Context) {
	if s.sessions == nil {
		return
	}

	sessions, err := s.sessions()
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)
		return
	}

	if len(sessions) > 0 {
		logger.WarnKV(ctx, "PowerShell sessions are running and keep the previous version loaded until restarted",
			"sessions", len(sessions))
	}
}

// failureReason maps the action to the reason reported when it fails.
// A failed install of a missing module is fatal, a failed update is a warning.
func failureReason(action *module.Action) module.Reason {
	if action.Kind == module.ActionUpdate {
		return module.ReasonUpdateFailed
	}

	return module.ReasonInstallFailed
}
