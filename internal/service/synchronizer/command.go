package synchronizer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oshokin/modsync/internal/api/gallery"
	"github.com/oshokin/modsync/internal/config"
	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
	"github.com/oshokin/modsync/internal/prompt"
	"github.com/oshokin/modsync/internal/repository/installed"
	"github.com/oshokin/modsync/internal/service/common"
)

// packagesDirName is the cache subdirectory for downloaded packages.
const packagesDirName = "packages"

// Options are inputs accepted by the synchronizer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// Names are the modules to process; empty means the configured defaults.
	Names []string
	// Settings are the run switches.
	Settings Settings
	// Confirmer answers confirmation prompts; nil means the process terminal.
	Confirmer prompt.Confirmer
}

// Run loads the configuration, wires the collaborators and synchronizes every module.
// The returned report is never nil when err is a per-module failure.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "modsync")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	names := opts.Names
	if len(names) == 0 {
		names = cfg.DefaultModules
		logger.InfoKV(ctx, "No module names given, using defaults", "modules", names)
	}

	settings := opts.Settings
	if settings.Scope == "" {
		settings.Scope = module.ScopeCurrentUser
	}

	logActor(ctx, &settings)

	mutating := (settings.Install || settings.Update) && !settings.DryRun
	if mutating {
		marker, markerErr := acquireMarker(ctx, cfg.CacheDir)
		if markerErr != nil {
			return nil, markerErr
		}

		defer marker.release(ctx)
	}

	registry := installed.NewFileRegistry(map[module.Scope]string{
		module.ScopeCurrentUser: cfg.ModulesPath.CurrentUser,
		module.ScopeAllUsers:    cfg.ModulesPath.AllUsers,
	})

	client, err := gallery.NewClient(cfg.Repository.URL, gallery.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create repository client: %w", err)
	}

	installer := gallery.NewInstaller(client, registry, cfg.Repository.Name,
		filepath.Join(cfg.CacheDir, packagesDirName))

	confirmer := opts.Confirmer
	if confirmer == nil {
		confirmer = prompt.NewStdio()
	}

	logger.InfoKV(ctx, "Synchronizing modules",
		"repository", cfg.Repository.URL,
		"install", settings.Install,
		"update", settings.Update,
		"scope", string(settings.Scope),
		"dry_run", settings.DryRun)

	report := New(registry, installer, confirmer, cfg.Repository.TrustedHost, settings).Sync(ctx, names)
	report.Log(ctx)

	return report, report.Err()
}

// logActor records who runs the synchronization and warns about missing privileges.
func logActor(ctx context.Context, settings *Settings) {
	actor, err := common.DetectActor()
	if err != nil {
		logger.DebugKV(ctx, "Unable to detect actor", "error", err)
		return
	}

	logger.DebugKV(ctx, "Running as", "host", actor.Hostname, "user", actor.Username, "elevated", actor.Elevated)

	if settings.Scope == module.ScopeAllUsers && !actor.Elevated && (settings.Install || settings.Update) {
		logger.Warn(ctx, "AllUsers scope usually needs elevated privileges; installs may fail")
	}
}
