package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oshokin/modsync/internal/config"
	"github.com/oshokin/modsync/internal/domain/module"
	"github.com/oshokin/modsync/internal/logger"
	"github.com/oshokin/modsync/internal/prompt"
	"github.com/oshokin/modsync/internal/service/synchronizer"
	"github.com/oshokin/modsync/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel is the minimal level of written log entries.
	logLevel string
	// settings collects the switches of the run.
	settings = synchronizer.Settings{Scope: module.ScopeCurrentUser}

	// rootCmd represents the base command for synchronizing modules.
	rootCmd = &cobra.Command{
		Use:   "modsync [module...]",
		Short: "Keep PowerShell modules in sync with the PowerShell Gallery.",
		Long: `Checks every requested PowerShell module against the locally installed versions.

Missing modules are installed with --install and outdated ones upgraded with --update,
always from the trusted gallery. Every change asks for confirmation unless --force is given,
and --dry-run (or --what-if) only reports what would change.

Module names are taken from the arguments, from piped standard input (one per line),
or from default_modules in the configuration file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			names := args
			if len(names) == 0 && !prompt.IsInteractive(os.Stdin) {
				piped, err := readNames(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read module names: %w", err)
				}

				names = piped
			}

			options := &synchronizer.Options{
				ConfigPath: configPath,
				Names:      names,
				Settings:   settings,
			}

			_, err := synchronizer.Run(ctx, options)

			return err
		},
	}
)

// Execute runs the modsync CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readNames returns the non-empty, non-comment lines of r.
func readNames(r io.Reader) ([]string, error) {
	var names []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		names = append(names, line)
	}

	return names, scanner.Err()
}

// normalizeFlagName maps the what-if spelling onto dry-run.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "what-if" {
		name = "dry-run"
	}

	return pflag.NormalizedName(name)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := rootCmd.Flags()

	// Setup command flags with consistent naming and descriptions.
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVarP(&settings.Install, "install", "i", false, "install modules that are missing")
	flags.BoolVarP(&settings.Update, "update", "u", false, "upgrade modules that are outdated")
	flags.Var(&settings.Scope, "scope", "installation scope: CurrentUser or AllUsers")
	flags.BoolVar(&settings.DryRun, "dry-run", false, "report planned changes without applying them (alias --what-if)")
	flags.BoolVarP(&settings.Force, "force", "f", false, "apply changes without asking for confirmation")

	flags.SetNormalizeFunc(normalizeFlagName)
}
