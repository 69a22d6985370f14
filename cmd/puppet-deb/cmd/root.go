package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/puppet-deb/internal/config"
	"github.com/oshokin/puppet-deb/internal/logger"
	"github.com/oshokin/puppet-deb/internal/service/packager"
	"github.com/oshokin/puppet-deb/internal/version"
)

var (
	// configPath to the YAML job file.
	configPath string
	// logLevel is the minimum level of printed diagnostics.
	logLevel string
	// baseDir overrides base_dir from the job file.
	baseDir string
	// versionOverride overrides package.version from the job file.
	versionOverride string

	// rootCmd builds the package described by the job file.
	rootCmd = &cobra.Command{
		Use:   "puppet-deb",
		Short: "Bundle Puppet modules into a Debian package.",
		Long: `Builds a Debian package carrying a selection of Puppet modules, a generated
site.pp that includes them and a launcher script applying that manifest.

The staging tree under <base_dir>/<package> is recreated on every run and the
resulting archive is written to <base_dir>/<package>_<version>.deb.
Every failure exits with its own status code.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		PersistentPreRunE: applyLogLevel,
		RunE:              runBuild,
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Build the package (same as running without a subcommand).",
		Args:  cobra.NoArgs,
		RunE:  runBuild,
	}

	manifestCmd = &cobra.Command{
		Use:   "manifest",
		Short: "Print the site.pp the job file would produce.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manifest, err := packager.Manifest(options())
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), manifest)

			return err
		},
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter job file.",
		Long:  "Writes a starter job file to --config. An existing file is never overwritten.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Save(configPath, config.Starter()); err != nil {
				return &packager.StageError{Stage: packager.StageConfig, Err: err}
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Job file written to %s\n", configPath)

			return err
		},
	}
)

// Execute runs the puppet-deb CLI and exits with the status of the failed stage.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Diagnostics share stdout with the logger.
	rootCmd.SetErr(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(packager.ExitCode(err))
	}
}

func runBuild(_ *cobra.Command, _ []string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	_, err := packager.Run(ctx, options())

	return err
}

func options() *packager.Options {
	return &packager.Options{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		Version:    versionOverride,
	}
}

func applyLogLevel(_ *cobra.Command, _ []string) error {
	level, ok := logger.ParseLogLevel(logLevel)
	if !ok {
		return &packager.StageError{
			Stage: packager.StageConfig,
			Err:   fmt.Errorf("%w: unknown log level %q", config.ErrInvalid, logLevel),
		}
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to job file")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&baseDir, "base-dir", "", "override base_dir from the job file")
	flags.StringVar(&versionOverride, "version-override", "", "override package.version from the job file")

	rootCmd.AddCommand(buildCmd, manifestCmd, initCmd)
}
