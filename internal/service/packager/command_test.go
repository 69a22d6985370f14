package packager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/puppet-deb/internal/archive"
	"github.com/oshokin/puppet-deb/internal/config"
	"github.com/oshokin/puppet-deb/internal/logger"
	"github.com/oshokin/puppet-deb/internal/source"
	"github.com/oshokin/puppet-deb/internal/staging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// writeConfig stores cfg as a job file in a temporary directory.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func jobConfig(t *testing.T, sourcePath string) *config.Config {
	t.Helper()

	return &config.Config{
		BaseDir: filepath.Join(t.TempDir(), "build"),
		Source:  config.Source{Path: sourcePath},
		Modules: []string{"alpha", "beta"},
		Package: config.Package{
			Name:       "demo",
			Version:    "1.0-1",
			Maintainer: "Russ <russ@example.com>",
		},
		Build: config.Build{Command: filepath.Join(t.TempDir(), "missing-dpkg-deb")},
	}
}

// TestExitCode maps every failure class to its own status.
func TestExitCode(t *testing.T) {
	t.Parallel()

	wrap := func(stage Stage, err error) error {
		return &StageError{Stage: stage, Err: fmt.Errorf("context: %w", err)}
	}

	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitUnknown},
		{wrap(StageConfig, config.ErrInvalid), ExitConfig},
		{wrap(StageReset, os.ErrPermission), ExitReset},
		{wrap(StageInit, os.ErrPermission), ExitInit},
		{wrap(StageStageModules, staging.ErrMissingSourceRepo), ExitMissingSource},
		{wrap(StageStageModules, staging.ErrMissingModule), ExitMissingModule},
		{wrap(StageStageModules, os.ErrPermission), ExitStageModules},
		{wrap(StageStageModules, source.ErrSourceFetch), ExitSourceFetch},
		{wrap(StageWriteMetadata, os.ErrPermission), ExitWriteMetadata},
		{wrap(StageWriteLauncher, os.ErrPermission), ExitWriteLauncher},
		{wrap(StageBuildArchive, archive.ErrLaunch), ExitLaunch},
		{wrap(StageBuildArchive, archive.ErrNonZeroExit), ExitNonZeroExit},
		{wrap(StageBuildArchive, archive.ErrMissingArtifact), ExitMissingArtifact},
		{wrap(StageBuildArchive, errMoveArtifact), ExitMoveArtifact},
		{wrap(StageVerifyArchive, archive.ErrInvalidArtifact), ExitVerifyArchive},
		{wrap(StageSignArchive, archive.ErrSign), ExitSignArchive},
	}

	seen := make(map[int]bool)

	for _, c := range cases {
		require.Equal(t, c.want, ExitCode(c.err), "%v", c.err)

		if c.err != nil {
			require.NotZero(t, ExitCode(c.err))
		}

		seen[c.want] = true
	}

	require.Len(t, seen, len(cases))
}

// TestStageErrorUnwrap keeps the cause reachable and names the stage.
func TestStageErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := &StageError{Stage: StageInit, Err: os.ErrPermission}

	require.ErrorIs(t, err, os.ErrPermission)
	require.Equal(t, "INIT: permission denied", err.Error())
}

// TestRunMissingConfig reports and logs a configuration failure.
func TestRunMissingConfig(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	ctx := logger.ToContext(context.Background(), logger.New(zapcore.DebugLevel, &out))

	_, err := Run(ctx, &Options{ConfigPath: filepath.Join(t.TempDir(), "none.yaml")})
	require.Error(t, err)
	require.Equal(t, ExitConfig, ExitCode(err))

	require.Contains(t, out.String(), "Packaging failed")
	require.Contains(t, out.String(), "CONFIG")
	require.Contains(t, out.String(), "none.yaml")
}

// TestRunMissingSourceRepo stops before creating anything under opt/.
func TestRunMissingSourceRepo(t *testing.T) {
	t.Parallel()

	cfg := jobConfig(t, filepath.Join(t.TempDir(), "no-puppet"))
	path := writeConfig(t, cfg)

	_, err := Run(context.Background(), &Options{ConfigPath: path})
	require.ErrorIs(t, err, staging.ErrMissingSourceRepo)
	require.Equal(t, ExitMissingSource, ExitCode(err))

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	require.Equal(t, StageStageModules, stageErr.Stage)

	stagingRoot := filepath.Join(cfg.BaseDir, "demo")
	require.DirExists(t, filepath.Join(stagingRoot, "DEBIAN"))
	require.NoDirExists(t, filepath.Join(stagingRoot, "opt"))
}

// TestRunLaunchFailure stages everything and then fails on the missing utility.
func TestRunLaunchFailure(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	for _, m := range []string{"alpha", "beta"} {
		require.NoError(t, os.MkdirAll(filepath.Join(src, "modules", m), 0o755))
	}

	cfg := jobConfig(t, src)
	path := writeConfig(t, cfg)

	_, err := Run(context.Background(), &Options{ConfigPath: path, Version: "2.0-1"})
	require.ErrorIs(t, err, archive.ErrLaunch)
	require.Equal(t, ExitLaunch, ExitCode(err))

	control, err := os.ReadFile(filepath.Join(cfg.BaseDir, "demo", "DEBIAN", "control"))
	require.NoError(t, err)
	require.Contains(t, string(control), "Version: 2.0-1\n")
}

// TestRunInvalidOverride validates command-line overrides like the job file.
func TestRunInvalidOverride(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, jobConfig(t, t.TempDir()))

	_, err := Run(context.Background(), &Options{ConfigPath: path, Version: "1 0"})
	require.ErrorIs(t, err, config.ErrInvalid)
	require.Equal(t, ExitConfig, ExitCode(err))
}

// TestManifest renders the manifest without touching the filesystem.
func TestManifest(t *testing.T) {
	t.Parallel()

	cfg := jobConfig(t, t.TempDir())
	path := writeConfig(t, cfg)

	manifest, err := Manifest(&Options{ConfigPath: path})
	require.NoError(t, err)
	require.Equal(t, "node default {\n  include alpha\n  include beta\n}\n", manifest)
	require.NoDirExists(t, cfg.BaseDir)
}
