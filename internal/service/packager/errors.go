package packager

import (
	"errors"

	"github.com/oshokin/puppet-deb/internal/archive"
	"github.com/oshokin/puppet-deb/internal/source"
	"github.com/oshokin/puppet-deb/internal/staging"
)

// Stage names a pipeline state.
type Stage string

// Pipeline stages in execution order.
const (
	StageConfig        Stage = "CONFIG"
	StageReset         Stage = "RESET"
	StageInit          Stage = "INIT"
	StageStageModules  Stage = "STAGE_MODULES"
	StageWriteMetadata Stage = "WRITE_METADATA"
	StageWriteLauncher Stage = "WRITE_LAUNCHER"
	StageBuildArchive  Stage = "BUILD_ARCHIVE"
	StageVerifyArchive Stage = "VERIFY_ARCHIVE"
	StageSignArchive   Stage = "SIGN_ARCHIVE"
)

// Process exit codes. Every failure maps to a distinct non-zero value.
const (
	ExitOK              = 0
	ExitUnknown         = 1
	ExitConfig          = 2
	ExitReset           = 3
	ExitInit            = 4
	ExitMissingSource   = 5
	ExitMissingModule   = 6
	ExitStageModules    = 7
	ExitSourceFetch     = 8
	ExitWriteMetadata   = 9
	ExitWriteLauncher   = 10
	ExitLaunch          = 11
	ExitNonZeroExit     = 12
	ExitMissingArtifact = 13
	ExitMoveArtifact    = 14
	ExitVerifyArchive   = 15
	ExitSignArchive     = 16
)

var errMoveArtifact = errors.New("relocate archive")

// StageError is a failure tagged with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements error.
func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitCode maps a Run error to the process exit status.
// Specific causes win over the stage they surfaced in.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	causes := []struct {
		target error
		code   int
	}{
		{staging.ErrMissingSourceRepo, ExitMissingSource},
		{staging.ErrMissingModule, ExitMissingModule},
		{source.ErrSourceFetch, ExitSourceFetch},
		{archive.ErrLaunch, ExitLaunch},
		{archive.ErrNonZeroExit, ExitNonZeroExit},
		{archive.ErrMissingArtifact, ExitMissingArtifact},
		{errMoveArtifact, ExitMoveArtifact},
		{archive.ErrInvalidArtifact, ExitVerifyArchive},
		{archive.ErrSign, ExitSignArchive},
	}

	for _, c := range causes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return ExitUnknown
	}

	switch stageErr.Stage {
	case StageConfig:
		return ExitConfig
	case StageReset:
		return ExitReset
	case StageInit:
		return ExitInit
	case StageStageModules:
		return ExitStageModules
	case StageWriteMetadata:
		return ExitWriteMetadata
	case StageWriteLauncher:
		return ExitWriteLauncher
	case StageVerifyArchive:
		return ExitVerifyArchive
	case StageSignArchive:
		return ExitSignArchive
	default:
		return ExitUnknown
	}
}
