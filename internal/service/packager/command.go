package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mitchellh/go-ps"

	"github.com/oshokin/puppet-deb/internal/archive"
	"github.com/oshokin/puppet-deb/internal/config"
	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
	"github.com/oshokin/puppet-deb/internal/source"
	"github.com/oshokin/puppet-deb/internal/staging"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// ConfigPath is the YAML job file (defaults to puppet-deb.yaml).
	ConfigPath string
	// BaseDir overrides base_dir from the job file when set.
	BaseDir string
	// Version overrides package.version from the job file when set.
	Version string
}

// Result describes the files produced by a successful run.
type Result struct {
	// Artifact is the versioned .deb path.
	Artifact string
	// Signature is the detached signature path, empty when signing is disabled.
	Signature string
}

// packager runs the pipeline for one job.
// It is unexported: callers use Run, which loads and validates the job first.
type packager struct {
	// job is the immutable description of the package being built.
	job *debpkg.Job
	// build holds the packaging utility and post-build settings.
	build config.Build
	// builder invokes the packaging utility.
	builder *archive.Builder
}

// step is one stage of the pipeline.
type step struct {
	stage Stage
	run   func(ctx context.Context) error
}

// Run loads the job file, resolves the module source and builds the package.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "puppet-deb")
	ctx = logger.WithKV(ctx, "run_id", uuid.NewString())

	cfg, err := loadConfig(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Packaging failed", "stage", StageConfig, "config", opts.ConfigPath, "error", err)
		return nil, &StageError{Stage: StageConfig, Err: err}
	}

	ctx = logger.WithKV(ctx, "package", cfg.Package.Name, "version", cfg.Package.Version)

	warnConcurrentRuns(ctx)

	sourceRepo, cleanup, err := source.Resolve(ctx, cfg.Source, cfg.BaseDir)
	if err != nil {
		logger.ErrorKV(ctx, "Packaging failed", "stage", StageStageModules, "error", err)
		return nil, &StageError{Stage: StageStageModules, Err: err}
	}
	defer cleanup()

	p := newPackager(cfg.Job(sourceRepo), cfg.Build)

	return p.Run(ctx)
}

// Manifest loads the job file and returns the entry manifest it would generate.
func Manifest(opts *Options) (string, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return "", &StageError{Stage: StageConfig, Err: err}
	}

	return staging.RenderManifest(cfg.Modules), nil
}

func loadConfig(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.BaseDir == "" && opts.Version == "" {
		return cfg, nil
	}

	if opts.BaseDir != "" {
		cfg.BaseDir = opts.BaseDir
	}

	if opts.Version != "" {
		cfg.Package.Version = opts.Version
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newPackager(job *debpkg.Job, build config.Build) *packager {
	return &packager{
		job:     job,
		build:   build,
		builder: archive.NewBuilder(build.Command, build.Args...),
	}
}

// Run executes the stages in order and stops at the first failure.
// Nothing is retried and a half-built staging tree is left for inspection.
func (p *packager) Run(ctx context.Context) (*Result, error) {
	result := new(Result)

	for _, s := range p.steps(result) {
		logger.DebugKV(ctx, "Entering stage", "stage", s.stage)

		if err := s.run(ctx); err != nil {
			logger.ErrorKV(ctx, "Packaging failed", "stage", s.stage, "error", err)
			return nil, &StageError{Stage: s.stage, Err: err}
		}
	}

	logger.InfoKV(ctx, "Packager completed successfully", "artifact", result.Artifact)

	return result, nil
}

func (p *packager) steps(result *Result) []step {
	steps := []step{
		{StageReset, func(ctx context.Context) error { return staging.Reset(ctx, p.job) }},
		{StageInit, func(ctx context.Context) error { return staging.Init(ctx, p.job) }},
		{StageStageModules, func(ctx context.Context) error { return staging.StageModules(ctx, p.job) }},
		{StageWriteMetadata, func(ctx context.Context) error { return staging.WriteControl(ctx, p.job) }},
		{StageWriteLauncher, func(ctx context.Context) error { return staging.WriteLauncher(ctx, p.job) }},
		{StageBuildArchive, func(ctx context.Context) error { return p.buildArchive(ctx, result) }},
	}

	if p.build.ShouldVerify() {
		steps = append(steps, step{StageVerifyArchive, p.verifyArchive})
	}

	if p.build.SigningKey != "" {
		steps = append(steps, step{StageSignArchive, func(ctx context.Context) error {
			return p.signArchive(ctx, result)
		}})
	}

	return steps
}

func (p *packager) buildArchive(ctx context.Context, result *Result) error {
	output, err := p.builder.Build(ctx, p.job.StagingRoot())
	if err != nil {
		return err
	}

	if err = archive.MoveArtifact(ctx, output, p.job.ArtifactPath()); err != nil {
		return fmt.Errorf("%w: %w", errMoveArtifact, err)
	}

	result.Artifact = p.job.ArtifactPath()

	return nil
}

func (p *packager) verifyArchive(ctx context.Context) error {
	inspection, err := archive.Verify(p.job.ArtifactPath(), p.job.Package)
	if err != nil {
		return err
	}

	logger.DebugKV(ctx, "Verified package archive",
		"members", inspection.Members, "format", inspection.Format)

	return nil
}

func (p *packager) signArchive(ctx context.Context, result *Result) error {
	passphrase := []byte(os.Getenv(p.build.SigningPassphraseEnv))

	signature, err := archive.SignFile(ctx, p.job.ArtifactPath(), p.build.SigningKey, passphrase)
	if err != nil {
		return err
	}

	result.Signature = signature

	return nil
}

// warnConcurrentRuns logs a warning when another puppet-deb process is alive.
// Runs are not serialised: two runs on the same staging root corrupt each other.
func warnConcurrentRuns(ctx context.Context) {
	processes, err := ps.Processes()
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)
		return
	}

	self := os.Getpid()
	name := filepath.Base(os.Args[0])

	for _, process := range processes {
		if process.Pid() == self || process.Executable() != name {
			continue
		}

		logger.WarnKV(ctx, "Another packaging run is in progress; runs sharing a staging root will corrupt each other",
			"pid", process.Pid(), "executable", name)
	}
}
