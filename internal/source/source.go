package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/oshokin/puppet-deb/internal/config"
	"github.com/oshokin/puppet-deb/internal/logger"
)

// ErrSourceFetch is returned when a remote module tree cannot be cloned.
var ErrSourceFetch = errors.New("fetch module source")

// Cleanup releases whatever Resolve created. It is never nil.
type Cleanup func()

// Resolve returns the local directory holding modules/<name>.
// workDir receives the clone of a remote source; it is created when missing.
func Resolve(ctx context.Context, src config.Source, workDir string) (string, Cleanup, error) {
	noop := func() {}

	if !src.IsRemote() {
		path, err := filepath.Abs(src.Path)
		if err != nil {
			return "", noop, fmt.Errorf("resolve source path: %w", err)
		}

		return path, noop, nil
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", noop, fmt.Errorf("create work directory: %w", err)
	}

	dir, err := os.MkdirTemp(workDir, ".puppet-deb-source-")
	if err != nil {
		return "", noop, fmt.Errorf("create clone directory: %w", err)
	}

	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.WarnKV(ctx, "Failed to remove cloned source", "path", dir, "error", err)
		}
	}

	if err = clone(ctx, src, dir); err != nil {
		cleanup()
		return "", noop, err
	}

	return dir, cleanup, nil
}

func clone(ctx context.Context, src config.Source, dir string) error {
	logger.InfoKV(ctx, "Cloning module source", "url", src.URL, "ref", src.Ref, "path", dir)

	//nolint:exhaustruct // Defaults are fine for the remaining clone options.
	options := &git.CloneOptions{
		URL:  src.URL,
		Tags: git.NoTags,
	}

	if src.Ref != "" {
		options.ReferenceName = plumbing.NewBranchReferenceName(src.Ref)
		options.SingleBranch = true
	}

	repository, err := git.PlainCloneContext(ctx, dir, false, options)
	if err != nil {
		return fmt.Errorf("%w: clone %s: %w", ErrSourceFetch, src.URL, err)
	}

	if head, err := repository.Head(); err == nil {
		logger.InfoKV(ctx, "Module source cloned", "url", src.URL, "commit", head.Hash().String())
	}

	return nil
}
