package staging

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

// DirPermissions is used for every directory created in the staging tree.
const DirPermissions os.FileMode = 0o755

// Reset removes the staging root left by a previous run, if any.
// A stale archive from an interrupted build is removed as well so the builder
// never mistakes it for fresh output.
func Reset(ctx context.Context, job *debpkg.Job) error {
	for _, path := range []string{job.StagingRoot(), job.BuildOutputPath()} {
		if _, err := os.Lstat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return fmt.Errorf("stat %s: %w", path, err)
		}

		logger.InfoKV(ctx, "Cleaning up package remnants", "path", path)

		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	return nil
}

// Init creates the metadata directory and its parents. It is a no-op when they exist.
func Init(ctx context.Context, job *debpkg.Job) error {
	logger.InfoKV(ctx, "Initializing package path", "path", job.MetadataDir())

	if err := os.MkdirAll(job.MetadataDir(), DirPermissions); err != nil {
		return fmt.Errorf("create metadata directory: %w", err)
	}

	return nil
}
