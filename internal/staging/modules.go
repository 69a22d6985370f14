package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

var (
	// ErrMissingSourceRepo means the module source tree does not exist.
	ErrMissingSourceRepo = errors.New("source repository not found")
	// ErrMissingModule means a requested module directory is absent from the source tree.
	ErrMissingModule = errors.New("module not found")
)

// StageModules copies every requested module into the staging tree and writes
// the entry manifest. The source tree is checked before anything under opt/ is
// created; every module is checked before the first copy.
func StageModules(ctx context.Context, job *debpkg.Job) error {
	logger.InfoKV(ctx, "Adding Puppet modules", "modules", job.Modules)

	if err := checkSourceRepo(ctx, job.SourceRepo); err != nil {
		return err
	}

	for _, module := range job.Modules {
		if err := checkModule(job, module); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(job.ModulesDir(), DirPermissions); err != nil {
		return fmt.Errorf("create modules directory: %w", err)
	}

	copied := make(map[string]struct{}, len(job.Modules))

	for _, module := range job.Modules {
		// Listing a module twice includes it twice but copies it once.
		if _, ok := copied[module]; ok {
			continue
		}

		copied[module] = struct{}{}

		src, dst := job.SourceModuleDir(module), filepath.Join(job.ModulesDir(), module)

		logger.DebugKV(ctx, "Copying module", "module", module, "from", src, "to", dst)

		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("copy module %s: %w", module, err)
		}
	}

	return writeManifest(ctx, job)
}

func checkSourceRepo(ctx context.Context, path string) error {
	info, err := os.Stat(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.ErrorKV(ctx, "Did not find Puppet repository", "path", path)
		return fmt.Errorf("%s: %w", path, ErrMissingSourceRepo)
	case err != nil:
		return fmt.Errorf("stat source repository: %w", err)
	case !info.IsDir():
		logger.ErrorKV(ctx, "Puppet repository is not a directory", "path", path)
		return fmt.Errorf("%s is not a directory: %w", path, ErrMissingSourceRepo)
	}

	return nil
}

func checkModule(job *debpkg.Job, module string) error {
	path := job.SourceModuleDir(module)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("module %s at %s: %w: %w", module, path, ErrMissingModule, err)
		}

		return fmt.Errorf("stat module %s: %w", module, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("module %s at %s is not a directory: %w", module, path, ErrMissingModule)
	}

	return nil
}

// copyTree recursively copies src to dst, keeping directory structure,
// permission bits and symbolic links. dst must not exist yet.
func copyTree(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%s: %w", dst, fs.ErrExist)
	}

	// A module directory may itself be a link into a shared checkout.
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			return fmt.Errorf("%s: unsupported file type %s", path, info.Mode().Type())
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}

	// Umask may have stripped bits from OpenFile's mode.
	return out.Chmod(perm)
}
