package staging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

// LauncherPermissions makes the launcher readable and executable by everyone.
const LauncherPermissions os.FileMode = 0o755

// launcherShebang is the interpreter line of the launcher.
const launcherShebang = "#!/bin/bash"

// RenderLauncher returns the script that applies the bundled manifest on the
// target host. The result is parsed as bash before it is returned.
func RenderLauncher(job *debpkg.Job) (string, error) {
	words := []string{
		job.ApplyCommand,
		"apply",
		"--modulepath",
		job.InstalledModulesDir(),
		job.InstalledManifestPath(),
	}

	for i, word := range words {
		quoted, err := syntax.Quote(word, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("quote %q: %w", word, err)
		}

		words[i] = quoted
	}

	script := launcherShebang + "\n" + strings.Join(words, " ") + "\n"

	if _, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(script), job.Launcher.Name); err != nil {
		return "", fmt.Errorf("launcher syntax error: %w", err)
	}

	return script, nil
}

// WriteLauncher writes the launcher into usr/local/<bin|sbin> and marks it executable.
func WriteLauncher(ctx context.Context, job *debpkg.Job) error {
	script, err := RenderLauncher(job)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(job.LauncherDir(), DirPermissions); err != nil {
		return fmt.Errorf("create launcher directory: %w", err)
	}

	logger.InfoKV(ctx, "Writing launcher script", "path", job.LauncherPath())

	if err = os.WriteFile(job.LauncherPath(), []byte(script), LauncherPermissions); err != nil {
		return fmt.Errorf("write launcher: %w", err)
	}

	// WriteFile honours umask; the package must ship the exact mode.
	if err = os.Chmod(job.LauncherPath(), LauncherPermissions); err != nil {
		return fmt.Errorf("chmod launcher: %w", err)
	}

	return nil
}
