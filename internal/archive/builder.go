package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

var (
	// ErrLaunch means the packaging utility could not be started.
	ErrLaunch = errors.New("packaging utility failed to launch")
	// ErrNonZeroExit means the packaging utility exited with a failure status.
	ErrNonZeroExit = errors.New("packaging utility failed")
	// ErrMissingArtifact means the utility succeeded but left no archive behind.
	ErrMissingArtifact = errors.New("archive not produced")
)

// maxStderr bounds the utility output kept in an error message.
const maxStderr = 4096

// Builder invokes the external packaging utility.
type Builder struct {
	// Command is the utility name or path, resolved through PATH.
	Command string
	// Args are placed before "--build <staging root>".
	Args []string
}

// NewBuilder returns a builder for command with extra leading arguments.
func NewBuilder(command string, args ...string) *Builder {
	return &Builder{
		Command: command,
		Args:    args,
	}
}

// Build runs "<command> <args...> --build <stagingRoot>" and returns the path
// of the produced archive, stagingRoot + ".deb". It blocks until the utility
// exits; only ctx cancellation interrupts it.
func (b *Builder) Build(ctx context.Context, stagingRoot string) (string, error) {
	bin, err := exec.LookPath(b.Command)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	args := append(append([]string(nil), b.Args...), "--build", stagingRoot)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.InfoKV(ctx, "Running packaging utility", "command", bin, "args", args)

	if err = cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	err = cmd.Wait()

	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.DebugKV(ctx, "Packaging utility output", "stdout", out)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s exited with status %d: %s",
				ErrNonZeroExit, b.Command, exitErr.ExitCode(), truncate(stderr.String()))
		}

		return "", fmt.Errorf("%w: wait for %s: %w", ErrNonZeroExit, b.Command, err)
	}

	output := stagingRoot + debpkg.ArchiveExt

	info, err := os.Stat(output)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMissingArtifact, output, err)
	}

	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrMissingArtifact, output)
	}

	return output, nil
}

// MoveArtifact renames src to dst, replacing an existing dst.
// A detached signature of the replaced archive is removed with it.
func MoveArtifact(ctx context.Context, src, dst string) error {
	for _, stale := range []string{dst, dst + SignatureExt} {
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove previous artifact: %w", err)
		}
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move artifact: %w", err)
	}

	logger.InfoKV(ctx, "Built package", "path", dst)

	return nil
}

// truncate cuts s to at most maxStderr bytes without splitting a character.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}

	cut := maxStderr
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut] + "..."
}
