package staging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

// FilePermissions is used for generated non-executable files.
const FilePermissions os.FileMode = 0o644

// RenderManifest returns the entry manifest including every module in order.
// Duplicates are kept and an empty list yields "node default {\n}\n".
func RenderManifest(modules []string) string {
	var b strings.Builder

	b.WriteString("node default {\n")

	for _, module := range modules {
		b.WriteString("  include ")
		b.WriteString(module)
		b.WriteString("\n")
	}

	b.WriteString("}\n")

	return b.String()
}

func writeManifest(ctx context.Context, job *debpkg.Job) error {
	if err := os.MkdirAll(job.ManifestsDir(), DirPermissions); err != nil {
		return fmt.Errorf("create manifests directory: %w", err)
	}

	logger.InfoKV(ctx, "Writing entry manifest", "path", job.ManifestPath())

	if err := os.WriteFile(job.ManifestPath(), []byte(RenderManifest(job.Modules)), FilePermissions); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
