package staging

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
	"github.com/oshokin/puppet-deb/internal/logger"
)

// controlTemplate lists the control fields in their fixed order.
// Depends is dropped when empty since dpkg-deb rejects empty field values.
const controlTemplate = `Package: {{ .Name }}
Version: {{ .Version }}
Section: {{ .Section }}
Priority: {{ .Priority }}
Architecture: {{ .Architecture }}
{{ with .Depends }}Depends: {{ . }}
{{ end }}Maintainer: {{ .Maintainer }}
Description: {{ description .Description }}
`

//nolint:gochecknoglobals // Parsed once; the template is constant.
var control = template.Must(template.New(debpkg.ControlFilename).
	Option("missingkey=error").
	Funcs(template.FuncMap{"description": foldDescription}).
	Parse(controlTemplate))

// RenderControl renders the DEBIAN/control content for the package metadata.
func RenderControl(meta debpkg.Metadata) (string, error) {
	var b strings.Builder
	if err := control.Execute(&b, meta); err != nil {
		return "", fmt.Errorf("render control: %w", err)
	}

	return b.String(), nil
}

// WriteControl writes DEBIAN/control into the staging tree.
func WriteControl(ctx context.Context, job *debpkg.Job) error {
	content, err := RenderControl(job.Package)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Writing control file", "path", job.ControlPath())

	if err = os.WriteFile(job.ControlPath(), []byte(content), FilePermissions); err != nil {
		return fmt.Errorf("write control: %w", err)
	}

	return nil
}

// foldDescription turns a free-form description into a Debian description
// field: the first line is the synopsis, the rest become continuation lines
// starting with a space, with " ." standing in for blank lines.
func foldDescription(s string) string {
	lines := strings.Split(strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")), "\n")

	var b strings.Builder

	b.WriteString(strings.TrimSpace(lines[0]))

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, " \t")

		b.WriteString("\n ")

		if strings.TrimSpace(line) == "" {
			b.WriteString(".")
			continue
		}

		b.WriteString(strings.TrimLeft(line, " \t"))
	}

	return b.String()
}
