package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
)

// ErrInvalidArtifact means the archive is not the expected Debian binary package.
var ErrInvalidArtifact = errors.New("invalid package archive")

const (
	memberDebianBinary = "debian-binary"
	memberControl      = "control.tar"
	memberData         = "data.tar"

	// formatVersion is the only .deb format dpkg-deb produces.
	formatVersion = "2.0"
)

// Inspection is what Inspect learned about an archive.
type Inspection struct {
	// Format is the debian-binary content, e.g. "2.0".
	Format string
	// Members lists the ar member names in order.
	Members []string
	// Control holds the control fields of the control.tar member.
	Control map[string]string
}

// Inspect reads the ar structure of a .deb file.
func Inspect(path string) (*Inspection, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	result := new(Inspection)
	reader := ar.NewReader(f)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: read ar member: %w", ErrInvalidArtifact, err)
		}

		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		result.Members = append(result.Members, name)

		switch {
		case name == memberDebianBinary:
			body, err := io.ReadAll(io.LimitReader(reader, header.Size))
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidArtifact, name, err)
			}

			result.Format = strings.TrimSpace(string(body))
		case strings.HasPrefix(name, memberControl):
			control, err := readControl(io.LimitReader(reader, header.Size), strings.TrimPrefix(name, memberControl))
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidArtifact, name, err)
			}

			result.Control = control
		}
	}

	return result, nil
}

// Verify checks that the archive at path is a Debian binary package for meta.
func Verify(path string, meta debpkg.Metadata) (*Inspection, error) {
	inspection, err := Inspect(path)
	if err != nil {
		return nil, err
	}

	members := inspection.Members

	switch {
	case len(members) < 3:
		return inspection, fmt.Errorf("%w: expected at least 3 members, got %v", ErrInvalidArtifact, members)
	case members[0] != memberDebianBinary:
		return inspection, fmt.Errorf("%w: first member is %q", ErrInvalidArtifact, members[0])
	case inspection.Format != formatVersion:
		return inspection, fmt.Errorf("%w: unsupported format %q", ErrInvalidArtifact, inspection.Format)
	case !strings.HasPrefix(members[1], memberControl):
		return inspection, fmt.Errorf("%w: second member is %q", ErrInvalidArtifact, members[1])
	case !strings.HasPrefix(members[2], memberData):
		return inspection, fmt.Errorf("%w: third member is %q", ErrInvalidArtifact, members[2])
	}

	if inspection.Control == nil {
		return inspection, fmt.Errorf("%w: control member was not read", ErrInvalidArtifact)
	}

	expected := map[string]string{
		"Package": meta.Name,
		"Version": meta.Version,
	}

	for field, want := range expected {
		if got := inspection.Control[field]; got != want {
			return inspection, fmt.Errorf("%w: control field %s is %q, want %q", ErrInvalidArtifact, field, got, want)
		}
	}

	return inspection, nil
}

// readControl extracts the control file from a control.tar member.
// ext is the compression suffix of the member name, empty for a plain tar.
func readControl(r io.Reader, ext string) (map[string]string, error) {
	switch ext {
	case "":
	case ".gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}

		defer func() {
			_ = gz.Close()
		}()

		r = gz
	case ".xz":
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}

		r = xzr
	case ".zst":
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}

		defer zr.Close()

		r = zr
	default:
		return nil, fmt.Errorf("unsupported compression %q", ext)
	}

	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("control file not found")
		}

		if err != nil {
			return nil, err
		}

		if path.Base(header.Name) != debpkg.ControlFilename {
			continue
		}

		var buf bytes.Buffer
		if _, err = io.Copy(&buf, tr); err != nil {
			return nil, err
		}

		return ParseControl(buf.String()), nil
	}
}

// ParseControl parses a single control stanza into its fields.
// Continuation lines are appended to the previous field with a newline.
func ParseControl(content string) map[string]string {
	fields := make(map[string]string)

	var current string

	for _, line := range strings.Split(content, "\n") {
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			if current != "" {
				fields[current] += "\n" + line
			}
		default:
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}

			current = strings.TrimSpace(key)
			fields[current] = strings.TrimSpace(value)
		}
	}

	return fields
}
