package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
)

// Config is the YAML job file describing one package build.
type Config struct {
	// BaseDir is the scratch directory for the staging tree and the archive.
	BaseDir string `yaml:"base_dir"`
	// Source says where the Puppet module tree comes from.
	Source Source `yaml:"source"`
	// Modules lists the modules to package, in manifest order.
	Modules []string `yaml:"modules"`
	// Package holds the control metadata.
	Package Package `yaml:"package"`
	// Launcher configures the installed apply script.
	Launcher Launcher `yaml:"launcher"`
	// Tool configures the configuration-management tool on the target host.
	Tool Tool `yaml:"tool"`
	// Build configures the packaging utility and post-build steps.
	Build Build `yaml:"build"`
}

// Source is either a local path or a git URL.
type Source struct {
	// Path is a local directory containing modules/<name>.
	Path string `yaml:"path,omitempty"`
	// URL is a git repository cloned for the run.
	URL string `yaml:"url,omitempty"`
	// Ref is an optional branch name used with URL.
	Ref string `yaml:"ref,omitempty"`
}

// IsRemote reports whether the module tree has to be cloned.
func (s Source) IsRemote() bool {
	return s.URL != ""
}

// Package holds the DEBIAN/control fields.
type Package struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	Maintainer   string `yaml:"maintainer"`
	Description  string `yaml:"description,omitempty"`
	Depends      string `yaml:"depends,omitempty"`
	Architecture string `yaml:"architecture,omitempty"`
	Section      string `yaml:"section,omitempty"`
	Priority     string `yaml:"priority,omitempty"`
}

// Launcher configures the apply script location.
type Launcher struct {
	// Dir is "bin" or "sbin" under usr/local.
	Dir string `yaml:"dir,omitempty"`
	// Name is the script filename.
	Name string `yaml:"name,omitempty"`
}

// Tool configures the configuration-management tool.
type Tool struct {
	// Name is the directory under /opt holding modules and manifests.
	Name string `yaml:"name,omitempty"`
	// ApplyCommand is the absolute path of the tool binary on the target host.
	ApplyCommand string `yaml:"apply_command,omitempty"`
}

// Build configures the packaging utility and the optional post-build steps.
type Build struct {
	// Command is the packaging utility, resolved through PATH.
	Command string `yaml:"command,omitempty"`
	// Args are extra arguments placed before --build.
	Args []string `yaml:"args,omitempty"`
	// Verify enables structural verification of the produced archive.
	Verify *bool `yaml:"verify,omitempty"`
	// SigningKey is an armored OpenPGP private key file; empty disables signing.
	SigningKey string `yaml:"signing_key,omitempty"`
	// SigningPassphraseEnv names the environment variable holding the key passphrase.
	SigningPassphraseEnv string `yaml:"signing_passphrase_env,omitempty"`
}

// ShouldVerify reports whether the archive is verified after the build.
func (b Build) ShouldVerify() bool {
	return b.Verify == nil || *b.Verify
}

const (
	// DefaultConfigFilename is the default job file name.
	DefaultConfigFilename = "puppet-deb.yaml"

	// DefaultToolName is the /opt subdirectory of the bundled modules.
	DefaultToolName = "puppet"
	// DefaultApplyCommand is the Puppet binary on Debian hosts.
	DefaultApplyCommand = "/usr/bin/puppet"
	// DefaultLauncherName is the installed script name.
	DefaultLauncherName = "prun"
	// DefaultBuildCommand is the packaging utility.
	DefaultBuildCommand = "dpkg-deb"
	// DefaultArchitecture is used for packages that only carry manifests.
	DefaultArchitecture = "all"
	// DefaultSection is the control Section value.
	DefaultSection = "base"
	// DefaultPriority is the control Priority value.
	DefaultPriority = "optional"
	// DefaultSigningPassphraseEnv holds the signing key passphrase.
	DefaultSigningPassphraseEnv = "PUPPET_DEB_SIGNING_PASSPHRASE"

	// DefaultFilePermissions is used for job files written by Save.
	DefaultFilePermissions = 0o600
)

var (
	// ErrInvalid is wrapped by every validation failure.
	ErrInvalid = errors.New("invalid configuration")

	errConfigIsNotSet = errors.New("configuration is not set")
	errConfigExists   = errors.New("configuration file already exists")

	// packageNamePattern follows Debian policy 5.6.1.
	packageNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates cfg and writes it to path. An existing file is never overwritten.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_EXCL, DefaultFilePermissions)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, errConfigExists)
		}

		return fmt.Errorf("create configuration: %w", err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write configuration: %w", err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close configuration: %w", err)
	}

	return nil
}

// Validate fills defaults and checks the configuration.
//
//nolint:cyclop // A flat list of field checks reads better than helpers per field.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if cfg.BaseDir == "" {
		return invalid("base_dir must be set")
	}

	switch {
	case cfg.Source.Path == "" && cfg.Source.URL == "":
		return invalid("one of source.path or source.url must be set")
	case cfg.Source.Path != "" && cfg.Source.URL != "":
		return invalid("source.path and source.url are mutually exclusive")
	case cfg.Source.Ref != "" && cfg.Source.URL == "":
		return invalid("source.ref requires source.url")
	}

	if !packageNamePattern.MatchString(cfg.Package.Name) {
		return invalid("package.name %q is not a valid Debian package name", cfg.Package.Name)
	}

	if cfg.Package.Version == "" || strings.ContainsAny(cfg.Package.Version, " \t\n/") {
		return invalid("package.version %q is not a valid Debian version", cfg.Package.Version)
	}

	if strings.TrimSpace(cfg.Package.Maintainer) == "" {
		return invalid("package.maintainer must be set")
	}

	// Description is folded into continuation lines; every other field is one line.
	singleLine := []struct {
		key   string
		value string
	}{
		{"package.maintainer", cfg.Package.Maintainer},
		{"package.depends", cfg.Package.Depends},
		{"package.architecture", cfg.Package.Architecture},
		{"package.section", cfg.Package.Section},
		{"package.priority", cfg.Package.Priority},
	}

	for _, f := range singleLine {
		if strings.ContainsAny(f.value, "\r\n") {
			return invalid("%s %q must not contain line breaks", f.key, f.value)
		}
	}

	for _, m := range cfg.Modules {
		if !isPlainName(m) {
			return invalid("module name %q must be a single path element", m)
		}
	}

	if cfg.Launcher.Dir != debpkg.LauncherDirBin && cfg.Launcher.Dir != debpkg.LauncherDirSbin {
		return invalid("launcher.dir must be %q or %q, got %q",
			debpkg.LauncherDirBin, debpkg.LauncherDirSbin, cfg.Launcher.Dir)
	}

	if !isPlainName(cfg.Launcher.Name) {
		return invalid("launcher.name %q must be a single path element", cfg.Launcher.Name)
	}

	if !isPlainName(cfg.Tool.Name) {
		return invalid("tool.name %q must be a single path element", cfg.Tool.Name)
	}

	if !strings.HasPrefix(cfg.Tool.ApplyCommand, "/") {
		return invalid("tool.apply_command %q must be an absolute path", cfg.Tool.ApplyCommand)
	}

	return nil
}

// Job converts the validated configuration into the domain job.
// sourceRepo is the resolved local module tree (see package source).
func (c *Config) Job(sourceRepo string) *debpkg.Job {
	return &debpkg.Job{
		BaseDir:    filepath.Clean(c.BaseDir),
		SourceRepo: filepath.Clean(sourceRepo),
		Modules:    append([]string(nil), c.Modules...),
		Package: debpkg.Metadata{
			Name:         c.Package.Name,
			Version:      c.Package.Version,
			Maintainer:   c.Package.Maintainer,
			Description:  c.Package.Description,
			Depends:      c.Package.Depends,
			Architecture: c.Package.Architecture,
			Section:      c.Package.Section,
			Priority:     c.Package.Priority,
		},
		Launcher: debpkg.Launcher{
			Dir:  c.Launcher.Dir,
			Name: c.Launcher.Name,
		},
		ToolName:     c.Tool.Name,
		ApplyCommand: c.Tool.ApplyCommand,
	}
}

// Starter returns the job file written by `puppet-deb init`.
func Starter() *Config {
	return &Config{
		BaseDir: filepath.Join(os.TempDir(), "puppet-deb"),
		Source:  Source{Path: "."},
		Modules: []string{},
		Package: Package{
			Name:        "puppet-modules",
			Version:     "1.0-1",
			Maintainer:  "Maintainer <maintainer@example.com>",
			Description: "Bundled Puppet modules",
			Depends:     "puppet",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := []struct {
		field *string
		value string
	}{
		{&cfg.Package.Architecture, DefaultArchitecture},
		{&cfg.Package.Section, DefaultSection},
		{&cfg.Package.Priority, DefaultPriority},
		{&cfg.Launcher.Dir, debpkg.LauncherDirSbin},
		{&cfg.Launcher.Name, DefaultLauncherName},
		{&cfg.Tool.Name, DefaultToolName},
		{&cfg.Tool.ApplyCommand, DefaultApplyCommand},
		{&cfg.Build.Command, DefaultBuildCommand},
		{&cfg.Build.SigningPassphraseEnv, DefaultSigningPassphraseEnv},
	}

	for _, d := range defaults {
		if strings.TrimSpace(*d.field) == "" {
			*d.field = d.value
		}
	}

	// Unset description keeps the historical behaviour of repeating the name.
	if strings.TrimSpace(cfg.Package.Description) == "" {
		cfg.Package.Description = cfg.Package.Name
	}
}

func isPlainName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && strings.TrimSpace(s) == s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
