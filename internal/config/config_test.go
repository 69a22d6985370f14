package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/puppet-deb/internal/domain/debpkg"
)

func validConfig() *Config {
	return &Config{
		BaseDir: "/tmp/build",
		Source:  Source{Path: "/srv/puppet"},
		Modules: []string{"alpha", "beta"},
		Package: Package{
			Name:       "demo",
			Version:    "1.0-1",
			Maintainer: "Russ <russ@example.com>",
		},
	}
}

// TestValidateDefaults checks that Validate fills every optional field.
func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultArchitecture, cfg.Package.Architecture)
	require.Equal(t, DefaultSection, cfg.Package.Section)
	require.Equal(t, DefaultPriority, cfg.Package.Priority)
	require.Equal(t, "demo", cfg.Package.Description)
	require.Equal(t, debpkg.LauncherDirSbin, cfg.Launcher.Dir)
	require.Equal(t, DefaultLauncherName, cfg.Launcher.Name)
	require.Equal(t, DefaultToolName, cfg.Tool.Name)
	require.Equal(t, DefaultApplyCommand, cfg.Tool.ApplyCommand)
	require.Equal(t, DefaultBuildCommand, cfg.Build.Command)
	require.True(t, cfg.Build.ShouldVerify())
}

// TestValidateRejects walks through the invalid configurations.
func TestValidateRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"no base dir":        func(c *Config) { c.BaseDir = "" },
		"no source":          func(c *Config) { c.Source = Source{} },
		"both sources":       func(c *Config) { c.Source.URL = "https://example.com/puppet.git" },
		"ref without url":    func(c *Config) { c.Source.Ref = "main" },
		"upper-case name":    func(c *Config) { c.Package.Name = "Demo" },
		"short name":         func(c *Config) { c.Package.Name = "d" },
		"empty version":      func(c *Config) { c.Package.Version = "" },
		"version with slash": func(c *Config) { c.Package.Version = "1.0/1" },
		"no maintainer":      func(c *Config) { c.Package.Maintainer = " " },
		"maintainer newline": func(c *Config) { c.Package.Maintainer = "Russ\nDepends: x" },
		"depends newline":    func(c *Config) { c.Package.Depends = "puppet\nPre-Depends: evil" },
		"depends carriage":   func(c *Config) { c.Package.Depends = "puppet\r" },
		"arch newline":       func(c *Config) { c.Package.Architecture = "all\nEssential: yes" },
		"section newline":    func(c *Config) { c.Package.Section = "base\n" },
		"priority newline":   func(c *Config) { c.Package.Priority = "optional\r\nX: y" },
		"module with slash":  func(c *Config) { c.Modules = []string{"alpha/../beta"} },
		"dot-dot module":     func(c *Config) { c.Modules = []string{".."} },
		"empty module":       func(c *Config) { c.Modules = []string{""} },
		"launcher dir":       func(c *Config) { c.Launcher.Dir = "libexec" },
		"launcher name":      func(c *Config) { c.Launcher.Name = "a/b" },
		"tool name":          func(c *Config) { c.Tool.Name = "../etc" },
		"relative apply":     func(c *Config) { c.Tool.ApplyCommand = "puppet" },
	}

	for name, mutate := range cases {
		mutate := mutate

		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			mutate(cfg)

			require.ErrorIs(t, Validate(cfg), ErrInvalid)
		})
	}

	require.Error(t, Validate(nil))
}

// TestValidateAllowsEmptyModules keeps the degenerate empty package buildable.
func TestValidateAllowsEmptyModules(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Modules = nil

	require.NoError(t, Validate(cfg))
}

// TestSaveLoadRoundtrip ensures a saved job file loads back and Save refuses to overwrite.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultConfigFilename)

	verify := false
	cfg := validConfig()
	cfg.Package.Depends = "puppet (>= 2.7.23-1~deb7u3)"
	cfg.Launcher.Dir = debpkg.LauncherDirBin
	cfg.Build.Verify = &verify

	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
	require.False(t, loaded.Build.ShouldVerify())

	require.ErrorIs(t, Save(path, cfg), errConfigExists)
}

// TestLoadErrors covers unreadable and malformed job files.
func TestLoadErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("modules: {"), 0o600))

	_, err = Load(bad)
	require.Error(t, err)
}

// TestJobMapping verifies the DTO to domain conversion.
func TestJobMapping(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Package.Description = "Puppet modules for demo hosts"
	require.NoError(t, Validate(cfg))

	job := cfg.Job("/srv/puppet/")

	require.Equal(t, filepath.Clean("/srv/puppet"), job.SourceRepo)
	require.Equal(t, []string{"alpha", "beta"}, job.Modules)
	require.Equal(t, "Puppet modules for demo hosts", job.Package.Description)
	require.Equal(t, "puppet", job.ToolName)
	require.Equal(t, "/usr/bin/puppet", job.ApplyCommand)

	cfg.Modules[0] = "gamma"
	require.Equal(t, "alpha", job.Modules[0])
}

// TestStarterIsValid makes sure `init` never writes a job file Load would reject.
func TestStarterIsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(Starter()))
}
