package debpkg

import (
	"path"
	"path/filepath"
)

const (
	// MetadataDirName is the control subdirectory required by dpkg-deb.
	MetadataDirName = "DEBIAN"
	// ControlFilename is the metadata file inside MetadataDirName.
	ControlFilename = "control"
	// ManifestFilename is the generated entry manifest.
	ManifestFilename = "site.pp"
	// ArchiveExt is the suffix dpkg-deb appends to the staging root.
	ArchiveExt = ".deb"

	// LauncherDirBin places the launcher in usr/local/bin.
	LauncherDirBin = "bin"
	// LauncherDirSbin places the launcher in usr/local/sbin.
	LauncherDirSbin = "sbin"
)

// Metadata maps to the fields written to DEBIAN/control.
type Metadata struct {
	// Name is the Debian package name.
	Name string
	// Version is the full Debian version, e.g. 1.0-1.
	Version string
	// Maintainer is the "Name <email>" maintainer string.
	Maintainer string
	// Description is the package description; the first line is the synopsis.
	Description string
	// Depends is the raw Depends field value; empty means no dependencies.
	Depends string
	// Architecture is usually "all" since the package only carries manifests.
	Architecture string
	// Section is the archive section.
	Section string
	// Priority is the package priority.
	Priority string
}

// Launcher describes where the apply script is installed.
type Launcher struct {
	// Dir is either LauncherDirBin or LauncherDirSbin.
	Dir string
	// Name is the script filename.
	Name string
}

// Job is a single packaging run. It is built once and only read afterwards.
type Job struct {
	// BaseDir is the scratch directory holding the staging tree and the final archive.
	BaseDir string
	// SourceRepo is the local tree containing modules/<name> directories.
	SourceRepo string
	// Modules lists the module names in manifest order.
	Modules []string
	// Package is the control metadata.
	Package Metadata
	// Launcher is the installed apply script.
	Launcher Launcher
	// ToolName is the configuration-management directory under /opt.
	ToolName string
	// ApplyCommand is the absolute path of the tool binary on the target host.
	ApplyCommand string
}

// StagingRoot is BaseDir/<package name>.
func (j *Job) StagingRoot() string {
	return filepath.Join(j.BaseDir, j.Package.Name)
}

// MetadataDir is the DEBIAN directory of the staging tree.
func (j *Job) MetadataDir() string {
	return filepath.Join(j.StagingRoot(), MetadataDirName)
}

// ControlPath is the control file inside MetadataDir.
func (j *Job) ControlPath() string {
	return filepath.Join(j.MetadataDir(), ControlFilename)
}

// ToolRoot is opt/<tool> inside the staging tree.
func (j *Job) ToolRoot() string {
	return filepath.Join(j.StagingRoot(), "opt", j.ToolName)
}

// ModulesDir is where module trees are copied.
func (j *Job) ModulesDir() string {
	return filepath.Join(j.ToolRoot(), "modules")
}

// ManifestsDir holds the generated manifest.
func (j *Job) ManifestsDir() string {
	return filepath.Join(j.ToolRoot(), "manifests")
}

// ManifestPath is the generated site.pp inside the staging tree.
func (j *Job) ManifestPath() string {
	return filepath.Join(j.ManifestsDir(), ManifestFilename)
}

// SourceModuleDir is the source directory of a single module.
func (j *Job) SourceModuleDir(module string) string {
	return filepath.Join(j.SourceRepo, "modules", module)
}

// LauncherDir is usr/local/<bin|sbin> inside the staging tree.
func (j *Job) LauncherDir() string {
	return filepath.Join(j.StagingRoot(), "usr", "local", j.Launcher.Dir)
}

// LauncherPath is the launcher script inside the staging tree.
func (j *Job) LauncherPath() string {
	return filepath.Join(j.LauncherDir(), j.Launcher.Name)
}

// BuildOutputPath is where dpkg-deb writes the archive.
func (j *Job) BuildOutputPath() string {
	return j.StagingRoot() + ArchiveExt
}

// ArtifactPath is the final versioned archive: BaseDir/<name>_<version>.deb.
func (j *Job) ArtifactPath() string {
	return filepath.Join(j.BaseDir, j.Package.Name+"_"+j.Package.Version+ArchiveExt)
}

// InstalledModulesDir is the module path on the target host.
// Target paths always use forward slashes, whatever the build host is.
func (j *Job) InstalledModulesDir() string {
	return path.Join("/opt", j.ToolName, "modules")
}

// InstalledManifestPath is the manifest path on the target host.
func (j *Job) InstalledManifestPath() string {
	return path.Join("/opt", j.ToolName, "manifests", ManifestFilename)
}
