// Package packager runs the packaging pipeline.
//
// Run loads the job file, resolves the module source and walks the stages
// RESET, INIT, STAGE_MODULES, WRITE_METADATA, WRITE_LAUNCHER and
// BUILD_ARCHIVE, followed by VERIFY_ARCHIVE and SIGN_ARCHIVE when enabled.
// The first failure ends the run with a StageError; ExitCode turns it into a
// distinct process exit status.
package packager
