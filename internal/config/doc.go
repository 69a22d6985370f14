// Package config loads, validates and saves the YAML job file.
//
// A job file names the module source, the modules to bundle, the control
// metadata, the launcher location and the packaging utility. Validate fills
// defaults so the rest of the program never deals with empty fields, and
// Config.Job maps the file onto the domain job.
package config
