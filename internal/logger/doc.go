// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder on stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every pipeline step accepts a context and extracts the logger from it, so a
// run id and package name attached once show up on every line of a build.
package logger
