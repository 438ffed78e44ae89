// Package logger provides leveled logging for pantry commands.
//
// The logger supports multiple verbosity levels controlled either by
// command-line flags or by the log_level option of the client
// configuration. Output is formatted with colored semantic prefixes.
//
// # Verbosity Levels
//
//   - --verbose: shows info messages
//   - --debug or log_level :debug: shows all messages including debug details
//
// Without either, only warnings and errors are shown.
//
// # Sinks
//
// The log_location option selects where info and debug messages go:
// STDOUT (default), STDERR, or a file path which is opened for appending.
// Warnings and errors always also reach stderr when a file sink is used.
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Fetched %d cookbooks", count)
package logger
