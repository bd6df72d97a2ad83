// Package monitoring provides a swappable diagnostic logger for the
// long-running collection loops (scanner, collector, MQTT ingest), which
// otherwise have no return path for non-fatal problems.
package monitoring

import "log"

// Logf emits a diagnostic line. It defaults to log.Printf; replace it with
// SetLogger to redirect or silence diagnostics.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger installs f as the package logger. A nil f mutes diagnostics.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
