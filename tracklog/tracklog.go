// Package tracklog centralizes the log-on-anomaly reporting used across
// the tracker, data stream, and registry. Duplicate open/close, data
// after close, unknown event types, sockaddr parse failures, and parser
// progress anomalies all flow through one place, so tests can swap the
// output writer instead of scraping stdout.
package tracklog

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput redirects subsequent log lines, mirroring the teacher's
// log.SetOutput(ui.ChannelWriter{...}) redirection in main.go.
func SetOutput(w interface {
	Write(p []byte) (int, error)
}) {
	std.SetOutput(w)
}

// Errorf logs an upstream anomaly or invariant violation. State handling
// around the call site decides whether the conflicting value is applied
// (last-wins) or discarded.
func Errorf(format string, args ...any) {
	std.Printf("[ERROR] "+format, args...)
}

// Warnf logs a non-fatal condition worth a human's attention but not
// rising to the level of an anomaly counter.
func Warnf(format string, args ...any) {
	std.Printf("[WARN] "+format, args...)
}
