// Package monitoring holds the process-wide log sink shared by the
// calreport commands and the run history server.
package monitoring

import (
	"fmt"
	"log"
)

// Logf is the package-level operator logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that tags each message with "[name] " and
// forwards to whatever Logf is at call time.
func Prefixed(name string) func(format string, v ...interface{}) {
	tag := fmt.Sprintf("[%s] ", name)
	return func(format string, v ...interface{}) {
		Logf(tag+format, v...)
	}
}
