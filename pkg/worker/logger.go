package worker

import "hookfeed/internal"

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, args ...interface{})
}

var defaultLogger Logger = internal.NewLogger("worker")
