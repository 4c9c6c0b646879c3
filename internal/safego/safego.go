// Package safego provides panic-recovering goroutine launchers for background work.
package safego

import "log/slog"

// Go launches fn in a new goroutine. If fn panics, the panic is recovered and
// logged rather than crashing the process. This should be used for all
// fire-and-forget goroutines (last-seen touches, async audit writes, etc.)
// where an unrecovered panic would silently kill the goroutine forever.
func Go(fn func()) {
	GoNamed("background", fn)
}

// GoNamed is Go with a task name included in the recovery log record, so a
// panic in one of several long-lived goroutines (queue workers, sweepers,
// shippers) can be attributed without guessing from stack-less log output.
func GoNamed(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "task", name, "panic", r)
			}
		}()
		fn()
	}()
}
