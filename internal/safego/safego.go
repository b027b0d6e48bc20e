// Package safego wraps goroutine launches with panic recovery.
package safego

import "log/slog"

// Go runs fn on a new goroutine, converting any panic into an error log
// instead of a process crash. Every fire-and-forget goroutine in Formgate
// goes through here: the last_used_at touch after verification, the async
// audit write, and audit shipping all run off the request path, and a panic
// in any of them must not take the server down or vanish silently.
func Go(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
