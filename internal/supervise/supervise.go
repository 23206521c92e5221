// Package supervise runs goroutine bodies under a recover() harness so that
// an otherwise-unhandled panic in one component never takes down the whole
// process, matching spec.md §7's propagation policy: every task runs
// supervised, logs with its originating run_id or component name, and the
// process keeps going.
package supervise

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// Run executes fn under recover(). A panic is logged at ERROR with the
// component name and a stack trace, then swallowed. Run is synchronous; the
// caller decides whether to invoke it via `go supervise.Run(...)`.
func Run(logger *zap.Logger, component string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from panic",
				zap.String("component", component),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
}

// Go starts fn in its own supervised goroutine and returns immediately.
func Go(logger *zap.Logger, component string, fn func()) {
	go Run(logger, component, fn)
}

// Safe wraps a fallible fn, converting a panic into an error instead of a
// log line, for callers that need the failure to propagate (e.g. a single
// worker construction step that the Reconciler must observe and retry).
func Safe(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fn()
}
