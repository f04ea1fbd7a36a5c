package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic must be deferred. It recovers a panic and logs it with its
// stack trace; the panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "hourly aggregation")
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", fmt.Sprint(r)).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// MustRecover converts a recovered value into an error (nil for nil)
//
//	defer func() {
//	    if r := recover(); r != nil {
//	        err = observability.MustRecover(r)
//	    }
//	}()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
