package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
)

// ConnectivityError reports that Redis could not be reached or timed out.
// Callers may retry; the adapter never does.
type ConnectivityError struct {
	Op  string
	Key string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("redis %s: connectivity failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("redis %s %s: connectivity failure: %v", e.Op, e.Key, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// BackendError is any other failure reported by Redis (wrong type, OOM,
// script errors and so on).
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("redis %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("redis %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err (or anything it wraps) is a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsBackend reports whether err (or anything it wraps) is a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// classify maps a raw go-redis error onto the adapter's two error kinds.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if isConnectivityErr(err) {
		return &ConnectivityError{Op: op, Key: key, Err: err}
	}
	return &BackendError{Op: op, Key: key, Err: err}
}

func isConnectivityErr(err error) bool {
	// A reply from the server proves the connection works.
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return false
	}

	switch {
	case errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return strings.Contains(err.Error(), "connection pool timeout")
}
