package events

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

// ValidationError reports a rejected StoreRequest
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// DataCorruptionError means a stored record could not be decoded. Retrying
// will not help.
type DataCorruptionError struct {
	EventID string
	Err     error
}

func (e *DataCorruptionError) Error() string {
	return fmt.Sprintf("event data corruption for %s: %v", e.EventID, e.Err)
}

func (e *DataCorruptionError) Unwrap() error { return e.Err }

// PlatformError is any non-connectivity failure of a repository operation
type PlatformError struct {
	Op  string
	Key string
	Err error
}

func (e *PlatformError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// Wrap annotates err with the operation and key. Connectivity failures keep
// their kind so callers can still tell them apart; everything else becomes a
// PlatformError.
func Wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		return err
	}
	if redisstore.IsConnectivity(err) {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return &PlatformError{Op: op, Key: key, Err: err}
}

// IsConnectivity reports whether the backend was unreachable
func IsConnectivity(err error) bool {
	return redisstore.IsConnectivity(err)
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsCorruption reports whether err wraps a DataCorruptionError
func IsCorruption(err error) bool {
	var de *DataCorruptionError
	return errors.As(err, &de)
}

// IsPlatform reports whether err is a PlatformError
func IsPlatform(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe)
}
