package flash

import (
	"errors"
	"fmt"
)

var (
	ErrReadFailure  = errors.New("source read failed")
	ErrWriteFailure = errors.New("device write failed")
	ErrSizeMismatch = errors.New("bytes written do not match source size")
	ErrCanceled     = errors.New("flash canceled")
)

// Error is returned for every failed flash. BytesWritten is the number of bytes that
// reached the device before the failure; the device is left as-is and is not bootable.
type Error struct {
	Kind         error
	Device       string
	BytesWritten int64
	Err          error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("flash %s: %v after %d bytes", e.Device, e.Kind, e.BytesWritten)
	}
	return fmt.Sprintf("flash %s: %v after %d bytes: %v", e.Device, e.Kind, e.BytesWritten, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// BytesWritten extracts the committed byte count from a flash error. ok is false when
// err did not come from the engine.
func BytesWritten(err error) (n int64, ok bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.BytesWritten, true
	}
	return 0, false
}
