package notify

import (
	"errors"
	"fmt"
)

// ErrNotOK wraps every non-OK Result returned through Err.
var ErrNotOK = errors.New("notify: platform result not ok")

// Result is a platform status code. Registration calls return it verbatim.
type Result int

const (
	ResultOK                Result = 0
	ResultError             Result = -1
	ResultInvalidDescriptor Result = -2
	ResultAlreadyRegistered Result = -5
	ResultNotRegistered     Result = -6
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultInvalidDescriptor:
		return "invalid_descriptor"
	case ResultAlreadyRegistered:
		return "already_registered"
	case ResultNotRegistered:
		return "not_registered"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Err returns nil for ResultOK and an error wrapping ErrNotOK otherwise.
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotOK, r)
}
