package continueasnew

import (
	"github.com/enqbot/enqbot/backend/payload"
)

// Error is returned from a workflow function to request a fresh execution of
// the same instance with new inputs. It is handled by the executor, never
// surfaced to callers.
type Error struct {
	Inputs []payload.Payload
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	return "continue as new"
}

func NewError(inputs []payload.Payload) error {
	return &Error{
		Inputs: inputs,
	}
}
