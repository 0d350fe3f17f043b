package chat

import "errors"

var (
	ErrInvalidTarget    = errors.New("exactly one of receiverId or groupId must be set")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrNotGroupMember   = errors.New("sender is not a member of the group")
	ErrStoreUnavailable = errors.New("message store unavailable")
	ErrSlowConsumer     = errors.New("connection send buffer is full")
	ErrConnClosed       = errors.New("connection closed")
	ErrUnknownOperation = errors.New("unknown operation")
)

// errorCode maps an error to the code reported in an Error event.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrNotGroupMember):
		return "not_group_member"
	case errors.Is(err, ErrStoreUnavailable):
		return "delivery_failed"
	case errors.Is(err, ErrUnknownOperation):
		return "unknown_operation"
	default:
		return "internal"
	}
}
