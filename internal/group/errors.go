package group

import "errors"

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotMember      = errors.New("user is not a member of the group")
	ErrAlreadyMember  = errors.New("user is already a member of the group")
	ErrNotAdmin       = errors.New("admin rights required")
	ErrLastAdmin      = errors.New("the last admin cannot leave while other members remain")
	ErrInvalidRequest = errors.New("invalid request")
)
