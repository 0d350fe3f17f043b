//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mock_store_test.go -package=chat
package chat

import "context"

// MessageFilter selects one conversation: a group, or the direct pair (UserA, UserB) in either direction.
type MessageFilter struct {
	GroupID *int64
	UserA   string
	UserB   string
}

type Pagination struct {
	Offset int
	Limit  int
}

type MessageStore interface {
	// Insert persists msg and assigns its ID.
	Insert(ctx context.Context, msg *Message) error
	// Query returns one page of the conversation, newest first.
	Query(ctx context.Context, filter MessageFilter, page Pagination) ([]Message, error)
	MarkRead(ctx context.Context, ids []int64) error
	// UnreadCounts counts unread direct messages addressed to receiverID, keyed by sender.
	UnreadCounts(ctx context.Context, receiverID string) (map[string]int, error)
}

type GroupMembershipStore interface {
	MembershipsFor(ctx context.Context, userID string) ([]GroupMembership, error)
	IsMember(ctx context.Context, groupID int64, userID string) (bool, error)
}

type UserDirectory interface {
	ListUsers(ctx context.Context) ([]UserSummary, error)
}
