package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/samber/lo"
)

const DefaultPageSize = 10

// HistoryLoader pages through a conversation and marks direct messages read
// when their receiver loads them.
type HistoryLoader struct {
	store       MessageStore
	memberships GroupMembershipStore
	pageSize    int
	log         *slog.Logger
	metrics     *metrics
}

// Load returns page q.Page (1-based) of the conversation in chronological order.
// Pages walk backwards from the most recent message. A query naming neither or
// both targets, or a page beyond any representable offset, yields an empty result.
func (h *HistoryLoader) Load(ctx context.Context, requester Identity, q HistoryQuery) ([]Message, error) {
	hasRecipient := q.RecipientID != ""
	hasGroup := q.GroupID != nil
	if hasRecipient == hasGroup {
		return nil, nil
	}

	page := max(q.Page, 1)
	// Pages whose offset does not fit an int lie past any stored conversation.
	if page-1 > (math.MaxInt-h.pageSize)/h.pageSize {
		return nil, nil
	}
	filter := MessageFilter{UserA: requester.ID, UserB: q.RecipientID}
	if hasGroup {
		ok, err := h.memberships.IsMember(ctx, *q.GroupID, requester.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: membership check: %w", ErrStoreUnavailable, err)
		}
		if !ok {
			return nil, ErrNotGroupMember
		}
		filter = MessageFilter{GroupID: q.GroupID}
	}

	newestFirst, err := h.store.Query(ctx, filter, Pagination{
		Offset: (page - 1) * h.pageSize,
		Limit:  h.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	messages := newestFirst
	slices.Reverse(messages)

	if hasGroup {
		return messages, nil
	}
	if err := h.markRead(ctx, requester.ID, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// markRead flips every unread message addressed to requester in one batch.
func (h *HistoryLoader) markRead(ctx context.Context, requesterID string, messages []Message) error {
	unread := lo.FilterMap(messages, func(m Message, _ int) (int64, bool) {
		return m.ID, !m.IsRead && m.ReceiverID != nil && *m.ReceiverID == requesterID
	})
	if len(unread) == 0 {
		return nil
	}
	if err := h.store.MarkRead(ctx, unread); err != nil {
		return fmt.Errorf("%w: mark read: %w", ErrStoreUnavailable, err)
	}
	for i := range messages {
		if lo.Contains(unread, messages[i].ID) {
			messages[i].IsRead = true
		}
	}
	h.metrics.receiptsMarked(ctx, len(unread))
	h.log.Debug("Marked messages read", "user_id", requesterID, "count", len(unread))
	return nil
}
