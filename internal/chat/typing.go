package chat

import (
	"context"

	"github.com/samber/lo"
)

// TypingNotifier relays typing events. Nothing is stored; unknown or offline
// targets are silently ignored.
type TypingNotifier struct {
	presence *PresenceRegistry
	rooms    *roomTable
	out      *fanout
}

// NotifyTyping returns the number of connections the event reached.
func (n *TypingNotifier) NotifyTyping(ctx context.Context, sender Identity, senderConn ConnID, req TypingRequest) int {
	event := TypingEvent{SenderID: sender.ID, SenderUserName: sender.UserName}

	if req.GroupID != nil {
		room := RoomFor(*req.GroupID)
		if !n.rooms.IsIn(room, senderConn) {
			return 0
		}
		others := lo.Without(n.rooms.Members(room), senderConn)
		if len(others) == 0 {
			return 0
		}
		event.GroupID = req.GroupID
		return n.out.event(ctx, EventNotifyTypingToUser, event, others...)
	}

	conn, ok := n.presence.ConnByName(req.RecipientUserName)
	if !ok || conn == senderConn {
		return 0
	}
	return n.out.event(ctx, EventNotifyTypingToUser, event, conn)
}
