package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// MessageRouter validates, persists and fans out new messages.
type MessageRouter struct {
	store       MessageStore
	memberships GroupMembershipStore
	presence    *PresenceRegistry
	rooms       *roomTable
	out         *fanout
	log         *slog.Logger
	metrics     *metrics
	now         func() time.Time
}

// Send stores the message before any recipient can see it, then delivers it to
// the group room or the direct receiver, echoing it to senderConn either way.
func (r *MessageRouter) Send(ctx context.Context, sender Identity, senderConn ConnID, req SendMessageRequest) (*Message, error) {
	msg, err := r.build(sender, req)
	if err != nil {
		r.metrics.messageRejected(ctx, err)
		return nil, err
	}

	if msg.IsGroup() {
		ok, err := r.memberships.IsMember(ctx, *msg.GroupID, sender.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: membership check: %w", ErrStoreUnavailable, err)
		}
		if !ok {
			r.metrics.messageRejected(ctx, ErrNotGroupMember)
			return nil, ErrNotGroupMember
		}
	}

	if err := r.store.Insert(ctx, msg); err != nil {
		r.log.Error("Failed to persist message", "sender_id", sender.ID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	r.metrics.messageSent(ctx, msg)

	r.out.event(ctx, EventReceiveNewMessage, msg, r.recipients(msg, senderConn)...)
	return msg, nil
}

func (r *MessageRouter) recipients(msg *Message, senderConn ConnID) []ConnID {
	var targets []ConnID
	if msg.IsGroup() {
		targets = r.rooms.Members(RoomFor(*msg.GroupID))
	} else if conn, ok := r.presence.ConnFor(*msg.ReceiverID); ok {
		targets = append(targets, conn)
	}
	if senderConn != "" {
		targets = append(targets, senderConn)
	}
	return lo.Uniq(targets)
}

func (r *MessageRouter) build(sender Identity, req SendMessageRequest) (*Message, error) {
	if (req.GroupID == nil) == (req.ReceiverID == nil) {
		return nil, ErrInvalidTarget
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	msg := &Message{
		SenderID:  sender.ID,
		Content:   req.Content,
		Type:      req.Type,
		CreatedAt: r.now().UTC(),
		IsRead:    false,
	}
	if req.GroupID != nil {
		msg.GroupID = lo.ToPtr(*req.GroupID)
	} else {
		msg.ReceiverID = lo.ToPtr(*req.ReceiverID)
	}

	if msg.Type == 0 {
		msg.Type = MessageTypeText
	}
	switch msg.Type {
	case MessageTypeText:
		if strings.TrimSpace(msg.Content) == "" {
			return nil, fmt.Errorf("%w: text message without content", ErrInvalidMessage)
		}
	case MessageTypeImage, MessageTypeFile:
		if req.AttachmentURL == "" {
			return nil, fmt.Errorf("%w: %s message without attachment", ErrInvalidMessage, msg.Type)
		}
		name := req.AttachmentName
		if name == "" {
			name = req.AttachmentURL[strings.LastIndex(req.AttachmentURL, "/")+1:]
		}
		msg.Attachment = &Attachment{URL: req.AttachmentURL, Name: name}
	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, int(msg.Type))
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
