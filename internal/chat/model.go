package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------
// Identity & presence
// ---------------------------------------------

// ConnID identifies one live websocket connection.
type ConnID string

// Identity is the authenticated user owning a connection for its whole lifetime.
type Identity struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
}

type UserSummary struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	FullName string `json:"fullName,omitempty"`
}

// UserPresence is one row of the OnlineUsers list as seen by one viewer.
// UnreadCount is the number of direct messages from this user the viewer has not read.
// IsTyping is always false: typing travels only as NotifyTypingToUser events and is
// never part of presence state.
type UserPresence struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	FullName    string `json:"fullName,omitempty"`
	IsOnline    bool   `json:"isOnline"`
	IsTyping    bool   `json:"isTyping"`
	UnreadCount int    `json:"unreadCount"`
}

// ConnectParams optionally name one conversation to preload on connect.
type ConnectParams struct {
	PeerID  string
	GroupID *int64
}

// ---------------------------------------------
// Messages
// ---------------------------------------------

type MessageType int

const (
	MessageTypeText MessageType = iota + 1
	MessageTypeImage
	MessageTypeFile
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeImage:
		return "image"
	case MessageTypeFile:
		return "file"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	default:
		return false
	}
}

func ParseMessageType(s string) (MessageType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return MessageTypeText, nil
	case "image":
		return MessageTypeImage, nil
	case "file":
		return MessageTypeFile, nil
	}
	if n, err := strconv.Atoi(s); err == nil && MessageType(n).Valid() {
		return MessageType(n), nil
	}
	return 0, fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, s)
}

func (t MessageType) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, int(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the type name or its numeric value.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !MessageType(n).Valid() {
			return fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, n)
		}
		*t = MessageType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Message is immutable once stored, except for IsRead.
// Exactly one of ReceiverID and GroupID is set.
type Message struct {
	ID         int64       `json:"id"`
	SenderID   string      `json:"senderId"`
	ReceiverID *string     `json:"receiverId,omitempty"`
	GroupID    *int64      `json:"groupId,omitempty"`
	Content    string      `json:"content"`
	Type       MessageType `json:"messageType"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsRead     bool        `json:"isRead"`
}

func (m *Message) IsGroup() bool {
	return m.GroupID != nil
}

func (m *Message) Validate() error {
	hasReceiver := m.ReceiverID != nil && *m.ReceiverID != ""
	hasGroup := m.GroupID != nil
	if hasReceiver == hasGroup {
		return ErrInvalidTarget
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown message type %d", ErrInvalidMessage, int(m.Type))
	}
	return nil
}

// SendMessageRequest is the payload of the SendMessage operation.
type SendMessageRequest struct {
	ReceiverID     *string     `json:"receiverId,omitempty" validate:"omitempty,min=1,max=64"`
	GroupID        *int64      `json:"groupId,omitempty" validate:"omitempty,gt=0"`
	Content        string      `json:"content" validate:"max=4000"`
	Type           MessageType `json:"messageType"`
	AttachmentURL  string      `json:"attachmentUrl,omitempty" validate:"omitempty,max=2048"`
	AttachmentName string      `json:"attachmentName,omitempty" validate:"omitempty,max=255"`
}

// HistoryQuery is the payload of the LoadMessages operation.
type HistoryQuery struct {
	RecipientID string `json:"recipientId,omitempty"`
	GroupID     *int64 `json:"groupId,omitempty"`
	Page        int    `json:"page"`
}

// TypingRequest is the payload of the NotifyTyping operation.
type TypingRequest struct {
	RecipientUserName string `json:"recipientUserName,omitempty"`
	GroupID           *int64 `json:"groupId,omitempty"`
}

type TypingEvent struct {
	SenderID       string `json:"senderId"`
	SenderUserName string `json:"senderUserName"`
	GroupID        *int64 `json:"groupId,omitempty"`
}

// GroupMembership is the coordinator's read-only view of one membership row.
type GroupMembership struct {
	GroupID int64
	IsAdmin bool
}
