package chat

import (
	"encoding/json"
	"fmt"
)

// Client -> server operations.
const (
	OpLoadMessages = "LoadMessages"
	OpSendMessage  = "SendMessage"
	OpNotifyTyping = "NotifyTyping"
)

// Server -> client events.
const (
	EventNotify             = "Notify"
	EventOnlineUsers        = "OnlineUsers"
	EventReceiveMessageList = "ReceiveMessageList"
	EventReceiveNewMessage  = "ReceiveNewMessage"
	EventNotifyTypingToUser = "NotifyTypingToUser"
	EventJoinedRoom         = "JoinedRoom"
	EventLeftRoom           = "LeftRoom"
	EventError              = "Error"
)

// Request is one inbound frame.
type Request struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Event is one outbound frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

type ErrorPayload struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomPayload struct {
	GroupID int64 `json:"groupId"`
}

func encodeEvent(name string, data any) ([]byte, error) {
	frame, err := json.Marshal(Event{Name: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return frame, nil
}
