package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

type Options struct {
	PageSize  int
	Directory UserDirectory
	Logger    *slog.Logger
	Now       func() time.Time
}

// Hub is the connection lifecycle manager. It owns the presence registry,
// the room table and the live connection table, and wires them into the
// router, history loader, typing notifier and presence broadcaster.
type Hub struct {
	log         *slog.Logger
	presence    *PresenceRegistry
	rooms       *roomTable
	conns       *connTable
	resolver    *RoomResolver
	history     *HistoryLoader
	router      *MessageRouter
	typing      *TypingNotifier
	broadcaster *PresenceBroadcaster
	metrics     *metrics
}

func NewHub(messages MessageStore, memberships GroupMembershipStore, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &Hub{
		log:      opts.Logger,
		presence: NewPresenceRegistry(),
		rooms:    newRoomTable(),
		conns:    newConnTable(),
		resolver: NewRoomResolver(memberships),
		metrics:  newMetrics(),
	}
	out := &fanout{conns: h.conns, log: h.log, metrics: h.metrics}

	h.history = &HistoryLoader{
		store:       messages,
		memberships: memberships,
		pageSize:    opts.PageSize,
		log:         h.log,
		metrics:     h.metrics,
	}
	h.router = &MessageRouter{
		store:       messages,
		memberships: memberships,
		presence:    h.presence,
		rooms:       h.rooms,
		out:         out,
		log:         h.log,
		metrics:     h.metrics,
		now:         opts.Now,
	}
	h.typing = &TypingNotifier{presence: h.presence, rooms: h.rooms, out: out}
	h.broadcaster = &PresenceBroadcaster{
		presence:  h.presence,
		conns:     h.conns,
		directory: opts.Directory,
		unread:    messages,
		out:       out,
		log:       h.log,
	}
	return h
}

// Connect runs the Connecting -> Active transition for c.
func (h *Hub) Connect(ctx context.Context, c Conn, params ConnectParams) {
	id := c.Identity()
	h.conns.add(c)
	h.metrics.connectionOpened(ctx)

	replaced, isNewUser := h.presence.Swap(id, c.ID())
	if isNewUser {
		h.broadcaster.Notify(ctx, id, c.ID())
	}
	// One connection per user: the newest wins and the one it displaced is closed.
	if prev, ok := h.conns.get(replaced); ok {
		h.log.Info("Replacing connection", "user_id", id.ID, "old_conn_id", replaced, "conn_id", c.ID())
		h.Disconnect(ctx, prev)
	}

	rooms, err := h.resolver.ResolveRooms(ctx, id.ID)
	if err != nil {
		h.log.Warn("Connected without group rooms", "user_id", id.ID, "conn_id", c.ID(), "error", err)
	}
	for _, room := range rooms {
		h.rooms.Join(room, c.ID())
	}

	if params.PeerID != "" || params.GroupID != nil {
		h.LoadMessages(ctx, c, HistoryQuery{RecipientID: params.PeerID, GroupID: params.GroupID, Page: 1})
	}

	if !h.conns.activate(c.ID()) {
		// Disconnected while connecting: undo what this call registered.
		h.presence.UnregisterConn(id.ID, c.ID())
		h.rooms.LeaveAll(c.ID())
		return
	}
	h.log.Info("Client connected", "user_id", id.ID, "conn_id", c.ID(), "rooms", len(rooms))
	h.broadcaster.Broadcast(ctx)
}

// Disconnect runs the transition to Disconnected. It is safe to call more than
// once and from any disconnect path.
func (h *Hub) Disconnect(ctx context.Context, c Conn) {
	if !h.conns.remove(c.ID()) {
		return
	}
	id := c.Identity()
	h.presence.UnregisterConn(id.ID, c.ID())
	h.rooms.LeaveAll(c.ID())
	c.Close()
	h.metrics.connectionClosed(ctx)

	h.log.Info("Client disconnected", "user_id", id.ID, "conn_id", c.ID())
	h.broadcaster.Broadcast(ctx)
}

func (h *Hub) State(id ConnID) ConnState {
	return h.conns.state(id)
}

func (h *Hub) SendMessage(ctx context.Context, c Conn, req SendMessageRequest) {
	if _, err := h.router.Send(ctx, c.Identity(), c.ID(), req); err != nil {
		h.replyError(c, OpSendMessage, err)
	}
}

func (h *Hub) LoadMessages(ctx context.Context, c Conn, q HistoryQuery) {
	messages, err := h.history.Load(ctx, c.Identity(), q)
	if err != nil {
		h.replyError(c, OpLoadMessages, err)
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	frame, err := encodeEvent(EventReceiveMessageList, messages)
	if err != nil {
		h.log.Error("Failed to encode history", "error", err)
		return
	}
	if err := c.Deliver(frame); err != nil {
		h.log.Debug("History delivery dropped", "conn_id", c.ID(), "error", err)
	}
}

func (h *Hub) NotifyTyping(ctx context.Context, c Conn, req TypingRequest) {
	h.typing.NotifyTyping(ctx, c.Identity(), c.ID(), req)
}

// History exposes the loader to the REST history endpoint.
func (h *Hub) History() *HistoryLoader {
	return h.history
}

// OnlineUsers lists presence with viewerID's unread counts; an empty viewerID leaves them at zero.
func (h *Hub) OnlineUsers(ctx context.Context, viewerID string) []UserPresence {
	return h.broadcaster.OnlineUsersFor(ctx, viewerID)
}

// Dispatch decodes one inbound frame and runs the named operation for c.
func (h *Hub) Dispatch(ctx context.Context, c Conn, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.replyError(c, "", fmt.Errorf("%w: malformed frame: %w", ErrInvalidMessage, err))
		return
	}

	switch req.Op {
	case OpSendMessage:
		var payload SendMessageRequest
		if err := decodeData(req.Data, &payload); err != nil {
			h.replyError(c, req.Op, err)
			return
		}
		h.SendMessage(ctx, c, payload)
	case OpLoadMessages:
		var payload HistoryQuery
		if err := decodeData(req.Data, &payload); err != nil {
			h.replyError(c, req.Op, err)
			return
		}
		h.LoadMessages(ctx, c, payload)
	case OpNotifyTyping:
		var payload TypingRequest
		if err := decodeData(req.Data, &payload); err != nil {
			h.replyError(c, req.Op, err)
			return
		}
		h.NotifyTyping(ctx, c, payload)
	default:
		h.replyError(c, req.Op, fmt.Errorf("%w: %q", ErrUnknownOperation, req.Op))
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}

// replyError reports err to the originating connection only.
func (h *Hub) replyError(c Conn, op string, err error) {
	h.log.Debug("Operation failed", "op", op, "user_id", c.Identity().ID, "error", err)
	frame, encErr := encodeEvent(EventError, ErrorPayload{Op: op, Code: errorCode(err), Message: err.Error()})
	if encErr != nil {
		return
	}
	_ = c.Deliver(frame)
}

// MemberAdded joins the user's live connection, if any, to the group room.
func (h *Hub) MemberAdded(ctx context.Context, groupID int64, userID string) {
	conn, ok := h.presence.ConnFor(userID)
	if !ok {
		return
	}
	h.rooms.Join(RoomFor(groupID), conn)
	h.broadcaster.out.event(ctx, EventJoinedRoom, RoomPayload{GroupID: groupID}, conn)
}

// MemberRemoved takes the user's live connection, if any, out of the group room.
func (h *Hub) MemberRemoved(ctx context.Context, groupID int64, userID string) {
	conn, ok := h.presence.ConnFor(userID)
	if !ok {
		return
	}
	h.rooms.Leave(RoomFor(groupID), conn)
	h.broadcaster.out.event(ctx, EventLeftRoom, RoomPayload{GroupID: groupID}, conn)
}
