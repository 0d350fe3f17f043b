package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	myMiddleware "go-messenger/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub        *Hub
	bufferSize int
}

func NewHandler(hub *Hub, bufferSize int) *Handler {
	return &Handler{hub: hub, bufferSize: bufferSize}
}

func identityFrom(r *http.Request) (Identity, bool) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(string)
	username, ok2 := r.Context().Value(myMiddleware.UsernameKey).(string)
	if !ok || !ok2 || userID == "" {
		return Identity{}, false
	}
	return Identity{ID: userID, UserName: username}, true
}

// ServeWs upgrades an authenticated request and runs the connection lifecycle.
// Query parameters senderId or groupId preload one conversation.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	params, err := parseConnectParams(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	// The request context ends when this handler returns; the connection outlives it.
	ctx := context.WithoutCancel(r.Context())
	client := NewClient(h.hub, conn, identity, h.bufferSize)

	go client.WritePump()
	h.hub.Connect(ctx, client, params)
	go client.ReadPump(ctx)
}

func parseConnectParams(q url.Values) (ConnectParams, error) {
	params := ConnectParams{PeerID: q.Get("senderId")}
	if raw := q.Get("groupId"); raw != "" {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ConnectParams{}, errors.New("groupId must be an integer")
		}
		params.GroupID = &groupID
		params.PeerID = ""
	}
	return params, nil
}

// GetChatHistory serves the same page LoadMessages would push over the socket.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	q := HistoryQuery{RecipientID: r.URL.Query().Get("recipientId"), Page: 1}
	if raw := r.URL.Query().Get("groupId"); raw != "" {
		groupID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "groupId must be an integer", http.StatusBadRequest)
			return
		}
		q.GroupID = &groupID
	}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "page must be an integer", http.StatusBadRequest)
			return
		}
		q.Page = page
	}

	messages, err := h.hub.History().Load(r.Context(), identity, q)
	switch {
	case errors.Is(err, ErrNotGroupMember):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case err != nil:
		h.hub.log.Error("History load failed", "user_id", identity.ID, "error", err)
		http.Error(w, "could not load messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, h.hub.OnlineUsers(r.Context(), identity.ID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
