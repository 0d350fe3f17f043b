package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var (
	alice = Identity{ID: "u-alice", UserName: "alice"}
	bob   = Identity{ID: "u-bob", UserName: "bob"}
	carol = Identity{ID: "u-carol", UserName: "carol"}
)

type rawEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

type fakeConn struct {
	id       ConnID
	identity Identity

	mu     sync.Mutex
	frames []rawEvent
	closed bool
	broken bool
}

func newFakeConn(id string, identity Identity) *fakeConn {
	return &fakeConn{id: ConnID(id), identity: identity}
}

func (c *fakeConn) ID() ConnID         { return c.id }
func (c *fakeConn) Identity() Identity { return c.identity }

func (c *fakeConn) Deliver(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.broken {
		return ErrSlowConsumer
	}
	var ev rawEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		return err
	}
	c.frames = append(c.frames, ev)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events(name string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.FilterMap(c.frames, func(ev rawEvent, _ int) (json.RawMessage, bool) {
		return ev.Data, ev.Name == name
	})
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeConn) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) newMessages(t *testing.T) []Message {
	t.Helper()
	return lo.Map(c.events(EventReceiveNewMessage), func(raw json.RawMessage, _ int) Message {
		var m Message
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	})
}

func (c *fakeConn) lastOnline(t *testing.T) []UserPresence {
	t.Helper()
	all := c.events(EventOnlineUsers)
	require.NotEmpty(t, all, "no OnlineUsers event on %s", c.id)
	var list []UserPresence
	require.NoError(t, json.Unmarshal(all[len(all)-1], &list))
	return list
}

func (c *fakeConn) errors(t *testing.T) []ErrorPayload {
	t.Helper()
	return lo.Map(c.events(EventError), func(raw json.RawMessage, _ int) ErrorPayload {
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(raw, &p))
		return p
	})
}

func onlineIDs(list []UserPresence) []string {
	ids := lo.FilterMap(list, func(p UserPresence, _ int) (string, bool) { return p.UserID, p.IsOnline })
	sort.Strings(ids)
	return ids
}

func unreadFrom(list []UserPresence, userID string) int {
	p, ok := lo.Find(list, func(p UserPresence) bool { return p.UserID == userID })
	if !ok {
		return -1
	}
	return p.UnreadCount
}

// memStore is an in-memory MessageStore.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	messages      []Message
	markReadCalls [][]int64
	onInsert      func(*Message)
}

func (s *memStore) Insert(_ context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.nextID++
	msg.ID = s.nextID
	s.messages = append(s.messages, *msg)
	hook := s.onInsert
	s.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (s *memStore) Query(_ context.Context, filter MessageFilter, page Pagination) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := lo.Filter(s.messages, func(m Message, _ int) bool {
		if filter.GroupID != nil {
			return m.GroupID != nil && *m.GroupID == *filter.GroupID
		}
		if m.ReceiverID == nil {
			return false
		}
		return (m.SenderID == filter.UserA && *m.ReceiverID == filter.UserB) ||
			(m.SenderID == filter.UserB && *m.ReceiverID == filter.UserA)
	})
	sort.SliceStable(selected, func(i, j int) bool {
		if !selected[i].CreatedAt.Equal(selected[j].CreatedAt) {
			return selected[i].CreatedAt.After(selected[j].CreatedAt)
		}
		return selected[i].ID > selected[j].ID
	})
	if page.Offset >= len(selected) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(selected))
	return append([]Message(nil), selected[page.Offset:end]...), nil
}

func (s *memStore) MarkRead(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReadCalls = append(s.markReadCalls, append([]int64(nil), ids...))
	for i := range s.messages {
		if lo.Contains(ids, s.messages[i].ID) {
			s.messages[i].IsRead = true
		}
	}
	return nil
}

func (s *memStore) UnreadCounts(_ context.Context, receiverID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, m := range s.messages {
		if !m.IsRead && m.ReceiverID != nil && *m.ReceiverID == receiverID {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (s *memStore) stored() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// memMemberships is an in-memory GroupMembershipStore.
type memMemberships struct {
	mu      sync.Mutex
	byUser  map[string][]GroupMembership
	failFor string
}

func newMemMemberships() *memMemberships {
	return &memMemberships{byUser: make(map[string][]GroupMembership)}
}

func (m *memMemberships) add(groupID int64, userID string, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byUser[userID] = append(m.byUser[userID], GroupMembership{GroupID: groupID, IsAdmin: admin})
}

func (m *memMemberships) MembershipsFor(_ context.Context, userID string) ([]GroupMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failFor {
		return nil, context.DeadlineExceeded
	}
	return append([]GroupMembership(nil), m.byUser[userID]...), nil
}

func (m *memMemberships) IsMember(_ context.Context, groupID int64, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.ContainsBy(m.byUser[userID], func(g GroupMembership) bool { return g.GroupID == groupID }), nil
}

// stepClock returns strictly increasing timestamps.
func stepClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 1, 23, 10, 52, 45, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type testHub struct {
	*Hub
	store       *memStore
	memberships *memMemberships
}

func newTestHub(t *testing.T) *testHub {
	t.Helper()
	store := &memStore{}
	memberships := newMemMemberships()
	hub := NewHub(store, memberships, Options{
		PageSize: DefaultPageSize,
		Logger:   slog.Default(),
		Now:      stepClock(),
	})
	return &testHub{Hub: hub, store: store, memberships: memberships}
}

func (h *testHub) connect(id string, identity Identity) *fakeConn {
	c := newFakeConn(id, identity)
	h.Connect(context.Background(), c, ConnectParams{})
	return c
}

func text(content string) SendMessageRequest {
	return SendMessageRequest{Content: content, Type: MessageTypeText}
}

func toUser(userID, content string) SendMessageRequest {
	req := text(content)
	req.ReceiverID = lo.ToPtr(userID)
	return req
}

func toGroup(groupID int64, content string) SendMessageRequest {
	req := text(content)
	req.GroupID = lo.ToPtr(groupID)
	return req
}
