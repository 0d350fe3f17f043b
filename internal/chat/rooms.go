package chat

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/samber/lo"
)

// RoomID addresses the broadcast room of one group.
type RoomID struct {
	groupID int64
}

func RoomFor(groupID int64) RoomID {
	return RoomID{groupID: groupID}
}

func (r RoomID) GroupID() int64 {
	return r.groupID
}

func (r RoomID) String() string {
	return "group:" + strconv.FormatInt(r.groupID, 10)
}

// roomTable keeps room -> connections and the reverse index used on disconnect.
type roomTable struct {
	mu        sync.RWMutex
	rooms     map[RoomID]map[ConnID]struct{}
	connRooms map[ConnID]map[RoomID]struct{}
}

func newRoomTable() *roomTable {
	return &roomTable{
		rooms:     make(map[RoomID]map[ConnID]struct{}),
		connRooms: make(map[ConnID]map[RoomID]struct{}),
	}
}

func (t *roomTable) Join(room RoomID, conn ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rooms[room] == nil {
		t.rooms[room] = make(map[ConnID]struct{})
	}
	t.rooms[room][conn] = struct{}{}
	if t.connRooms[conn] == nil {
		t.connRooms[conn] = make(map[RoomID]struct{})
	}
	t.connRooms[conn][room] = struct{}{}
}

func (t *roomTable) Leave(room RoomID, conn ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveLocked(room, conn)
}

func (t *roomTable) LeaveAll(conn ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for room := range t.connRooms[conn] {
		t.leaveLocked(room, conn)
	}
	delete(t.connRooms, conn)
}

func (t *roomTable) leaveLocked(room RoomID, conn ConnID) {
	if members, ok := t.rooms[room]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(t.rooms, room)
		}
	}
	if rooms, ok := t.connRooms[conn]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(t.connRooms, conn)
		}
	}
}

func (t *roomTable) Members(room RoomID) []ConnID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Keys(t.rooms[room])
}

func (t *roomTable) IsIn(room RoomID, conn ConnID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.rooms[room][conn]
	return ok
}

func (t *roomTable) RoomsOf(conn ConnID) []RoomID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return lo.Keys(t.connRooms[conn])
}

// RoomResolver resolves the group rooms a user's connection joins at connect time.
// Later membership changes reach live connections only through explicit join/leave pushes.
type RoomResolver struct {
	memberships GroupMembershipStore
}

func NewRoomResolver(memberships GroupMembershipStore) *RoomResolver {
	return &RoomResolver{memberships: memberships}
}

func (r *RoomResolver) ResolveRooms(ctx context.Context, userID string) ([]RoomID, error) {
	memberships, err := r.memberships.MembershipsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve rooms for %s: %w", userID, err)
	}
	rooms := lo.Map(memberships, func(m GroupMembership, _ int) RoomID {
		return RoomFor(m.GroupID)
	})
	return lo.Uniq(rooms), nil
}
