package chat

import (
	"strings"
	"sync"
)

// PresenceEntry records the most recent connection of one user.
type PresenceEntry struct {
	UserID   string
	UserName string
	ConnID   ConnID
	Online   bool
}

// PresenceRegistry maps user ids to their live connection.
// A user has at most one registered connection; the last registration wins.
type PresenceRegistry struct {
	mu      sync.RWMutex
	entries map[string]PresenceEntry
	seen    map[string]struct{}
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		entries: make(map[string]PresenceEntry),
		seen:    make(map[string]struct{}),
	}
}

// Register points the user at conn, replacing any previous connection.
// isNewUser is true only the first time this user id is ever registered.
func (r *PresenceRegistry) Register(id Identity, conn ConnID) (isNewUser bool) {
	_, isNewUser = r.Swap(id, conn)
	return isNewUser
}

// Swap is Register that also reports the connection conn displaced, if any.
func (r *PresenceRegistry) Swap(id Identity, conn ConnID) (replaced ConnID, isNewUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[id.ID]; ok && prev.ConnID != conn {
		replaced = prev.ConnID
	}
	r.entries[id.ID] = PresenceEntry{
		UserID:   id.ID,
		UserName: id.UserName,
		ConnID:   conn,
		Online:   true,
	}
	if _, ok := r.seen[id.ID]; ok {
		return replaced, false
	}
	r.seen[id.ID] = struct{}{}
	return replaced, true
}

func (r *PresenceRegistry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// UnregisterConn removes the user only while conn is still their registered
// connection, so a replaced connection closing late leaves the newer one online.
func (r *PresenceRegistry) UnregisterConn(userID string, conn ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok || entry.ConnID != conn {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *PresenceRegistry) ConnFor(userID string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	if !ok || !entry.Online {
		return "", false
	}
	return entry.ConnID, true
}

// ConnByName looks a user up by user name, ignoring case.
func (r *PresenceRegistry) ConnByName(userName string) (ConnID, bool) {
	if userName == "" {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if entry.Online && strings.EqualFold(entry.UserName, userName) {
			return entry.ConnID, true
		}
	}
	return "", false
}

// Snapshot lists every online user except excludeUserID (pass "" to keep everyone).
func (r *PresenceRegistry) Snapshot(excludeUserID string) []UserPresence {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]UserPresence, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.UserID == excludeUserID {
			continue
		}
		out = append(out, UserPresence{
			UserID:   entry.UserID,
			UserName: entry.UserName,
			IsOnline: entry.Online,
		})
	}
	return out
}

func (r *PresenceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
