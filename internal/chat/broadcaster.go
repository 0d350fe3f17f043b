package chat

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
)

// PresenceBroadcaster pushes presence changes to every live connection.
type PresenceBroadcaster struct {
	presence  *PresenceRegistry
	conns     *connTable
	directory UserDirectory
	unread    MessageStore
	out       *fanout
	log       *slog.Logger
}

// Broadcast sends each connection the OnlineUsers list with its own unread counts.
func (b *PresenceBroadcaster) Broadcast(ctx context.Context) {
	list := b.OnlineUsers(ctx)
	for _, id := range b.conns.ids() {
		c, ok := b.conns.get(id)
		if !ok {
			continue
		}
		b.out.event(ctx, EventOnlineUsers, b.withUnread(ctx, list, c.Identity().ID), id)
	}
}

// Notify announces a user's first appearance to everyone but their own connection.
func (b *PresenceBroadcaster) Notify(ctx context.Context, id Identity, except ConnID) {
	targets := slices.DeleteFunc(b.conns.ids(), func(c ConnID) bool { return c == except })
	if len(targets) == 0 {
		return
	}
	b.out.event(ctx, EventNotify, UserSummary{ID: id.ID, UserName: id.UserName}, targets...)
}

// OnlineUsersFor is the list viewerID would receive in a broadcast.
func (b *PresenceBroadcaster) OnlineUsersFor(ctx context.Context, viewerID string) []UserPresence {
	return b.withUnread(ctx, b.OnlineUsers(ctx), viewerID)
}

// withUnread copies list and fills in viewerID's unread counts. A failing
// count query leaves the counts at zero.
func (b *PresenceBroadcaster) withUnread(ctx context.Context, list []UserPresence, viewerID string) []UserPresence {
	out := slices.Clone(list)
	if viewerID == "" || b.unread == nil {
		return out
	}
	counts, err := b.unread.UnreadCounts(ctx, viewerID)
	if err != nil {
		b.log.Warn("Unread counts unavailable", "user_id", viewerID, "error", err)
		return out
	}
	for i := range out {
		out[i].UnreadCount = counts[out[i].UserID]
	}
	return out
}

// OnlineUsers lists the directory with online flags, online users first.
// Without a directory, or when it fails, only online users are listed.
func (b *PresenceBroadcaster) OnlineUsers(ctx context.Context) []UserPresence {
	online := b.presence.Snapshot("")
	if b.directory == nil {
		return sortPresence(online)
	}

	users, err := b.directory.ListUsers(ctx)
	if err != nil {
		b.log.Warn("User directory unavailable, broadcasting registry only", "error", err)
		return sortPresence(online)
	}

	byID := make(map[string]UserPresence, len(online))
	for _, p := range online {
		byID[p.UserID] = p
	}
	out := make([]UserPresence, 0, len(users)+len(online))
	for _, u := range users {
		_, isOnline := byID[u.ID]
		delete(byID, u.ID)
		out = append(out, UserPresence{
			UserID:   u.ID,
			UserName: u.UserName,
			FullName: u.FullName,
			IsOnline: isOnline,
		})
	}
	for _, p := range byID {
		out = append(out, p)
	}
	return sortPresence(out)
}

func sortPresence(list []UserPresence) []UserPresence {
	slices.SortStableFunc(list, func(a, b UserPresence) int {
		if a.IsOnline != b.IsOnline {
			if a.IsOnline {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.UserName, b.UserName)
	})
	return list
}
