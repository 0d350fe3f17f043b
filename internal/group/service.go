package group

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

// RoomNotifier pushes membership changes to live connections.
type RoomNotifier interface {
	MemberAdded(ctx context.Context, groupID int64, userID string)
	MemberRemoved(ctx context.Context, groupID int64, userID string)
}

// Service manages group membership. A group with members always keeps at least one admin.
type Service struct {
	store Store
	rooms RoomNotifier
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store Store, rooms RoomNotifier, log *slog.Logger) *Service {
	return &Service{store: store, rooms: rooms, log: log, now: time.Now}
}

func (s *Service) Create(ctx context.Context, creatorID string, req CreateGroupRequest) (*Group, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	now := s.now().UTC()
	g := &Group{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   creatorID,
		CreatedAt:   now,
		Members: []Membership{
			{UserID: creatorID, IsAdmin: true, JoinedAt: now},
		},
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info("Group created", "group_id", g.ID, "creator_id", creatorID)
	s.notifyAdded(ctx, g.ID, creatorID)
	return g, nil
}

// Get returns the group to one of its members.
func (s *Service) Get(ctx context.Context, requesterID string, groupID int64) (*Group, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, ok := findMember(g, requesterID); !ok {
		return nil, ErrNotMember
	}
	return g, nil
}

// Update renames or redescribes a group; admins only.
func (s *Service) Update(ctx context.Context, actorID string, groupID int64, req UpdateGroupRequest) (*Group, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !isAdmin(g, actorID) {
		return nil, ErrNotAdmin
	}
	if err := s.store.UpdateGroup(ctx, groupID, req.Name, req.Description); err != nil {
		return nil, err
	}
	g.Name, g.Description = req.Name, req.Description
	s.log.Info("Group updated", "group_id", groupID, "actor_id", actorID)
	return g, nil
}

func (s *Service) AddMember(ctx context.Context, actorID string, groupID int64, req AddMemberRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !isAdmin(g, actorID) {
		return ErrNotAdmin
	}
	if _, ok := findMember(g, req.UserID); ok {
		return ErrAlreadyMember
	}

	err = s.store.AddMember(ctx, Membership{
		GroupID:  groupID,
		UserID:   req.UserID,
		IsAdmin:  req.IsAdmin,
		JoinedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	s.notifyAdded(ctx, groupID, req.UserID)
	return nil
}

// RemoveMember lets an admin remove anyone, and any member remove themselves.
// The last admin may only leave when nobody else remains.
func (s *Service) RemoveMember(ctx context.Context, actorID string, groupID int64, targetID string) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	target, ok := findMember(g, targetID)
	if !ok {
		return ErrNotMember
	}
	if actorID != targetID && !isAdmin(g, actorID) {
		return ErrNotAdmin
	}
	if target.IsAdmin && adminCount(g) <= 1 && len(g.Members) > 1 {
		return ErrLastAdmin
	}

	if err := s.store.RemoveMember(ctx, groupID, targetID); err != nil {
		return err
	}
	if s.rooms != nil {
		s.rooms.MemberRemoved(ctx, groupID, targetID)
	}
	return nil
}

// SetAdmin grants or revokes admin rights; the last admin cannot be demoted.
func (s *Service) SetAdmin(ctx context.Context, actorID string, groupID int64, targetID string, admin bool) error {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !isAdmin(g, actorID) {
		return ErrNotAdmin
	}
	target, ok := findMember(g, targetID)
	if !ok {
		return ErrNotMember
	}
	if target.IsAdmin == admin {
		return nil
	}
	if !admin && adminCount(g) <= 1 {
		return ErrLastAdmin
	}
	return s.store.SetAdmin(ctx, groupID, targetID, admin)
}

func (s *Service) notifyAdded(ctx context.Context, groupID int64, userID string) {
	if s.rooms != nil {
		s.rooms.MemberAdded(ctx, groupID, userID)
	}
}

func findMember(g *Group, userID string) (Membership, bool) {
	return lo.Find(g.Members, func(m Membership) bool { return m.UserID == userID })
}

func isAdmin(g *Group, userID string) bool {
	m, ok := findMember(g, userID)
	return ok && m.IsAdmin
}

func adminCount(g *Group) int {
	return lo.CountBy(g.Members, func(m Membership) bool { return m.IsAdmin })
}
