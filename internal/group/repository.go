//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mock_repository_test.go -package=group
package group

import (
	"context"
	"database/sql"
	"errors"

	"go-messenger/internal/chat"

	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the membership persistence used by the coordinator and by group management.
type Store interface {
	chat.GroupMembershipStore
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, groupID int64) (*Group, error)
	UpdateGroup(ctx context.Context, groupID int64, name, description string) error
	AddMember(ctx context.Context, m Membership) error
	RemoveMember(ctx context.Context, groupID int64, userID string) error
	SetAdmin(ctx context.Context, groupID int64, userID string, isAdmin bool) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) MembershipsFor(ctx context.Context, userID string) ([]chat.GroupMembership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id, is_admin FROM group_members WHERE user_id = $1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []chat.GroupMembership
	for rows.Next() {
		var m chat.GroupMembership
		if err := rows.Scan(&m.GroupID, &m.IsAdmin); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *Repository) IsMember(ctx context.Context, groupID int64, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
		groupID, userID).Scan(&exists)
	return exists, err
}

// CreateGroup inserts the group and its initial members in one transaction.
func (r *Repository) CreateGroup(ctx context.Context, g *Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO groups (name, description, creator_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		g.Name, g.Description, g.CreatorID, g.CreatedAt).Scan(&g.ID)
	if err != nil {
		return err
	}
	for i := range g.Members {
		g.Members[i].GroupID = g.ID
		m := g.Members[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES ($1, $2, $3, $4)`,
			m.GroupID, m.UserID, m.IsAdmin, m.JoinedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	g := &Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, creator_id, created_at FROM groups WHERE id = $1`, groupID).
		Scan(&g.ID, &g.Name, &g.Description, &g.CreatorID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id, user_id, is_admin, joined_at FROM group_members WHERE group_id = $1 ORDER BY joined_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.IsAdmin, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.JoinedAt = m.JoinedAt.UTC()
		g.Members = append(g.Members, m)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return g, rows.Err()
}

func (r *Repository) UpdateGroup(ctx context.Context, groupID int64, name, description string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE groups SET name = $2, description = $3 WHERE id = $1`, groupID, name, description)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *Repository) AddMember(ctx context.Context, m Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES ($1, $2, $3, $4)`,
		m.GroupID, m.UserID, m.IsAdmin, m.JoinedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyMember
	}
	return err
}

func (r *Repository) RemoveMember(ctx context.Context, groupID int64, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	return nil
}

func (r *Repository) SetAdmin(ctx context.Context, groupID int64, userID string, isAdmin bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE group_members SET is_admin = $3 WHERE group_id = $1 AND user_id = $2`, groupID, userID, isAdmin)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotMember
	}
	return nil
}
