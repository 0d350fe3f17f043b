package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository is the Postgres MessageStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	var attachmentURL, attachmentName sql.NullString
	if msg.Attachment != nil {
		attachmentURL = sql.NullString{String: msg.Attachment.URL, Valid: true}
		attachmentName = sql.NullString{String: msg.Attachment.Name, Valid: true}
	}

	query := `
		INSERT INTO messages (sender_id, receiver_id, group_id, content, message_type,
		                      attachment_url, attachment_name, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		msg.SenderID, msg.ReceiverID, msg.GroupID, msg.Content, int(msg.Type),
		attachmentURL, attachmentName, msg.IsRead, msg.CreatedAt,
	).Scan(&msg.ID)
}

func (r *Repository) Query(ctx context.Context, filter MessageFilter, page Pagination) ([]Message, error) {
	const columns = `id, sender_id, receiver_id, group_id, content, message_type,
		attachment_url, attachment_name, is_read, created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if filter.GroupID != nil {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+columns+`
			FROM messages
			WHERE group_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2 OFFSET $3`,
			*filter.GroupID, page.Limit, page.Offset)
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT `+columns+`
			FROM messages
			WHERE group_id IS NULL
			  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
			ORDER BY created_at DESC, id DESC
			LIMIT $3 OFFSET $4`,
			filter.UserA, filter.UserB, page.Limit, page.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg            Message
			receiverID     sql.NullString
			groupID        sql.NullInt64
			msgType        int
			attachmentURL  sql.NullString
			attachmentName sql.NullString
			createdAt      time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.SenderID, &receiverID, &groupID, &msg.Content, &msgType,
			&attachmentURL, &attachmentName, &msg.IsRead, &createdAt); err != nil {
			return nil, err
		}
		if receiverID.Valid {
			msg.ReceiverID = &receiverID.String
		}
		if groupID.Valid {
			msg.GroupID = &groupID.Int64
		}
		msg.Type = MessageType(msgType)
		if !msg.Type.Valid() {
			return nil, fmt.Errorf("message %d: %w: stored type %d", msg.ID, ErrInvalidMessage, msgType)
		}
		if attachmentURL.Valid {
			msg.Attachment = &Attachment{URL: attachmentURL.String, Name: attachmentName.String}
		}
		msg.CreatedAt = createdAt.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *Repository) UnreadCounts(ctx context.Context, receiverID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND is_read = FALSE
		GROUP BY sender_id`, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			senderID string
			n        int
		)
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, err
		}
		counts[senderID] = n
	}
	return counts, rows.Err()
}

// MarkRead flips the given messages to read in one statement. Already-read rows are untouched.
func (r *Repository) MarkRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE id = ANY($1) AND is_read = FALSE`, ids)
	return err
}
