package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouse-live/backend/internal/models"
)

// Repository handles chat message persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat message repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a message. created_at comes from the database clock, so
// ordering and session filtering cannot be skewed by the sender.
func (r *Repository) Create(ctx context.Context, webinarID uuid.UUID, sender, text string) (*models.ChatMessage, error) {
	const q = `INSERT INTO messages (id, webinar_id, sender, text)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at`
	m := &models.ChatMessage{WebinarID: webinarID, Sender: sender, Text: text}
	if err := r.pool.QueryRow(ctx, q, webinarID, sender, text).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// ListSince returns messages created at or after the session boundary,
// oldest first. The bound is inclusive.
func (r *Repository) ListSince(ctx context.Context, webinarID uuid.UUID, since time.Time) ([]models.ChatMessage, error) {
	const q = `SELECT id, webinar_id, sender, text, created_at FROM messages
		WHERE webinar_id = $1 AND created_at >= $2
		ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, q, webinarID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.WebinarID, &m.Sender, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
