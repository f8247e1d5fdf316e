package emaillogs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouse-live/backend/internal/models"
)

// Repository records join-link email deliveries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending email log entry.
func (r *Repository) Create(ctx context.Context, log *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, webinar_id, registration_id, email_type, recipient_email, subject, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	if log.Status == "" {
		log.Status = models.EmailLogStatusPending
	}
	return r.pool.QueryRow(ctx, q,
		log.WebinarID, log.RegistrationID, log.EmailType, log.RecipientEmail, log.Subject, log.Status,
	).Scan(&log.ID, &log.CreatedAt)
}

// MarkSent flips an entry to sent with the delivery timestamp.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE email_logs SET status = $1, sent_at = NOW(), error_message = NULL WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, models.EmailLogStatusSent, id)
	return err
}

// MarkFailed flips an entry to failed and records the error.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `UPDATE email_logs SET status = $1, error_message = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, models.EmailLogStatusFailed, errMsg, id)
	return err
}

// ListByWebinar returns a webinar's email log, newest first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.EmailLog, error) {
	const q = `SELECT id, webinar_id, registration_id, email_type, recipient_email,
			COALESCE(subject, ''), status, sent_at, COALESCE(error_message, ''), created_at
		FROM email_logs WHERE webinar_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var l models.EmailLog
		if err := rows.Scan(&l.ID, &l.WebinarID, &l.RegistrationID, &l.EmailType, &l.RecipientEmail,
			&l.Subject, &l.Status, &l.SentAt, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}
