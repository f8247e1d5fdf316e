package registrations

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouse-live/backend/internal/models"
)

// Repository handles registration persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a registration repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert inserts a registration, or refreshes the existing one when the same
// email registers for the same webinar again.
func (r *Repository) Upsert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (id, webinar_id, email, full_name, responses)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		ON CONFLICT (webinar_id, email) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			responses = EXCLUDED.responses,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`
	if reg.Responses == nil {
		reg.Responses = json.RawMessage(`{}`)
	}
	return r.pool.QueryRow(ctx, q, reg.WebinarID, reg.Email, reg.FullName, reg.Responses).
		Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
}

// GetByID returns a registration.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	const q = `SELECT id, webinar_id, email, full_name, responses, created_at, updated_at
		FROM registrations WHERE id = $1`
	var reg models.Registration
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&reg.ID, &reg.WebinarID, &reg.Email, &reg.FullName, &reg.Responses, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ListByWebinar returns a webinar's registrations, newest first.
func (r *Repository) ListByWebinar(ctx context.Context, webinarID uuid.UUID) ([]models.Registration, error) {
	const q = `SELECT id, webinar_id, email, full_name, responses, created_at, updated_at
		FROM registrations WHERE webinar_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.ID, &reg.WebinarID, &reg.Email, &reg.FullName, &reg.Responses, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, reg)
	}
	return list, rows.Err()
}
