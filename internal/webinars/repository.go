package webinars

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouse-live/backend/internal/models"
)

// Repository handles webinar and schedule persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a webinar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new draft webinar.
func (r *Repository) Create(ctx context.Context, w *models.Webinar) error {
	const q = `INSERT INTO webinars (id, video_id, public_title, internal_title, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	if w.Status == "" {
		w.Status = models.WebinarStatusDraft
	}
	return r.pool.QueryRow(ctx, q, w.VideoID, w.PublicTitle, w.InternalTitle, w.Status).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

// GetByID returns a webinar without its schedules.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	const q = `SELECT id, video_id, public_title, internal_title, status, registration_form, created_at, updated_at
		FROM webinars WHERE id = $1`
	var w models.Webinar
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&w.ID, &w.VideoID, &w.PublicTitle, &w.InternalTitle, &w.Status, &w.RegistrationForm, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWithSchedules returns a webinar with its schedules in insertion order.
// This is the read the live room is built from.
func (r *Repository) GetWithSchedules(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	w, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	schedules, err := r.ListSchedules(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Schedules = schedules
	return w, nil
}

// List returns all webinars with their schedules, newest first.
func (r *Repository) List(ctx context.Context) ([]models.Webinar, error) {
	const q = `SELECT id, video_id, public_title, internal_title, status, registration_form, created_at, updated_at
		FROM webinars ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Webinar
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var w models.Webinar
		if err := rows.Scan(&w.ID, &w.VideoID, &w.PublicTitle, &w.InternalTitle, &w.Status, &w.RegistrationForm, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		byID[w.ID] = len(list)
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]uuid.UUID, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}
	const sq = `SELECT id, webinar_id, starts_at, display_date, display_time, position, created_at
		FROM schedules WHERE webinar_id = ANY($1) ORDER BY webinar_id, position`
	srows, err := r.pool.Query(ctx, sq, ids)
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var s models.Schedule
		if err := srows.Scan(&s.ID, &s.WebinarID, &s.StartsAt, &s.DisplayDate, &s.DisplayTime, &s.Position, &s.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := byID[s.WebinarID]; ok {
			list[i].Schedules = append(list[i].Schedules, s)
		}
	}
	return list, srows.Err()
}

// UpdateConfig applies the configuration step: any nil field is left as-is,
// so an interrupted save is correctable by re-saving.
func (r *Repository) UpdateConfig(ctx context.Context, id uuid.UUID, videoID, publicTitle, internalTitle *string) error {
	const q = `UPDATE webinars SET
		video_id = COALESCE($1, video_id),
		public_title = COALESCE($2, public_title),
		internal_title = COALESCE($3, internal_title),
		updated_at = NOW()
		WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, videoID, publicTitle, internalTitle, id)
	return err
}

// UpdateRegistrationForm replaces the ordered registration field definitions.
func (r *Repository) UpdateRegistrationForm(ctx context.Context, id uuid.UUID, form json.RawMessage) error {
	const q = `UPDATE webinars SET registration_form = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, form, id)
	return err
}

// UpdateStatus sets the webinar status tag.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE webinars SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, status, id)
	return err
}

// Delete removes a webinar; schedules and messages cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM webinars WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// AddSchedule appends a schedule after the webinar's current last position.
func (r *Repository) AddSchedule(ctx context.Context, s *models.Schedule) error {
	const q = `INSERT INTO schedules (id, webinar_id, starts_at, display_date, display_time, position)
		VALUES (gen_random_uuid(), $1, $2, $3, $4,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM schedules WHERE webinar_id = $1))
		RETURNING id, position, created_at`
	return r.pool.QueryRow(ctx, q, s.WebinarID, s.StartsAt, s.DisplayDate, s.DisplayTime).
		Scan(&s.ID, &s.Position, &s.CreatedAt)
}

// DeleteSchedule removes one schedule from a webinar.
func (r *Repository) DeleteSchedule(ctx context.Context, webinarID, scheduleID uuid.UUID) error {
	const q = `DELETE FROM schedules WHERE id = $1 AND webinar_id = $2`
	_, err := r.pool.Exec(ctx, q, scheduleID, webinarID)
	return err
}

// ListSchedules returns a webinar's schedules in insertion order.
func (r *Repository) ListSchedules(ctx context.Context, webinarID uuid.UUID) ([]models.Schedule, error) {
	const q = `SELECT id, webinar_id, starts_at, display_date, display_time, position, created_at
		FROM schedules WHERE webinar_id = $1 ORDER BY position`
	rows, err := r.pool.Query(ctx, q, webinarID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Schedule
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(&s.ID, &s.WebinarID, &s.StartsAt, &s.DisplayDate, &s.DisplayTime, &s.Position, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
