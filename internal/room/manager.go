package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
)

// WebinarFetcher loads a webinar with its schedules. Implemented by
// webinars.Repository.
type WebinarFetcher interface {
	GetWithSchedules(ctx context.Context, id uuid.UUID) (*models.Webinar, error)
}

// Options configures room behavior.
type Options struct {
	EmbedBaseURL string
	EvalInterval time.Duration
	Clock        func() time.Time // nil means time.Now
}

// Manager keys rooms by webinar id, creating them on first access. A failed
// fetch is never cached as a room: the caller gets the error (the viewer's
// terminal error screen) and the next request retries the fetch.
type Manager struct {
	fetcher   WebinarFetcher
	broadcast Broadcaster
	opts      Options
	logger    *zap.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*Room
}

// NewManager creates a room manager.
func NewManager(fetcher WebinarFetcher, b Broadcaster, opts Options, logger *zap.Logger) *Manager {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EvalInterval <= 0 {
		opts.EvalInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		fetcher:   fetcher,
		broadcast: b,
		opts:      opts,
		logger:    logger,
		rooms:     make(map[uuid.UUID]*Room),
	}
}

// Room returns the room for a webinar, opening it if needed. Opening fetches
// the record and resolves the session before the room is ever visible, so the
// first snapshot already carries the true offset.
func (m *Manager) Room(ctx context.Context, webinarID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	if r, ok := m.rooms[webinarID]; ok {
		m.mu.Unlock()
		return r, nil
	}
	m.mu.Unlock()

	w, err := m.fetcher.GetWithSchedules(ctx, webinarID)
	if err != nil {
		return nil, fmt.Errorf("fetch webinar: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have opened the room while we were fetching.
	if r, ok := m.rooms[webinarID]; ok {
		return r, nil
	}
	r := newRoom(w, m.opts.EmbedBaseURL, m.opts.Clock, m.broadcast, m.logger)
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(runCtx, m.opts.EvalInterval)
	m.rooms[webinarID] = r
	m.logger.Info("room opened", zap.String("webinar_id", webinarID.String()))
	return r, nil
}

// Snapshot opens the room if needed and returns its current state.
func (m *Manager) Snapshot(ctx context.Context, webinarID uuid.UUID) (Snapshot, error) {
	r, err := m.Room(ctx, webinarID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.Snapshot(), nil
}

// Boundary returns the active session boundary for a webinar, nil when no
// session is pending or live.
func (m *Manager) Boundary(ctx context.Context, webinarID uuid.UUID) (*time.Time, error) {
	r, err := m.Room(ctx, webinarID)
	if err != nil {
		return nil, err
	}
	return r.Boundary(), nil
}

// Invalidate closes and discards the room for a webinar. Called by the
// configuration surface after updates or deletes; the next viewer request
// reloads the record.
func (m *Manager) Invalidate(webinarID uuid.UUID) {
	m.mu.Lock()
	r, ok := m.rooms[webinarID]
	if ok {
		delete(m.rooms, webinarID)
	}
	m.mu.Unlock()
	if ok {
		r.Close()
		m.logger.Info("room invalidated", zap.String("webinar_id", webinarID.String()))
	}
}

// CloseAll stops every room's evaluation loop. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, id)
	}
	m.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}
