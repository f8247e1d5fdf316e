package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fakeFetcher struct {
	mu      sync.Mutex
	webinar *models.Webinar
	err     error
	calls   int
}

func (f *fakeFetcher) GetWithSchedules(ctx context.Context, id uuid.UUID) (*models.Webinar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.webinar, nil
}

type captureBroadcaster struct {
	mu     sync.Mutex
	events []string
	snaps  []Snapshot
}

func (b *captureBroadcaster) BroadcastEvent(webinarID uuid.UUID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if snap, ok := payload.(Snapshot); ok {
		b.snaps = append(b.snaps, snap)
	}
}

func testWebinar(start time.Time) *models.Webinar {
	id := uuid.New()
	return &models.Webinar{
		ID:          id,
		VideoID:     "abc123def456",
		PublicTitle: "Workshop",
		Status:      models.WebinarStatusPublished,
		Schedules: []models.Schedule{{
			ID:          uuid.New(),
			WebinarID:   id,
			StartsAt:    start,
			DisplayDate: "23 Dec 2025",
			DisplayTime: "07:00 PM",
		}},
	}
}

func newTestManager(f *fakeFetcher, clock *fakeClock, b Broadcaster) *Manager {
	return NewManager(f, b, Options{
		EmbedBaseURL: "https://player.example.com/embed/",
		EvalInterval: time.Hour, // ticks driven manually in tests
		Clock:        clock.Now,
	}, zap.NewNop())
}

func TestManager_OpenResolvesBeforeFirstSnapshot(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(5*time.Minute + 30*time.Second)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	m := newTestManager(f, clock, nil)
	defer m.CloseAll()

	snap, err := m.Snapshot(context.Background(), f.webinar.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != session.PhaseLive {
		t.Fatalf("phase %q, want live", snap.Phase)
	}
	if snap.OffsetSeconds != 330 {
		t.Errorf("offset %d, want 330: the first snapshot must never be offset 0 mid-session", snap.OffsetSeconds)
	}
	if snap.Player == nil || snap.Player.Key != "abc123def456@330" {
		t.Errorf("player %+v, want instance keyed by offset", snap.Player)
	}
	if snap.SessionStart == nil || !snap.SessionStart.Equal(start) {
		t.Errorf("session start %v, want %v", snap.SessionStart, start)
	}
}

func TestManager_FetchErrorIsNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	clock := &fakeClock{now: time.Now().UTC()}
	m := newTestManager(f, clock, nil)
	defer m.CloseAll()

	id := uuid.New()
	if _, err := m.Snapshot(context.Background(), id); err == nil {
		t.Fatal("expected fetch error")
	}
	f.mu.Lock()
	f.err = nil
	f.webinar = testWebinar(clock.Now().Add(time.Hour))
	f.webinar.ID = id
	f.mu.Unlock()

	if _, err := m.Snapshot(context.Background(), id); err != nil {
		t.Fatalf("second request should retry the fetch: %v", err)
	}
	if f.calls != 2 {
		t.Errorf("fetch calls %d, want 2", f.calls)
	}
}

func TestRoom_WaitingToLiveTransitionBroadcasts(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(-8 * time.Minute)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	b := &captureBroadcaster{}
	m := newTestManager(f, clock, b)
	defer m.CloseAll()

	r, err := m.Room(context.Background(), f.webinar.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	snap := r.Snapshot()
	if snap.Phase != session.PhaseWaiting {
		t.Fatalf("phase %q, want waiting during pre-roll", snap.Phase)
	}
	if snap.SessionStart == nil || !snap.SessionStart.Equal(start) {
		t.Error("pending boundary must be exposed during pre-roll")
	}
	if snap.Player != nil {
		t.Error("no player while waiting")
	}
	if snap.NextSchedule == nil || snap.NextSchedule.DisplayTime != "07:00 PM" {
		t.Errorf("next schedule %+v", snap.NextSchedule)
	}

	clock.Set(start.Add(90 * time.Second))
	r.evaluate(clock.Now())

	snap = r.Snapshot()
	if snap.Phase != session.PhaseLive {
		t.Fatalf("phase %q, want live after crossing the boundary", snap.Phase)
	}
	if snap.Player == nil || snap.Player.Key != "abc123def456@90" {
		t.Errorf("player %+v, want fresh instance at offset 90", snap.Player)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) != 1 || b.events[0] != EventPhase {
		t.Fatalf("events %v, want one phase event", b.events)
	}
	if b.snaps[0].Phase != session.PhaseLive {
		t.Errorf("broadcast snapshot phase %q", b.snaps[0].Phase)
	}
}

func TestRoom_PlayerInstanceStableWithinSession(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(time.Minute)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	b := &captureBroadcaster{}
	m := newTestManager(f, clock, b)
	defer m.CloseAll()

	r, _ := m.Room(context.Background(), f.webinar.ID)
	key := r.Snapshot().Player.Key

	clock.Set(start.Add(10 * time.Minute))
	r.evaluate(clock.Now())

	if got := r.Snapshot().Player.Key; got != key {
		t.Errorf("player re-keyed mid-session: %q -> %q", key, got)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) != 0 {
		t.Errorf("no transition events expected within a live session, got %v", b.events)
	}
}

func TestRoom_LiveDegradesToWaitingAfterWindow(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(time.Minute)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	m := newTestManager(f, clock, nil)
	defer m.CloseAll()

	r, _ := m.Room(context.Background(), f.webinar.ID)

	clock.Set(start.Add(125 * time.Minute))
	r.evaluate(clock.Now())

	snap := r.Snapshot()
	if snap.Phase != session.PhaseWaiting {
		t.Errorf("phase %q, want waiting once the window elapses (no ended state)", snap.Phase)
	}
	if snap.Player != nil {
		t.Error("player must be torn down after the session ends")
	}
	if snap.SessionStart != nil {
		t.Error("boundary must clear when no candidate remains")
	}
}

func TestRoom_EvaluateAfterCloseIsNoOp(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(-5 * time.Minute)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	m := newTestManager(f, clock, nil)

	r, _ := m.Room(context.Background(), f.webinar.ID)
	before := r.Snapshot()
	r.Close()
	r.Close() // idempotent

	clock.Set(start.Add(time.Minute))
	r.evaluate(clock.Now())

	after := r.Snapshot()
	if after.Phase != before.Phase {
		t.Error("a tick racing Close must not mutate room state")
	}
}

func TestManager_InvalidateReloadsRecord(t *testing.T) {
	start := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start.Add(-5 * time.Minute)}
	f := &fakeFetcher{webinar: testWebinar(start)}
	m := newTestManager(f, clock, nil)
	defer m.CloseAll()

	if _, err := m.Room(context.Background(), f.webinar.ID); err != nil {
		t.Fatalf("open: %v", err)
	}
	m.Invalidate(f.webinar.ID)

	if _, err := m.Room(context.Background(), f.webinar.ID); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if f.calls != 2 {
		t.Errorf("fetch calls %d, want 2 after invalidation", f.calls)
	}
}
