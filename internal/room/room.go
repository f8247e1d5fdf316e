// Package room runs the live-room lifecycle for each webinar: fetch the
// record once, resolve the session phase synchronously, then keep
// re-resolving on a timer so viewers cross waiting → live (and back, once the
// session window closes) without reloading.
package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/internal/player"
	"github.com/ouse-live/backend/internal/session"
)

// EventPhase is broadcast to connected clients when a room's phase or player
// instance changes.
const EventPhase = "phase"

// Broadcaster pushes room events to connected clients (the chat hub).
type Broadcaster interface {
	BroadcastEvent(webinarID uuid.UUID, event string, payload interface{})
}

// PlayerView is the embed surface handed to viewers. Key changes whenever the
// offset does, forcing a fresh embed instead of a prop update.
type PlayerView struct {
	Key      string `json:"key"`
	VideoID  string `json:"video_id"`
	EmbedURL string `json:"embed_url"`
}

// ScheduleView is the waiting-screen presentation of an upcoming schedule.
type ScheduleView struct {
	DisplayDate string `json:"display_date"`
	DisplayTime string `json:"display_time"`
}

// Snapshot is the room state served to a viewer. It is computed before it is
// ever served: a joiner never sees offset 0 of a session already in progress.
type Snapshot struct {
	WebinarID     uuid.UUID     `json:"webinar_id"`
	Phase         session.Phase `json:"phase"`
	PublicTitle   string        `json:"public_title"`
	InternalTitle string        `json:"internal_title"`
	OffsetSeconds int           `json:"offset_seconds"`
	SessionStart  *time.Time    `json:"session_start,omitempty"`
	Player        *PlayerView   `json:"player,omitempty"`
	NextSchedule  *ScheduleView `json:"next_schedule,omitempty"`
}

// Room is the per-webinar state machine. The webinar record is read once at
// open; the evaluation loop only does time arithmetic against it.
type Room struct {
	webinarID uuid.UUID
	webinar   *models.Webinar
	embedBase string
	clock     func() time.Time
	broadcast Broadcaster
	logger    *zap.Logger

	mu     sync.Mutex
	result session.Result
	inst   *player.Instance
	cancel context.CancelFunc
	closed bool
}

func newRoom(w *models.Webinar, embedBase string, clock func() time.Time, b Broadcaster, logger *zap.Logger) *Room {
	r := &Room{
		webinarID: w.ID,
		webinar:   w,
		embedBase: embedBase,
		clock:     clock,
		broadcast: b,
		logger:    logger,
	}
	r.evaluate(clock())
	return r
}

// run re-evaluates on every tick until the room's context is cancelled. The
// ticker lives exactly as long as the room: Close stops it, and a tick that
// races Close is a no-op.
func (r *Room) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluate(r.clock())
		}
	}
}

// evaluate resolves the current phase and, on a transition, rebuilds the
// player instance and notifies connected clients. Offset drift within a live
// session does not re-key the player; only entering or leaving live does.
func (r *Room) evaluate(now time.Time) {
	res := session.Resolve(now, r.webinar.Schedules)

	var inst *player.Instance
	if res.Live() {
		inst = player.New(r.webinar.VideoID, res.OffsetSeconds)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	prevPhase := r.result.Phase
	prevKey := ""
	if r.inst != nil {
		prevKey = r.inst.Key()
	}
	// Keep the instance minted at the moment of transition; every viewer who
	// joins this session gets the same key until the session ends. A changed
	// boundary (back-to-back schedules) counts as a new session.
	if res.Live() && prevPhase == session.PhaseLive && r.inst != nil && res.Start.Equal(r.result.Start) {
		inst = r.inst
	}
	r.result = res
	r.inst = inst

	changed := prevPhase != "" && (prevPhase != res.Phase || instKey(inst) != prevKey)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if changed {
		r.logger.Info("room phase transition",
			zap.String("webinar_id", r.webinarID.String()),
			zap.String("from", string(prevPhase)),
			zap.String("to", string(res.Phase)),
		)
		if r.broadcast != nil {
			r.broadcast.BroadcastEvent(r.webinarID, EventPhase, snap)
		}
	}
}

func instKey(i *player.Instance) string {
	if i == nil {
		return ""
	}
	return i.Key()
}

// Snapshot returns the current room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	snap := Snapshot{
		WebinarID:     r.webinarID,
		Phase:         r.result.Phase,
		PublicTitle:   r.webinar.PublicTitle,
		InternalTitle: r.webinar.InternalTitle,
		OffsetSeconds: r.result.OffsetSeconds,
		SessionStart:  r.result.Boundary(),
	}
	if r.inst != nil {
		snap.Player = &PlayerView{
			Key:      r.inst.Key(),
			VideoID:  r.inst.VideoID,
			EmbedURL: r.inst.EmbedURL(r.embedBase),
		}
	}
	if snap.Phase == session.PhaseWaiting && len(r.webinar.Schedules) > 0 {
		s := r.webinar.Schedules[0]
		snap.NextSchedule = &ScheduleView{DisplayDate: s.DisplayDate, DisplayTime: s.DisplayTime}
	}
	return snap
}

// Boundary returns the session start instant, or nil while no candidate
// schedule is matched. The chat feed refuses to subscribe until it is known.
func (r *Room) Boundary() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result.Boundary()
}

// Close stops the evaluation loop. Idempotent.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
