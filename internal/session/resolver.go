// Package session derives the shared "fake live" playback state from
// wall-clock time and a webinar's schedule list. Resolve is a pure function:
// two viewers evaluating it within the same second compute the same offset,
// which is the entire synchronization mechanism. No server-pushed clock
// exists.
package session

import (
	"time"

	"github.com/ouse-live/backend/internal/models"
)

// Phase is the room's top-level display state.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseWaiting Phase = "waiting"
	PhaseLive    Phase = "live"
	PhaseError   Phase = "error"
)

// Room-open policy: a schedule is joinable from PreRoll before its start
// until PostRoll after it. These are product constants, not derived values.
const (
	PreRoll  = 10 * time.Minute
	PostRoll = 120 * time.Minute
)

// Result is the resolver's output, recomputed on every evaluation tick and
// never persisted.
type Result struct {
	// Phase is PhaseWaiting or PhaseLive; loading and error are set by the
	// room, never by the resolver.
	Phase Phase

	// Schedule is the matched candidate, nil when no schedule is within the
	// pre-roll/post-roll window.
	Schedule *models.Schedule

	// Start is the session boundary: the matched schedule's start instant,
	// pending (phase waiting) or active (phase live). The chat feed uses it
	// as its inclusive lower timestamp bound. Zero when Schedule is nil.
	Start time.Time

	// OffsetSeconds is how far into the asset playback should be, floor of
	// now minus start. Zero unless Phase is PhaseLive.
	OffsetSeconds int
}

// Live reports whether the session is currently live.
func (r Result) Live() bool { return r.Phase == PhaseLive }

// Boundary returns the session start, or nil when no candidate matched.
// Callers gate the chat subscription on a non-nil boundary.
func (r Result) Boundary() *time.Time {
	if r.Schedule == nil {
		return nil
	}
	t := r.Start
	return &t
}

// Resolve classifies now against the schedule list. Candidates are scanned in
// schedule order and the first match wins, not the nearest-to-now, so
// overlapping schedules resolve the same way on every call.
func Resolve(now time.Time, schedules []models.Schedule) Result {
	for i := range schedules {
		s := &schedules[i]
		delta := now.Sub(s.StartsAt)
		if delta <= -PreRoll || delta >= PostRoll {
			continue
		}
		if delta < 0 {
			// Inside the pre-roll window: not live yet, but the boundary is
			// already known so the chat can mount.
			return Result{Phase: PhaseWaiting, Schedule: s, Start: s.StartsAt}
		}
		return Result{
			Phase:         PhaseLive,
			Schedule:      s,
			Start:         s.StartsAt,
			OffsetSeconds: int(delta / time.Second),
		}
	}
	return Result{Phase: PhaseWaiting}
}
