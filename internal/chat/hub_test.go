package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
)

func newTestClient(hub *Hub, webinarID uuid.UUID, boundary time.Time) *Client {
	return &Client{
		ID:        uuid.New().String(),
		WebinarID: webinarID,
		Name:      "Guest 42",
		Boundary:  boundary,
		hub:       hub,
		send:      make(chan WSMessage, 16),
		logger:    zap.NewNop(),
	}
}

func drain(c *Client) []WSMessage {
	var out []WSMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func msgAt(webinarID uuid.UUID, text string, at time.Time) models.ChatMessage {
	return models.ChatMessage{
		ID:        uuid.New(),
		WebinarID: webinarID,
		Sender:    "Guest 7",
		Text:      text,
		CreatedAt: at,
	}
}

func TestHub_DeliverMessageHonorsBoundary(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)

	c := newTestClient(hub, webinarID, boundary)
	hub.Register(c)

	hub.deliverMessage(webinarID, msgAt(webinarID, "before", boundary.Add(-time.Second)))
	hub.deliverMessage(webinarID, msgAt(webinarID, "at boundary", boundary))
	hub.deliverMessage(webinarID, msgAt(webinarID, "after", boundary.Add(time.Second)))

	got := drain(c)
	if len(got) != 2 {
		t.Fatalf("delivered %d messages, want 2 (boundary is inclusive, earlier is hidden)", len(got))
	}
	var first models.ChatMessage
	if err := json.Unmarshal(got[0].Data, &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.Text != "at boundary" {
		t.Errorf("first delivered %q, want the boundary-timestamped message", first.Text)
	}
}

func TestHub_ClientsWithDifferentBoundaries(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	early := time.Date(2025, 12, 23, 17, 0, 0, 0, time.UTC)
	late := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)

	a := newTestClient(hub, webinarID, early)
	b := newTestClient(hub, webinarID, late)
	hub.Register(a)
	hub.Register(b)

	hub.deliverMessage(webinarID, msgAt(webinarID, "old session", late.Add(-time.Hour)))

	if len(drain(a)) != 1 {
		t.Error("client in the earlier session should see the message")
	}
	if len(drain(b)) != 0 {
		t.Error("prior-session message leaked into the newer session's view")
	}
}

func TestHub_PublishMessageWithoutRedisDeliversLocally(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)

	c := newTestClient(hub, webinarID, boundary)
	hub.Register(c)

	hub.PublishMessage(webinarID, msgAt(webinarID, "hi", boundary.Add(time.Minute)))
	if len(drain(c)) != 1 {
		t.Error("message should be delivered locally when no Redis bridge is wired")
	}
}

func TestHub_BroadcastEventReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)

	a := newTestClient(hub, webinarID, boundary)
	b := newTestClient(hub, webinarID, boundary.Add(time.Hour))
	hub.Register(a)
	hub.Register(b)

	hub.BroadcastEvent(webinarID, "phase", map[string]string{"phase": "live"})

	for _, c := range []*Client{a, b} {
		got := drain(c)
		if len(got) != 1 || got[0].Event != "phase" {
			t.Errorf("client missed the phase event: %v", got)
		}
	}
}

func TestHub_MessageScopedToWebinar(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	wa, wb := uuid.New(), uuid.New()

	a := newTestClient(hub, wa, boundary)
	b := newTestClient(hub, wb, boundary)
	hub.Register(a)
	hub.Register(b)

	hub.deliverMessage(wa, msgAt(wa, "hello a", boundary.Add(time.Second)))

	if len(drain(a)) != 1 {
		t.Error("client of webinar A should receive its message")
	}
	if len(drain(b)) != 0 {
		t.Error("message crossed into another webinar's room")
	}
}

type fakeSubscriber struct {
	mu         sync.Mutex
	subscribed int
	cancelled  int
}

func (f *fakeSubscriber) SubscribeRoom(webinarID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	f.mu.Lock()
	f.subscribed++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}, nil
}

func TestHub_SubscriptionLifecycle(t *testing.T) {
	sub := &fakeSubscriber{}
	hub := NewHub(zap.NewNop(), nil, sub)
	webinarID := uuid.New()
	boundary := time.Now().UTC()

	a := newTestClient(hub, webinarID, boundary)
	b := newTestClient(hub, webinarID, boundary)
	hub.Register(a)
	hub.Register(b)

	if sub.subscribed != 1 {
		t.Errorf("subscribed %d times, want once per webinar", sub.subscribed)
	}
	if hub.AudienceCount(webinarID) != 2 {
		t.Errorf("audience %d, want 2", hub.AudienceCount(webinarID))
	}

	hub.Unregister(a)
	if sub.cancelled != 0 {
		t.Error("subscription must survive while clients remain")
	}
	hub.Unregister(b)
	if sub.cancelled != 1 {
		t.Error("last client out must cancel the Redis subscription")
	}
	if hub.AudienceCount(webinarID) != 0 {
		t.Error("audience should be empty")
	}

	// Unregister after teardown is a no-op, not a panic.
	hub.Unregister(b)
}

func TestHub_HandleRemoteFiltersMessages(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	webinarID := uuid.New()
	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)

	c := newTestClient(hub, webinarID, boundary)
	hub.Register(c)

	old, _ := json.Marshal(msgAt(webinarID, "stale", boundary.Add(-time.Minute)))
	fresh, _ := json.Marshal(msgAt(webinarID, "fresh", boundary.Add(time.Minute)))
	hub.handleRemote(webinarID, EventMessage, old)
	hub.handleRemote(webinarID, EventMessage, fresh)

	got := drain(c)
	if len(got) != 1 {
		t.Fatalf("delivered %d, want 1: remote messages must pass the same boundary filter", len(got))
	}
}
