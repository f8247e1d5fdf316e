package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
)

// wsPipe dials a loopback WebSocket and returns both ends.
func wsPipe(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case server = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
	}
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

func readChat(t *testing.T, conn *websocket.Conn) models.ChatMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env WSMessage
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	var m models.ChatMessage
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestClient_BacklogLargerThanSendBuffer(t *testing.T) {
	serverConn, clientConn := wsPipe(t)
	webinarID := uuid.New()
	c := &Client{
		ID:        uuid.New().String(),
		WebinarID: webinarID,
		conn:      serverConn,
		send:      make(chan WSMessage, 256),
		logger:    zap.NewNop(),
	}

	const n = 300 // more history than the send buffer holds
	base := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	backlog := make([]models.ChatMessage, n)
	for i := range backlog {
		backlog[i] = models.ChatMessage{
			ID:        uuid.New(),
			WebinarID: webinarID,
			Sender:    "Guest 7",
			Text:      fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
	}

	type result struct {
		msgs []models.ChatMessage
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		var res result
		for i := 0; i < n; i++ {
			_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var env WSMessage
			if err := clientConn.ReadJSON(&env); err != nil {
				res.err = err
				break
			}
			var m models.ChatMessage
			if err := json.Unmarshal(env.Data, &m); err != nil {
				res.err = err
				break
			}
			res.msgs = append(res.msgs, m)
		}
		resCh <- res
	}()

	if err := c.sendBacklog(backlog); err != nil {
		t.Fatalf("sendBacklog: %v", err)
	}
	res := <-resCh
	if res.err != nil {
		t.Fatalf("reader: %v", res.err)
	}
	if len(res.msgs) != n {
		t.Fatalf("received %d of %d history messages", len(res.msgs), n)
	}
	if res.msgs[0].Text != "msg 0" || res.msgs[n-1].Text != "msg 299" {
		t.Errorf("history out of order: first %q, last %q", res.msgs[0].Text, res.msgs[n-1].Text)
	}
}

func TestClient_LiveCopyOfHistoryMessageDropped(t *testing.T) {
	serverConn, clientConn := wsPipe(t)
	webinarID := uuid.New()
	c := &Client{
		ID:        uuid.New().String(),
		WebinarID: webinarID,
		conn:      serverConn,
		send:      make(chan WSMessage, 16),
		logger:    zap.NewNop(),
	}

	boundary := time.Date(2025, 12, 23, 19, 0, 0, 0, time.UTC)
	raced := models.ChatMessage{
		ID:        uuid.New(),
		WebinarID: webinarID,
		Sender:    "Guest 7",
		Text:      "landed during the history query",
		CreatedAt: boundary.Add(time.Second),
	}
	if err := c.sendBacklog([]models.ChatMessage{raced}); err != nil {
		t.Fatalf("sendBacklog: %v", err)
	}
	if got := readChat(t, clientConn); got.ID != raced.ID {
		t.Fatalf("history message missing, got %q", got.Text)
	}

	// The same message arrives again through the live fan-out, followed by a
	// fresh one. Only the fresh one may reach the viewer.
	fresh := models.ChatMessage{
		ID:        uuid.New(),
		WebinarID: webinarID,
		Sender:    "Guest 7",
		Text:      "after",
		CreatedAt: boundary.Add(2 * time.Second),
	}
	racedData, _ := json.Marshal(raced)
	freshData, _ := json.Marshal(fresh)
	c.send <- WSMessage{Event: EventMessage, Data: racedData, id: raced.ID}
	c.send <- WSMessage{Event: EventMessage, Data: freshData, id: fresh.ID}

	go c.writePump()
	defer close(c.send)

	if got := readChat(t, clientConn); got.ID != fresh.ID {
		t.Errorf("expected the history duplicate to be dropped, got %q", got.Text)
	}
}

func TestClampMessage(t *testing.T) {
	if got := clampMessage("  hi  "); got != "hi" {
		t.Errorf("trim: %q", got)
	}

	long := strings.Repeat("a", maxMessageLen+50)
	if got := clampMessage(long); len(got) != maxMessageLen {
		t.Errorf("ascii clamp length %d, want %d", len(got), maxMessageLen)
	}

	multi := strings.Repeat("é", maxMessageLen+50)
	got := clampMessage(multi)
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte character")
	}
	if utf8.RuneCountInString(got) != maxMessageLen {
		t.Errorf("clamp rune count %d, want %d", utf8.RuneCountInString(got), maxMessageLen)
	}

	// Over the limit in bytes but not in characters: left whole.
	wide := strings.Repeat("日", 200)
	if got := clampMessage(wide); got != wide {
		t.Error("text within the character limit must not be truncated")
	}
}
