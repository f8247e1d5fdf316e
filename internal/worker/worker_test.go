package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/pkg/queue"
)

type fakeJobQueue struct {
	mu          sync.Mutex
	jobs        []*queue.Job
	retried     []*queue.Job
	retryCtxErr []error
}

func (f *fakeJobQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	f.mu.Lock()
	if len(f.jobs) > 0 {
		job := f.jobs[0]
		f.jobs = f.jobs[1:]
		f.mu.Unlock()
		return job, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeJobQueue) Retry(ctx context.Context, job *queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retried = append(f.retried, job)
	f.retryCtxErr = append(f.retryCtxErr, ctx.Err())
	return nil
}

type fakeDeliveryLog struct {
	mu      sync.Mutex
	created []*models.EmailLog
	sent    []uuid.UUID
	failed  map[uuid.UUID]string
}

func (f *fakeDeliveryLog) Create(ctx context.Context, log *models.EmailLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	log.ID = uuid.New()
	f.created = append(f.created, log)
	return nil
}

func (f *fakeDeliveryLog) MarkSent(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeDeliveryLog) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = make(map[uuid.UUID]string)
	}
	f.failed[id] = errMsg
	return nil
}

type fakeSender struct {
	err    error
	onSend func()
}

func (f *fakeSender) Send(to, toName, subject, body string) error {
	if f.onSend != nil {
		f.onSend()
	}
	return f.err
}

func joinJob(t *testing.T) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.JoinLinkEmailPayload{
		WebinarID:      uuid.New(),
		RegistrationID: uuid.New(),
		RecipientEmail: "ada@example.com",
		RecipientName:  "Ada",
		JoinURL:        "http://localhost:3000/join/tok",
		WebinarTitle:   "Workshop",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{
		ID:        uuid.New().String(),
		Type:      queue.JobTypeJoinLinkEmail,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

func runUntilStopped(t *testing.T, ctx context.Context, p *EmailProcessor) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestEmailProcessor_DeliversAndMarksSent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &fakeJobQueue{jobs: []*queue.Job{joinJob(t)}}
	logs := &fakeDeliveryLog{}
	p := NewEmailProcessor(q, logs, &fakeSender{onSend: cancel}, zap.NewNop())

	runUntilStopped(t, ctx, p)

	if len(logs.created) != 1 {
		t.Fatalf("created %d log entries, want 1", len(logs.created))
	}
	entry := logs.created[0]
	if entry.EmailType != models.EmailTypeJoinLink {
		t.Errorf("email type %q", entry.EmailType)
	}
	if entry.RecipientEmail != "ada@example.com" {
		t.Errorf("recipient %q", entry.RecipientEmail)
	}
	if len(logs.sent) != 1 || logs.sent[0] != entry.ID {
		t.Error("entry should be marked sent")
	}
	if len(q.retried) != 0 {
		t.Error("successful job must not be retried")
	}
}

func TestEmailProcessor_ShutdownDoesNotDropFailedJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &fakeJobQueue{jobs: []*queue.Job{joinJob(t)}}
	logs := &fakeDeliveryLog{}
	// Delivery fails right as shutdown begins; the popped job must go back
	// on the queue anyway.
	p := NewEmailProcessor(q, logs, &fakeSender{err: errors.New("connection reset"), onSend: cancel}, zap.NewNop())

	runUntilStopped(t, ctx, p)

	if len(q.retried) != 1 {
		t.Fatalf("retried %d jobs, want 1: a popped job must survive a shutdown race", len(q.retried))
	}
	if q.retryCtxErr[0] != nil {
		t.Errorf("retry ran on a cancelled context: %v", q.retryCtxErr[0])
	}
	if len(logs.failed) != 1 {
		t.Errorf("recorded %d failed deliveries, want 1", len(logs.failed))
	}
}

func TestEmailProcessor_MailerDisabledSkipsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &fakeJobQueue{jobs: []*queue.Job{joinJob(t)}}
	logs := &fakeDeliveryLog{}
	p := NewEmailProcessor(q, logs, &fakeSender{err: ErrMailerDisabled, onSend: cancel}, zap.NewNop())

	runUntilStopped(t, ctx, p)

	if len(q.retried) != 0 {
		t.Error("retrying cannot help while smtp is unconfigured")
	}
	if len(logs.failed) != 1 {
		t.Errorf("recorded %d failed deliveries, want 1", len(logs.failed))
	}
}
