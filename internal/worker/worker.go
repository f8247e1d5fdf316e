package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ouse-live/backend/internal/models"
	"github.com/ouse-live/backend/pkg/queue"
)

// Sender delivers one email.
type Sender interface {
	Send(to, toName, subject, body string) error
}

// JobQueue is the job source. Implemented by queue.Queue.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// DeliveryLog records delivery attempts. Implemented by emaillogs.Repository.
type DeliveryLog interface {
	Create(ctx context.Context, log *models.EmailLog) error
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

// EmailProcessor consumes join-link email jobs from the queue, records each
// attempt in the email log and hands delivery to the Sender.
type EmailProcessor struct {
	jobs   JobQueue
	logs   DeliveryLog
	sender Sender
	logger *zap.Logger
}

// NewEmailProcessor creates the email worker.
func NewEmailProcessor(jobs JobQueue, logs DeliveryLog, sender Sender, logger *zap.Logger) *EmailProcessor {
	return &EmailProcessor{jobs: jobs, logs: logs, sender: sender, logger: logger}
}

// Run blocks, processing jobs until ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	p.logger.Info("email worker started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("email worker stopping")
			return
		default:
		}
		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("email worker stopping")
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		if err := p.process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.Error(err), zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
			// Dequeue already popped the job from the list. Retry on a
			// detached context so a shutdown that interrupted the job does
			// not also drop it.
			retryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if rerr := p.jobs.Retry(retryCtx, job); rerr != nil {
				p.logger.Error("retry failed", zap.Error(rerr), zap.String("job_id", job.ID))
			}
			cancel()
		}
	}
}

func (p *EmailProcessor) process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeJoinLinkEmail:
		return p.processJoinLink(ctx, job)
	default:
		p.logger.Warn("unknown job type, dropping", zap.String("type", string(job.Type)), zap.String("job_id", job.ID))
		return nil
	}
}

func (p *EmailProcessor) processJoinLink(ctx context.Context, job *queue.Job) error {
	var payload queue.JoinLinkEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// Not retryable; drop with a log line.
		p.logger.Warn("invalid join-link payload, dropping", zap.Error(err), zap.String("job_id", job.ID))
		return nil
	}

	subject := fmt.Sprintf("Your link for %s", payload.WebinarTitle)
	if payload.WebinarTitle == "" {
		subject = "Your webinar link"
	}

	entry := &models.EmailLog{
		WebinarID:      &payload.WebinarID,
		RegistrationID: &payload.RegistrationID,
		EmailType:      models.EmailTypeJoinLink,
		RecipientEmail: payload.RecipientEmail,
		Subject:        subject,
	}
	if err := p.logs.Create(ctx, entry); err != nil {
		return fmt.Errorf("create email log: %w", err)
	}

	body := joinLinkBody(payload)
	if err := p.sender.Send(payload.RecipientEmail, payload.RecipientName, subject, body); err != nil {
		if merr := p.logs.MarkFailed(ctx, entry.ID, err.Error()); merr != nil {
			p.logger.Error("mark failed errored", zap.Error(merr), zap.String("email_log_id", entry.ID.String()))
		}
		if errors.Is(err, ErrMailerDisabled) {
			// Retrying will not help until SMTP is configured.
			p.logger.Warn("smtp not configured, join-link email skipped", zap.String("recipient", payload.RecipientEmail))
			return nil
		}
		return fmt.Errorf("send email: %w", err)
	}
	if err := p.logs.MarkSent(ctx, entry.ID); err != nil {
		p.logger.Error("mark sent errored", zap.Error(err), zap.String("email_log_id", entry.ID.String()))
	}
	p.logger.Info("join-link email sent",
		zap.String("recipient", payload.RecipientEmail),
		zap.String("webinar_id", payload.WebinarID.String()),
	)
	return nil
}

func joinLinkBody(p queue.JoinLinkEmailPayload) string {
	name := p.RecipientName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"Hi %s,\r\n\r\nYou're registered for %s.\r\n\r\nUse this link to join when the session starts:\r\n%s\r\n\r\nSee you there!\r\n",
		name, p.WebinarTitle, p.JoinURL,
	)
}
