package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fallout666222/media-client-manager/internal/jobs"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
)

// UserLookup resolves accounts when composing notification emails.
type UserLookup interface {
	Get(ctx context.Context, id int64) (*users.User, error)
}

// MailEnqueuer submits composed emails back onto the queue.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// StatusNoticeJob emails the review counterparty after a status change: the
// user's head on submission, the owning user on approval or rejection.
type StatusNoticeJob struct {
	Users   UserLookup
	Mail    MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStatusNoticeJob wires dependencies for the notification handler.
func NewStatusNoticeJob(userLookup UserLookup, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatusNoticeJob {
	return &StatusNoticeJob{Users: userLookup, Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeStatusNotice tasks.
func (j *StatusNoticeJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("status_notice")
	var payload StatusNoticePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}

	owner, err := j.Users.Get(ctx, payload.UserID)
	if err != nil {
		return tracker.End(fmt.Errorf("load user %d: %w", payload.UserID, err))
	}

	recipient := owner
	if shared.Status(payload.Status) == shared.StatusUnderReview {
		if owner.UserHeadID == nil {
			j.Logger.Info("status notice skipped, user has no head",
				slog.Int64("user_id", owner.ID))
			return tracker.End(nil)
		}
		head, err := j.Users.Get(ctx, *owner.UserHeadID)
		if err != nil {
			return tracker.End(fmt.Errorf("load head %d: %w", *owner.UserHeadID, err))
		}
		recipient = head
	}
	if recipient.Email == nil || *recipient.Email == "" {
		j.Logger.Info("status notice skipped, no email on file",
			slog.Int64("user_id", recipient.ID))
		return tracker.End(nil)
	}

	mail := SendEmailPayload{
		To:      *recipient.Email,
		Subject: fmt.Sprintf("Timesheet week %s is now %s", payload.WeekKey, payload.Status),
		Body: fmt.Sprintf("The week %s of %s changed status to %s.",
			payload.WeekKey, owner.Name, payload.Status),
	}
	if _, err := j.Mail.EnqueueSendEmail(ctx, mail); err != nil {
		return tracker.End(fmt.Errorf("enqueue mail: %w", err))
	}
	return tracker.End(nil)
}
