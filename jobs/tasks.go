package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeStatusNotice notifies the review counterparty of a status change.
	TaskTypeStatusNotice = "timesheet:status_notice"
	// TaskTypeFillActuals copies realized week hours into a planning version.
	TaskTypeFillActuals = "planning:fill_actuals"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// StatusNoticePayload identifies a review status change to announce.
type StatusNoticePayload struct {
	UserID  int64  `json:"user_id"`
	WeekKey string `json:"week_key"`
	Status  string `json:"status"`
}

// FillActualsPayload identifies a queued fill-actuals run.
type FillActualsPayload struct {
	RunID     string `json:"run_id"`
	VersionID int64  `json:"version_id"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewStatusNoticeTask constructs a status notification task.
func NewStatusNoticeTask(payload StatusNoticePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStatusNotice, data), nil
}

// NewFillActualsTask constructs a fill-actuals task.
func NewFillActualsTask(payload FillActualsPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeFillActuals, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: integrate with SMTP/Mailpit in phase 2.
	fmt.Printf("[jobs] send email to %s subject=%s\n", payload.To, payload.Subject)
	return nil
}
