package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/fallout666222/media-client-manager/internal/jobs"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
)

type fakeUserLookup struct {
	byID map[int64]*users.User
}

func (f *fakeUserLookup) Get(_ context.Context, id int64) (*users.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

type fakeMail struct {
	sent []SendEmailPayload
}

func (f *fakeMail) EnqueueSendEmail(_ context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	f.sent = append(f.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func strPtr(s string) *string { return &s }

func int64Ptr(i int64) *int64 { return &i }

func newNoticeJob(t *testing.T) (*StatusNoticeJob, *fakeMail) {
	t.Helper()
	lookup := &fakeUserLookup{byID: map[int64]*users.User{
		1: {ID: 1, Name: "Worker", Email: strPtr("worker@example.com"), UserHeadID: int64Ptr(2)},
		2: {ID: 2, Name: "Head", Email: strPtr("head@example.com")},
		3: {ID: 3, Name: "Orphan", Email: strPtr("orphan@example.com")},
	}}
	mail := &fakeMail{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	return NewStatusNoticeJob(lookup, mail, logger, metrics), mail
}

func noticeTask(t *testing.T, payload StatusNoticePayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeStatusNotice, data)
}

func TestStatusNoticeSubmitGoesToHead(t *testing.T) {
	job, mail := newNoticeJob(t)

	task := noticeTask(t, StatusNoticePayload{UserID: 1, WeekKey: "2025-01-06", Status: string(shared.StatusUnderReview)})
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, mail.sent, 1)
	require.Equal(t, "head@example.com", mail.sent[0].To)
	require.Contains(t, mail.sent[0].Subject, "2025-01-06")
}

func TestStatusNoticeDecisionGoesToOwner(t *testing.T) {
	job, mail := newNoticeJob(t)

	task := noticeTask(t, StatusNoticePayload{UserID: 1, WeekKey: "2025-01-06", Status: string(shared.StatusAccepted)})
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, mail.sent, 1)
	require.Equal(t, "worker@example.com", mail.sent[0].To)
}

func TestStatusNoticeSkipsWhenNoHead(t *testing.T) {
	job, mail := newNoticeJob(t)

	task := noticeTask(t, StatusNoticePayload{UserID: 3, WeekKey: "2025-01-06", Status: string(shared.StatusUnderReview)})
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, mail.sent)
}

func TestStatusNoticeMalformedPayloadSkipsRetry(t *testing.T) {
	job, _ := newNoticeJob(t)

	task := asynq.NewTask(TaskTypeStatusNotice, []byte("{"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
