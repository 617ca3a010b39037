package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/fallout666222/media-client-manager/internal/jobs"
)

// FillExecutor runs a previously requested fill-actuals batch.
type FillExecutor interface {
	ExecuteFill(ctx context.Context, runID string) error
}

// FillActualsJob copies realized week hours into the locked quarters of a
// planning version. The run record carries the per-quarter outcome.
type FillActualsJob struct {
	Planning FillExecutor
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewFillActualsJob wires dependencies for the fill-actuals handler.
func NewFillActualsJob(planning FillExecutor, logger *slog.Logger, metrics *jobmetrics.Metrics) *FillActualsJob {
	return &FillActualsJob{Planning: planning, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeFillActuals tasks.
func (j *FillActualsJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("fill_actuals")
	var payload FillActualsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if payload.RunID == "" {
		_ = tracker.End(nil)
		return asynq.SkipRetry
	}

	err := j.Planning.ExecuteFill(ctx, payload.RunID)
	if err != nil {
		j.Logger.Error("fill actuals run",
			slog.String("run_id", payload.RunID),
			slog.Int64("version_id", payload.VersionID),
			slog.Any("error", err))
		return tracker.End(err)
	}
	j.Logger.Info("fill actuals run finished",
		slog.String("run_id", payload.RunID),
		slog.Int64("version_id", payload.VersionID))
	return tracker.End(nil)
}
