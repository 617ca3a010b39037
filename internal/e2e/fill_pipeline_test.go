package e2e

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/fallout666222/media-client-manager/internal/jobs"
	"github.com/fallout666222/media-client-manager/jobs"
)

type stubFillExecutor struct {
	runs []string
	err  error
}

func (s *stubFillExecutor) ExecuteFill(_ context.Context, runID string) error {
	s.runs = append(s.runs, runID)
	return s.err
}

func TestFillActualsPipeline(t *testing.T) {
	executor := &stubFillExecutor{}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := jobs.NewFillActualsJob(executor, discardLogger(), metrics)
	task, err := jobs.NewFillActualsTask(jobs.FillActualsPayload{RunID: "run-1", VersionID: 42})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("job handle: %v", err)
	}
	if len(executor.runs) != 1 || executor.runs[0] != "run-1" {
		t.Fatalf("expected run-1 executed once, got %v", executor.runs)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "mcm_job_runs_total", map[string]string{"job": "fill_actuals", "status": "success"}, 1) {
		t.Fatalf("expected mcm_job_runs_total increment for fill actuals")
	}
	if !metricExists(families, "mcm_job_duration_seconds") {
		t.Fatalf("expected mcm_job_duration_seconds to be recorded")
	}
}

func TestFillActualsPipelineFailureCounted(t *testing.T) {
	executor := &stubFillExecutor{err: errors.New("version gone")}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	job := jobs.NewFillActualsJob(executor, discardLogger(), metrics)
	task, err := jobs.NewFillActualsTask(jobs.FillActualsPayload{RunID: "run-2", VersionID: 7})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := job.Handle(context.Background(), task); err == nil {
		t.Fatal("expected handler error")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if !assertCounter(t, families, "mcm_job_failures_total", map[string]string{"job": "fill_actuals"}, 1) {
		t.Fatalf("expected mcm_job_failures_total increment")
	}
}

func assertCounter(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string, expected float64) bool {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				if metric.GetCounter() == nil {
					return false
				}
				if metric.GetCounter().GetValue() == expected {
					return true
				}
			}
		}
	}
	return false
}

func metricExists(families []*dto.MetricFamily, name string) bool {
	for _, fam := range families {
		if fam.GetName() == name {
			return true
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, expected map[string]string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		seen[pair.GetName()] = pair.GetValue()
	}
	for k, v := range expected {
		if seen[k] != v {
			return false
		}
	}
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
