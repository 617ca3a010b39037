package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fallout666222/media-client-manager/internal/clients"
	"github.com/fallout666222/media-client-manager/internal/mediatypes"
	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/timesheet"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

type stubClientDir map[int64]string

func (d stubClientDir) Get(_ context.Context, id int64) (*clients.Client, error) {
	name, ok := d[id]
	if !ok {
		return nil, clients.ErrNotFound
	}
	return &clients.Client{ID: id, Name: name}, nil
}

type stubMediaTypeDir map[int64]string

func (d stubMediaTypeDir) Get(_ context.Context, id int64) (*mediatypes.MediaType, error) {
	name, ok := d[id]
	if !ok {
		return nil, mediatypes.ErrNotFound
	}
	return &mediatypes.MediaType{ID: id, Name: name}, nil
}

func TestWeekSummaryPDFPostsRenderedTable(t *testing.T) {
	var captured string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("files")
		require.NoError(t, err)
		defer file.Close()
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		captured = string(body)
		fmt.Fprint(w, "%PDF-1.4 stub")
	}))
	defer server.Close()

	renderer := NewWeekSummaryRenderer(
		NewClient(server.URL),
		stubClientDir{10: "ACME", 11: "VACATION"},
		stubMediaTypeDir{20: "TV", 21: "Digital"},
	)

	view := &timesheet.WeekView{
		Week:   weeks.Week{Key: "2025-01-06", RequiredHours: 40},
		Status: shared.StatusUnderReview,
		Entries: timesheet.WeekEntries{
			10: {20: {Hours: 24, Status: shared.StatusUnderReview}},
			11: {21: {Hours: 16, Status: shared.StatusUnderReview}},
		},
		TotalHours:    40,
		RequiredHours: 40,
	}

	pdf, err := renderer.WeekSummaryPDF(context.Background(), view, "J. Smith")
	require.NoError(t, err)
	require.Contains(t, string(pdf), "%PDF")

	require.Contains(t, captured, "ACME")
	require.Contains(t, captured, "VACATION")
	require.Contains(t, captured, "TV")
	require.Contains(t, captured, "J. Smith")
	require.Contains(t, captured, "2025-01-06")
	require.Contains(t, captured, "40.00")
}

func TestWeekSummaryPDFUnknownClientFails(t *testing.T) {
	renderer := NewWeekSummaryRenderer(
		NewClient("http://127.0.0.1:0"),
		stubClientDir{},
		stubMediaTypeDir{},
	)

	view := &timesheet.WeekView{
		Week:    weeks.Week{Key: "2025-01-06"},
		Entries: timesheet.WeekEntries{99: {20: {Hours: 1}}},
	}

	_, err := renderer.WeekSummaryPDF(context.Background(), view, "J. Smith")
	require.Error(t, err)
}
