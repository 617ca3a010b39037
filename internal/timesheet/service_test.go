package timesheet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

type fakeRepo struct {
	statusIDs    map[string]int64
	statusNames  map[int64]string
	statuses     map[string]int64   // "user:week" -> status id
	cells        map[string]float64 // "user:week:client:type"
	failStatusID bool

	lastChronological bool
}

func newFakeTimesheetRepo() *fakeRepo {
	f := &fakeRepo{
		statusIDs:   make(map[string]int64),
		statusNames: make(map[int64]string),
		statuses:    make(map[string]int64),
		cells:       make(map[string]float64),
	}
	for i, name := range []string{"unconfirmed", "under review", "accepted", "needs revision"} {
		id := int64(i + 1)
		f.statusIDs[name] = id
		f.statusNames[id] = name
	}
	return f
}

func (f *fakeRepo) setStatus(userID int64, weekKey string, status shared.Status) {
	name, _ := shared.StatusName(status)
	f.statuses[fmt.Sprintf("%d:%s", userID, weekKey)] = f.statusIDs[name]
}

func (f *fakeRepo) StatusID(_ context.Context, name string) (int64, error) {
	if f.failStatusID {
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
	}
	id, ok := f.statusIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
	}
	return id, nil
}

func (f *fakeRepo) Statuses(_ context.Context, userID int64, chronological bool) ([]WeekStatus, error) {
	f.lastChronological = chronological
	var out []WeekStatus
	for key, id := range f.statuses {
		var uid int64
		var week string
		fmt.Sscanf(key, "%d:%s", &uid, &week)
		if uid != userID {
			continue
		}
		status, _ := shared.StatusFromName(f.statusNames[id])
		out = append(out, WeekStatus{UserID: uid, WeekKey: week, Status: status})
	}
	if chronological {
		sort.Slice(out, func(i, j int) bool { return out[i].WeekKey < out[j].WeekKey })
	}
	return out, nil
}

func (f *fakeRepo) Status(_ context.Context, userID int64, weekKey string) (*WeekStatus, error) {
	id, ok := f.statuses[fmt.Sprintf("%d:%s", userID, weekKey)]
	if !ok {
		return nil, nil
	}
	status, _ := shared.StatusFromName(f.statusNames[id])
	return &WeekStatus{UserID: userID, WeekKey: weekKey, Status: status}, nil
}

func (f *fakeRepo) UpsertWeekStatus(_ context.Context, userID int64, weekKey string, statusID int64) error {
	f.statuses[fmt.Sprintf("%d:%s", userID, weekKey)] = statusID
	return nil
}

func cellKey(userID int64, weekKey string, clientID, mediaTypeID int64) string {
	return fmt.Sprintf("%d:%s:%d:%d", userID, weekKey, clientID, mediaTypeID)
}

func (f *fakeRepo) WeekEntries(_ context.Context, userID int64, weekKey string) (WeekEntries, error) {
	entries := make(WeekEntries)
	prefix := fmt.Sprintf("%d:%s:", userID, weekKey)
	for key, hours := range f.cells {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		var clientID, mediaTypeID int64
		if n, _ := fmt.Sscanf(strings.TrimPrefix(key, prefix), "%d:%d", &clientID, &mediaTypeID); n != 2 {
			continue
		}
		if entries[clientID] == nil {
			entries[clientID] = make(map[int64]EntryCell)
		}
		entries[clientID][mediaTypeID] = EntryCell{Hours: hours}
	}
	return entries, nil
}

func (f *fakeRepo) CellHours(_ context.Context, userID int64, weekKey string, clientID, mediaTypeID int64) (float64, error) {
	return f.cells[cellKey(userID, weekKey, clientID, mediaTypeID)], nil
}

func (f *fakeRepo) WeekTotal(_ context.Context, userID int64, weekKey string) (float64, error) {
	entries, _ := f.WeekEntries(context.Background(), userID, weekKey)
	return entries.Total(), nil
}

func (f *fakeRepo) UpsertHours(_ context.Context, userID int64, weekKey string, clientID, mediaTypeID int64, hours float64) error {
	f.cells[cellKey(userID, weekKey, clientID, mediaTypeID)] = hours
	return nil
}

func (f *fakeRepo) WeekPercentages(_ context.Context, _ int64, _ string) ([]WeekPercentage, error) {
	return nil, nil
}

func (f *fakeRepo) WithTx(_ context.Context, fn func(Repository) error) error {
	return fn(f)
}

type fakeDirectory map[int64]*users.User

func (f fakeDirectory) Get(_ context.Context, id int64) (*users.User, error) {
	user, ok := f[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (f fakeDirectory) IsApproverFor(_ context.Context, actor, user *users.User) bool {
	if actor == nil || user == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}
	return user.UserHeadID != nil && *user.UserHeadID == actor.ID
}

type gridResolver struct{}

func (gridResolver) Resolve(_ context.Context, date time.Time, firstWeek time.Time) (weeks.Week, error) {
	return weeks.Resolve(date, nil, firstWeek)
}

func newTestService(repo *fakeRepo, dir fakeDirectory) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, dir, gridResolver{}, nil, nil, nil, logger)
}

func testDirectory() fakeDirectory {
	firstWeek := day("2025-01-06")
	headID := int64(2)
	return fakeDirectory{
		1: {ID: 1, Name: "Worker", Role: users.RoleUser, FirstWeek: &firstWeek, UserHeadID: &headID},
		2: {ID: 2, Name: "Head", Role: users.RoleManager, FirstWeek: &firstWeek},
		3: {ID: 3, Name: "Admin", Role: users.RoleAdmin, FirstWeek: &firstWeek},
		4: {ID: 4, Name: "Other", Role: users.RoleUser, FirstWeek: &firstWeek},
	}
}

func TestUpdateEntryRejectsCapOverflow(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()
	date := day("2025-01-06")

	require.NoError(t, svc.UpdateEntry(ctx, 1, 1, date, 10, 1, 38))

	err := svc.UpdateEntry(ctx, 1, 1, date, 11, 1, 7)
	require.ErrorIs(t, err, ErrHoursCapExceeded)

	hours, _ := repo.CellHours(ctx, 1, "2025-01-06", 11, 1)
	require.Zero(t, hours)
}

func TestUpdateEntryCapCountsReplacedCell(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()
	date := day("2025-01-06")

	require.NoError(t, svc.UpdateEntry(ctx, 1, 1, date, 10, 1, 38))
	// Raising the same cell replaces its previous value, so 40 total fits.
	require.NoError(t, svc.UpdateEntry(ctx, 1, 1, date, 10, 1, 40))
}

func TestUpdateEntryAdminOverridesCap(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()
	date := day("2025-01-06")

	require.NoError(t, svc.UpdateEntry(ctx, 3, 1, date, 10, 1, 45))
	hours, _ := repo.CellHours(ctx, 1, "2025-01-06", 10, 1)
	require.Equal(t, 45.0, hours)
}

func TestUpdateEntryBlockedOnSubmittedWeek(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())

	err := svc.UpdateEntry(context.Background(), 1, 1, day("2025-01-06"), 10, 1, 5)
	require.ErrorIs(t, err, ErrWeekSubmitted)
}

func TestUpdateEntryRejectsOtherUsersWeek(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())

	err := svc.UpdateEntry(context.Background(), 4, 1, day("2025-01-06"), 10, 1, 5)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUpdateEntryNoWeekBeforeFirstWeek(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())

	err := svc.UpdateEntry(context.Background(), 1, 1, day("2024-12-23"), 10, 1, 5)
	require.ErrorIs(t, err, weeks.ErrNoWeek)
}

func TestSubmitMovesWeekUnderReview(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())

	status, err := svc.Submit(context.Background(), 1, 1, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, status.Status)

	stored, err := repo.Status(context.Background(), 1, "2025-01-06")
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, stored.Status)
}

func TestSubmitOnlyByOwner(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())

	_, err := svc.Submit(context.Background(), 2, 1, day("2025-01-06"))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestApproveRequiresApprover(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()
	date := day("2025-01-06")

	_, err := svc.Approve(ctx, 4, 1, date)
	require.ErrorIs(t, err, ErrForbidden)

	status, err := svc.Approve(ctx, 2, 1, date)
	require.NoError(t, err)
	require.Equal(t, shared.StatusAccepted, status.Status)
}

func TestAcceptedWeekCannotReturnToReview(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusAccepted)
	svc := newTestService(repo, testDirectory())

	_, err := svc.Submit(context.Background(), 1, 1, day("2025-01-06"))
	require.ErrorIs(t, err, shared.ErrInvalidStatusTransition)
}

func TestRejectThenResubmit(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()
	date := day("2025-01-06")

	status, err := svc.Reject(ctx, 2, 1, date)
	require.NoError(t, err)
	require.Equal(t, shared.StatusNeedsRevision, status.Status)

	status, err = svc.Submit(ctx, 1, 1, date)
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, status.Status)
}

func TestTransitionAbortsWhenStatusIDUnresolvable(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.failStatusID = true
	svc := newTestService(repo, testDirectory())

	_, err := svc.Submit(context.Background(), 1, 1, day("2025-01-06"))
	require.ErrorIs(t, err, shared.ErrUnknownStatusName)

	stored, err := repo.Status(context.Background(), 1, "2025-01-06")
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestWeekReturnsEmptyEntriesForResolvedWeek(t *testing.T) {
	repo := newFakeTimesheetRepo()
	svc := newTestService(repo, testDirectory())

	view, err := svc.Week(context.Background(), 1, 1, day("2025-01-06"))
	require.NoError(t, err)
	require.NotNil(t, view.Entries)
	require.Empty(t, view.Entries)
	require.Equal(t, shared.StatusUnconfirmed, view.Status)
	require.Equal(t, weeks.DefaultRequiredHours, view.RequiredHours)
}

func TestWeekCopiesLedgerStatusOntoCells(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()

	require.NoError(t, repo.UpsertHours(ctx, 1, "2025-01-06", 10, 1, 8))

	view, err := svc.Week(ctx, 1, 1, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, view.Entries[10][1].Status)
	require.Equal(t, 8.0, view.TotalHours)
}

func TestWeekLeavesCachedEntriesUnstamped(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()

	require.NoError(t, repo.UpsertHours(ctx, 1, "2025-01-06", 10, 1, 8))

	view, err := svc.Week(ctx, 1, 1, day("2025-01-06"))
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, view.Entries[10][1].Status)

	// The cache must still hold the raw repository copy; the ledger status
	// belongs to the response view only.
	cached, err := svc.cache.Get(ctx, 1, "2025-01-06", func(context.Context) (WeekEntries, error) {
		t.Fatal("expected a cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, shared.Status(""), cached[10][1].Status)
}

func TestWeekConcurrentReadsShareCache(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()

	require.NoError(t, repo.UpsertHours(ctx, 1, "2025-01-06", 10, 1, 8))
	_, err := svc.Week(ctx, 1, 1, day("2025-01-06"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.Week(ctx, 1, 1, day("2025-01-06"))
			if err != nil {
				errs <- err
				return
			}
			if view.Entries[10][1].Status != shared.StatusUnderReview {
				errs <- fmt.Errorf("unexpected cell status %q", view.Entries[10][1].Status)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestStatusesOrderingVariants(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-13", shared.StatusAccepted)
	repo.setStatus(1, "2025-01-06", shared.StatusUnderReview)
	svc := newTestService(repo, testDirectory())
	ctx := context.Background()

	rows, err := svc.Statuses(ctx, 1, 1, true)
	require.NoError(t, err)
	require.True(t, repo.lastChronological)
	require.Len(t, rows, 2)
	require.Equal(t, "2025-01-06", rows[0].WeekKey)
	require.Equal(t, "2025-01-13", rows[1].WeekKey)

	rows, err = svc.Statuses(ctx, 1, 1, false)
	require.NoError(t, err)
	require.False(t, repo.lastChronological)
	require.Len(t, rows, 2)

	_, err = svc.Statuses(ctx, 4, 1, true)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestFirstUnsubmittedThroughService(t *testing.T) {
	repo := newFakeTimesheetRepo()
	repo.setStatus(1, "2025-01-06", shared.StatusAccepted)
	svc := newTestService(repo, testDirectory())

	first, err := svc.FirstUnsubmitted(context.Background(), 1, 1, day("2025-01-15"))
	require.NoError(t, err)
	require.Equal(t, day("2025-01-13"), first)
}
