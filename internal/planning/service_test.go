package planning

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
)

type fakePlanningRepo struct {
	nextID      int64
	versions    map[int64]*Version
	allocations map[string]Allocation // "version:user:client:month"
	statuses    map[string]int64      // "version:user" -> status id
	statusIDs   map[string]int64
	statusNames map[int64]string
	runs        map[string]*FillRun
	actuals     map[int64][]ActualHours // by user
	failActuals bool
}

func newFakePlanningRepo() *fakePlanningRepo {
	f := &fakePlanningRepo{
		nextID:      1,
		versions:    make(map[int64]*Version),
		allocations: make(map[string]Allocation),
		statuses:    make(map[string]int64),
		statusIDs:   make(map[string]int64),
		statusNames: make(map[int64]string),
		runs:        make(map[string]*FillRun),
		actuals:     make(map[int64][]ActualHours),
	}
	for i, name := range []string{"unconfirmed", "under review", "accepted", "needs revision"} {
		id := int64(i + 1)
		f.statusIDs[name] = id
		f.statusNames[id] = name
	}
	return f
}

func (f *fakePlanningRepo) addVersion(name string, year int) int64 {
	id := f.nextID
	f.nextID++
	f.versions[id] = &Version{ID: id, Name: name, Year: year}
	return id
}

func allocKey(versionID, userID, clientID int64, month int) string {
	return fmt.Sprintf("%d:%d:%d:%d", versionID, userID, clientID, month)
}

func (f *fakePlanningRepo) Get(_ context.Context, id int64) (*Version, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakePlanningRepo) List(_ context.Context, year int) ([]Version, error) {
	var out []Version
	for _, v := range f.versions {
		if year == 0 || v.Year == year {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakePlanningRepo) Create(_ context.Context, version Version) (int64, error) {
	return f.addVersion(version.Name, version.Year), nil
}

func (f *fakePlanningRepo) Rename(_ context.Context, id int64, name string) error {
	v, ok := f.versions[id]
	if !ok {
		return ErrNotFound
	}
	v.Name = name
	return nil
}

func (f *fakePlanningRepo) UpdateLocks(_ context.Context, id int64, q1, q2, q3, q4 bool) error {
	v, ok := f.versions[id]
	if !ok {
		return ErrNotFound
	}
	v.Q1Locked, v.Q2Locked, v.Q3Locked, v.Q4Locked = q1, q2, q3, q4
	return nil
}

func (f *fakePlanningRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.versions[id]; !ok {
		return ErrNotFound
	}
	delete(f.versions, id)
	return nil
}

func (f *fakePlanningRepo) Allocations(_ context.Context, versionID, userID int64) ([]Allocation, error) {
	var out []Allocation
	for _, a := range f.allocations {
		if a.VersionID == versionID && a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakePlanningRepo) UpsertAllocation(_ context.Context, alloc Allocation) error {
	f.allocations[allocKey(alloc.VersionID, alloc.UserID, alloc.ClientID, alloc.Month)] = alloc
	return nil
}

func (f *fakePlanningRepo) StatusID(_ context.Context, name string) (int64, error) {
	id, ok := f.statusIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownStatusName, name)
	}
	return id, nil
}

func (f *fakePlanningRepo) UserStatus(_ context.Context, versionID, userID int64) (*VersionStatus, error) {
	id, ok := f.statuses[fmt.Sprintf("%d:%d", versionID, userID)]
	if !ok {
		return nil, nil
	}
	status, _ := shared.StatusFromName(f.statusNames[id])
	return &VersionStatus{VersionID: versionID, UserID: userID, Status: status}, nil
}

func (f *fakePlanningRepo) UpsertUserStatus(_ context.Context, versionID, userID, statusID int64) error {
	f.statuses[fmt.Sprintf("%d:%d", versionID, userID)] = statusID
	return nil
}

func (f *fakePlanningRepo) VersionsForApproval(_ context.Context, _ int64) ([]VersionStatus, error) {
	var out []VersionStatus
	for key, id := range f.statuses {
		if f.statusNames[id] != "under review" {
			continue
		}
		var versionID, userID int64
		fmt.Sscanf(key, "%d:%d", &versionID, &userID)
		out = append(out, VersionStatus{VersionID: versionID, UserID: userID, Status: shared.StatusUnderReview})
	}
	return out, nil
}

func (f *fakePlanningRepo) VersionUserIDs(_ context.Context, versionID int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var out []int64
	for _, a := range f.allocations {
		if a.VersionID == versionID && !seen[a.UserID] {
			seen[a.UserID] = true
			out = append(out, a.UserID)
		}
	}
	for userID := range f.actuals {
		if !seen[userID] {
			seen[userID] = true
			out = append(out, userID)
		}
	}
	return out, nil
}

func (f *fakePlanningRepo) CreateFillRun(_ context.Context, run FillRun) error {
	cp := run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakePlanningRepo) GetFillRun(_ context.Context, id string) (*FillRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakePlanningRepo) FinishFillRun(_ context.Context, id, status string, quarters map[string]string) error {
	run, ok := f.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.Quarters = quarters
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (f *fakePlanningRepo) ActualMonthlyHours(_ context.Context, userID int64, _ int, months []int) ([]ActualHours, error) {
	if f.failActuals {
		return nil, fmt.Errorf("actuals unavailable")
	}
	wanted := make(map[int]bool, len(months))
	for _, m := range months {
		wanted[m] = true
	}
	var out []ActualHours
	for _, a := range f.actuals[userID] {
		if wanted[a.Month] {
			out = append(out, a)
		}
	}
	return out, nil
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

type fakeEnqueuer struct {
	runIDs []string
}

func (f *fakeEnqueuer) EnqueueFill(_ context.Context, runID string, _ int64) error {
	f.runIDs = append(f.runIDs, runID)
	return nil
}

func testPlanningDirectory() fakeDirectory {
	headID := int64(2)
	return fakeDirectory{
		1: {ID: 1, Name: "Worker", Role: users.RoleUser, UserHeadID: &headID},
		2: {ID: 2, Name: "Head", Role: users.RoleManager},
		3: {ID: 3, Name: "Admin", Role: users.RoleAdmin},
		4: {ID: 4, Name: "Other", Role: users.RoleUser},
	}
}

func newTestPlanningService(repo *fakePlanningRepo, enqueuer FillEnqueuer) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, testPlanningDirectory(), nil, nil, nil, enqueuer, nil, logger)
}

func TestQuarterOfMonth(t *testing.T) {
	require.Equal(t, 1, QuarterOfMonth(1))
	require.Equal(t, 1, QuarterOfMonth(3))
	require.Equal(t, 2, QuarterOfMonth(4))
	require.Equal(t, 3, QuarterOfMonth(9))
	require.Equal(t, 4, QuarterOfMonth(12))
}

func TestCreateVersionValidation(t *testing.T) {
	repo := newFakePlanningRepo()
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateVersion(ctx, 1, "Plan A", 2025)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.CreateVersion(ctx, 3, "  ", 2025)
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.CreateVersion(ctx, 3, "Plan A", 0)
	require.ErrorIs(t, err, ErrYearRequired)

	version, err := svc.CreateVersion(ctx, 3, "Plan A", 2025)
	require.NoError(t, err)
	require.Empty(t, version.LockedQuarters())
}

func TestUpdateAllocationRejectsLockedQuarter(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	repo.versions[id].Q2Locked = true
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	err := svc.UpdateAllocation(ctx, 1, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 5, Hours: 20})
	require.ErrorIs(t, err, ErrQuarterLocked)

	err = svc.UpdateAllocation(ctx, 1, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 7, Hours: 20})
	require.NoError(t, err)
}

func TestUpdateAllocationOnlyOwnerOrAdmin(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	err := svc.UpdateAllocation(ctx, 4, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 1, Hours: 5})
	require.ErrorIs(t, err, ErrForbidden)

	err = svc.UpdateAllocation(ctx, 3, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 1, Hours: 5})
	require.NoError(t, err)
}

func TestVersionStatusWorkflow(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	_, err := svc.Approve(ctx, 2, id, 1)
	require.ErrorIs(t, err, shared.ErrInvalidStatusTransition)

	status, err := svc.Submit(ctx, 1, id, 1)
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, status.Status)

	_, err = svc.Approve(ctx, 4, id, 1)
	require.ErrorIs(t, err, ErrForbidden)

	pending, err := svc.VersionsForApproval(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	status, err = svc.Reject(ctx, 2, id, 1)
	require.NoError(t, err)
	require.Equal(t, shared.StatusNeedsRevision, status.Status)

	status, err = svc.Submit(ctx, 1, id, 1)
	require.NoError(t, err)
	require.Equal(t, shared.StatusUnderReview, status.Status)

	status, err = svc.Approve(ctx, 2, id, 1)
	require.NoError(t, err)
	require.Equal(t, shared.StatusAccepted, status.Status)

	_, err = svc.Submit(ctx, 1, id, 1)
	require.ErrorIs(t, err, shared.ErrInvalidStatusTransition)
}

func TestSubmittedVersionBlocksOwnerEdits(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 1, id, 1)
	require.NoError(t, err)

	err = svc.UpdateAllocation(ctx, 1, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 1, Hours: 5})
	require.ErrorIs(t, err, ErrForbidden)

	err = svc.UpdateAllocation(ctx, 3, Allocation{VersionID: id, UserID: 1, ClientID: 10, Month: 1, Hours: 5})
	require.NoError(t, err)
}

func TestFillActualHoursRequiresLockedQuarter(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	svc := newTestPlanningService(repo, nil)

	_, err := svc.FillActualHours(context.Background(), 3, id, time.Now())
	require.ErrorIs(t, err, ErrNoLockedQuarter)
}

func TestFillActualHoursEnqueuesRun(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	repo.versions[id].Q1Locked = true
	enqueuer := &fakeEnqueuer{}
	svc := newTestPlanningService(repo, enqueuer)

	_, err := svc.FillActualHours(context.Background(), 1, id, time.Now())
	require.ErrorIs(t, err, ErrForbidden)

	run, err := svc.FillActualHours(context.Background(), 3, id, time.Now())
	require.NoError(t, err)
	require.Equal(t, FillRunPending, run.Status)
	require.Equal(t, []string{run.ID}, enqueuer.runIDs)
}

func TestExecuteFillCopiesActualsIntoLockedQuarters(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	repo.versions[id].Q1Locked = true
	repo.actuals[1] = []ActualHours{
		{UserID: 1, ClientID: 10, Month: 1, Hours: 160},
		{UserID: 1, ClientID: 10, Month: 2, Hours: 150},
		{UserID: 1, ClientID: 10, Month: 5, Hours: 140},
	}
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	run, err := svc.FillActualHours(ctx, 3, id, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteFill(ctx, run.ID))

	finished, err := repo.GetFillRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, FillRunDone, finished.Status)
	require.Equal(t, FillOutcomeFilled, finished.Quarters["q1"])
	require.Equal(t, FillOutcomeSkipped, finished.Quarters["q2"])

	require.Equal(t, 160.0, repo.allocations[allocKey(id, 1, 10, 1)].Hours)
	require.Equal(t, 150.0, repo.allocations[allocKey(id, 1, 10, 2)].Hours)
	// Month 5 sits in an unlocked quarter and must not be touched.
	_, exists := repo.allocations[allocKey(id, 1, 10, 5)]
	require.False(t, exists)
}

func TestExecuteFillRecordsPerQuarterFailure(t *testing.T) {
	repo := newFakePlanningRepo()
	id := repo.addVersion("Plan A", 2025)
	repo.versions[id].Q1Locked = true
	repo.versions[id].Q3Locked = true
	repo.actuals[1] = []ActualHours{{UserID: 1, ClientID: 10, Month: 1, Hours: 160}}
	svc := newTestPlanningService(repo, nil)
	ctx := context.Background()

	run, err := svc.FillActualHours(ctx, 3, id, time.Now())
	require.NoError(t, err)

	repo.failActuals = true
	require.NoError(t, svc.ExecuteFill(ctx, run.ID))

	finished, err := repo.GetFillRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, FillRunFailed, finished.Status)
	require.Equal(t, FillOutcomeFailed, finished.Quarters["q1"])
	require.Equal(t, FillOutcomeFailed, finished.Quarters["q3"])
	require.Equal(t, FillOutcomeSkipped, finished.Quarters["q2"])
}
