package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
)

// UserDirectory resolves accounts and approver relationships.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
	IsApproverFor(ctx context.Context, actor, user *users.User) bool
}

// FillEnqueuer hands a fill run off to the background worker.
type FillEnqueuer interface {
	EnqueueFill(ctx context.Context, runID string, versionID int64) error
}

const fillLockTTL = 10 * time.Minute

// Service implements planning versions, quarter locks, per-user review
// statuses, and the fill-actuals batch.
type Service struct {
	repo        Repository
	users       UserDirectory
	idempotency *shared.IdempotencyStore
	approvals   *shared.ApprovalRecorder
	audit       *shared.AuditLogger
	enqueuer    FillEnqueuer
	locker      FillLocker
	logger      *slog.Logger
}

// NewService constructs the Service. idempotency, enqueuer and locker may be
// nil in tests.
func NewService(repo Repository, users UserDirectory, idempotency *shared.IdempotencyStore, approvals *shared.ApprovalRecorder, audit *shared.AuditLogger, enqueuer FillEnqueuer, locker FillLocker, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		users:       users,
		idempotency: idempotency,
		approvals:   approvals,
		audit:       audit,
		enqueuer:    enqueuer,
		locker:      locker,
		logger:      logger,
	}
}

// Get returns a version by id.
func (s *Service) Get(ctx context.Context, id int64) (*Version, error) {
	return s.repo.Get(ctx, id)
}

// List returns versions, optionally restricted to one year (0 for all).
func (s *Service) List(ctx context.Context, year int) ([]Version, error) {
	return s.repo.List(ctx, year)
}

// CreateVersion adds a planning version with all quarters unlocked.
func (s *Service) CreateVersion(ctx context.Context, actorID int64, name string, year int) (*Version, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if year == 0 {
		return nil, ErrYearRequired
	}
	id, err := s.repo.Create(ctx, Version{Name: name, Year: year})
	if err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}
	s.recordAudit(ctx, actorID, "planning.version.create", fmt.Sprintf("%d", id), nil)
	return s.repo.Get(ctx, id)
}

// Rename changes a version's name.
func (s *Service) Rename(ctx context.Context, actorID, id int64, name string) (*Version, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "planning.version.rename", fmt.Sprintf("%d", id), nil)
	return s.repo.Get(ctx, id)
}

// UpdateQuarterLocks replaces the four lock flags.
func (s *Service) UpdateQuarterLocks(ctx context.Context, actorID, id int64, q1, q2, q3, q4 bool) (*Version, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLocks(ctx, id, q1, q2, q3, q4); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "planning.version.locks", fmt.Sprintf("%d", id), map[string]any{
		"q1": q1, "q2": q2, "q3": q3, "q4": q4,
	})
	return s.repo.Get(ctx, id)
}

// Delete removes a version and its allocations.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "planning.version.delete", fmt.Sprintf("%d", id), nil)
	return nil
}

// Allocations returns one user's monthly allocations on a version.
func (s *Service) Allocations(ctx context.Context, actorID, versionID, userID int64) ([]Allocation, error) {
	if _, _, err := s.authorizeView(ctx, actorID, userID); err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, versionID); err != nil {
		return nil, err
	}
	return s.repo.Allocations(ctx, versionID, userID)
}

// UpdateAllocation writes one (client, month) allocation cell. Rejected when
// the month's quarter is locked, or when the user's version status is
// submitted and the actor is not an admin.
func (s *Service) UpdateAllocation(ctx context.Context, actorID int64, alloc Allocation) error {
	if alloc.Month < 1 || alloc.Month > 12 {
		return ErrInvalidMonth
	}
	if alloc.Hours < 0 {
		return ErrNegativeHours
	}
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	if actorID != alloc.UserID && !actor.IsAdmin() {
		return ErrForbidden
	}

	version, err := s.repo.Get(ctx, alloc.VersionID)
	if err != nil {
		return err
	}
	if version.QuarterLocked(QuarterOfMonth(alloc.Month)) {
		return ErrQuarterLocked
	}

	status, err := s.userStatus(ctx, alloc.VersionID, alloc.UserID)
	if err != nil {
		return err
	}
	if status.Submitted() && !actor.IsAdmin() {
		return fmt.Errorf("%w: version is %s", ErrForbidden, status)
	}

	if err := s.repo.UpsertAllocation(ctx, alloc); err != nil {
		return fmt.Errorf("write allocation: %w", err)
	}
	s.recordAudit(ctx, actorID, "planning.allocation", fmt.Sprintf("%d:%d", alloc.VersionID, alloc.UserID), map[string]any{
		"client_id": alloc.ClientID,
		"month":     alloc.Month,
		"hours":     alloc.Hours,
	})
	return nil
}

// UserStatus returns one user's review state on a version, defaulting to
// unconfirmed.
func (s *Service) UserStatus(ctx context.Context, actorID, versionID, userID int64) (shared.Status, error) {
	if _, _, err := s.authorizeView(ctx, actorID, userID); err != nil {
		return "", err
	}
	return s.userStatus(ctx, versionID, userID)
}

// Submit moves the owner's version status to under-review.
func (s *Service) Submit(ctx context.Context, actorID, versionID, userID int64) (*VersionStatus, error) {
	if actorID != userID {
		return nil, ErrForbidden
	}
	return s.transition(ctx, actorID, versionID, userID, shared.StatusUnderReview, false, shared.ApprovalSubmit)
}

// Approve moves an under-review version status to accepted. Approver only.
func (s *Service) Approve(ctx context.Context, actorID, versionID, userID int64) (*VersionStatus, error) {
	return s.transition(ctx, actorID, versionID, userID, shared.StatusAccepted, true, shared.ApprovalApprove)
}

// Reject sends an under-review version status back for revision. Approver only.
func (s *Service) Reject(ctx context.Context, actorID, versionID, userID int64) (*VersionStatus, error) {
	return s.transition(ctx, actorID, versionID, userID, shared.StatusNeedsRevision, true, shared.ApprovalReject)
}

// VersionsForApproval lists under-review version statuses of the head's users.
func (s *Service) VersionsForApproval(ctx context.Context, headID int64) ([]VersionStatus, error) {
	return s.repo.VersionsForApproval(ctx, headID)
}

// FillActualHours requests a fill-actuals batch for the version's locked
// quarters. Admin only. At most one request per version per day is accepted;
// the copy itself runs on the background worker.
func (s *Service) FillActualHours(ctx context.Context, actorID, versionID int64, now time.Time) (*FillRun, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	version, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if len(version.LockedQuarters()) == 0 {
		return nil, ErrNoLockedQuarter
	}

	if s.idempotency != nil {
		key := fmt.Sprintf("fill:%d:%s", versionID, now.UTC().Format("2006-01-02"))
		if err := s.idempotency.CheckAndInsert(ctx, key, "planning"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, ErrFillInFlight
			}
			return nil, err
		}
	}

	run := FillRun{
		ID:          uuid.NewString(),
		VersionID:   versionID,
		RequestedBy: actorID,
		Status:      FillRunPending,
		Quarters:    map[string]string{},
		RequestedAt: now,
	}
	if err := s.repo.CreateFillRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create fill run: %w", err)
	}
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueFill(ctx, run.ID, versionID); err != nil {
			return nil, fmt.Errorf("enqueue fill: %w", err)
		}
	}
	s.recordAudit(ctx, actorID, "planning.fill.request", run.ID, map[string]any{"version_id": versionID})
	return &run, nil
}

// FillRunStatus returns a fill run. Admin only.
func (s *Service) FillRunStatus(ctx context.Context, actorID int64, runID string) (*FillRun, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.repo.GetFillRun(ctx, runID)
}

// ExecuteFill copies realized timesheet hours into every locked quarter of
// the run's version, one quarter at a time, recording a per-quarter outcome
// so a partial failure is visible rather than collapsed into one boolean.
func (s *Service) ExecuteFill(ctx context.Context, runID string) error {
	run, err := s.repo.GetFillRun(ctx, runID)
	if err != nil {
		return err
	}
	version, err := s.repo.Get(ctx, run.VersionID)
	if err != nil {
		return err
	}

	if s.locker != nil {
		key := shared.PlanningFillLockKey(version.ID)
		ok, err := s.locker.Acquire(ctx, key, fillLockTTL)
		if err != nil {
			return fmt.Errorf("acquire fill lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("fill already running for version %d", version.ID)
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("release fill lock", slog.Any("error", err))
			}
		}()
	}

	userIDs, err := s.repo.VersionUserIDs(ctx, version.ID)
	if err != nil {
		return fmt.Errorf("list version users: %w", err)
	}

	outcomes := make(map[string]string, 4)
	failed := false
	for q := 1; q <= 4; q++ {
		label := fmt.Sprintf("q%d", q)
		if !version.QuarterLocked(q) {
			outcomes[label] = FillOutcomeSkipped
			continue
		}
		if err := s.fillQuarter(ctx, version, q, userIDs); err != nil {
			s.logger.Error("fill quarter",
				slog.Int64("version_id", version.ID),
				slog.Int("quarter", q),
				slog.Any("error", err))
			outcomes[label] = FillOutcomeFailed
			failed = true
			continue
		}
		outcomes[label] = FillOutcomeFilled
	}

	status := FillRunDone
	if failed {
		status = FillRunFailed
	}
	return s.repo.FinishFillRun(ctx, runID, status, outcomes)
}

func (s *Service) fillQuarter(ctx context.Context, version *Version, quarter int, userIDs []int64) error {
	months := []int{quarter*3 - 2, quarter*3 - 1, quarter * 3}
	for _, userID := range userIDs {
		actuals, err := s.repo.ActualMonthlyHours(ctx, userID, version.Year, months)
		if err != nil {
			return fmt.Errorf("load actuals for user %d: %w", userID, err)
		}
		for _, actual := range actuals {
			err := s.repo.UpsertAllocation(ctx, Allocation{
				VersionID: version.ID,
				UserID:    actual.UserID,
				ClientID:  actual.ClientID,
				Month:     actual.Month,
				Hours:     actual.Hours,
			})
			if err != nil {
				return fmt.Errorf("write actual for user %d: %w", userID, err)
			}
		}
	}
	return nil
}

func (s *Service) transition(ctx context.Context, actorID, versionID, userID int64, target shared.Status, needsApprover bool, action shared.ApprovalAction) (*VersionStatus, error) {
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load actor: %w", err)
	}
	user := actor
	if actorID != userID {
		if user, err = s.users.Get(ctx, userID); err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
	}

	byApprover := s.users.IsApproverFor(ctx, actor, user)
	if needsApprover && !byApprover {
		return nil, ErrForbidden
	}

	if _, err := s.repo.Get(ctx, versionID); err != nil {
		return nil, err
	}
	current, err := s.userStatus(ctx, versionID, userID)
	if err != nil {
		return nil, err
	}
	if err := shared.ValidateStatusTransition(current, target, byApprover); err != nil {
		return nil, err
	}

	// Resolve the stored status id before writing; an unknown name aborts
	// the transition with no partial write.
	name, err := shared.StatusName(target)
	if err != nil {
		return nil, err
	}
	statusID, err := s.repo.StatusID(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertUserStatus(ctx, versionID, userID, statusID); err != nil {
		return nil, fmt.Errorf("write version status: %w", err)
	}

	ref := fmt.Sprintf("%d:%d", versionID, userID)
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "planning",
			Ref:     ref,
			ActorID: actorID,
			Action:  action,
		}); err != nil {
			s.logger.Warn("record approval", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "planning."+string(action), ref, nil)

	return &VersionStatus{VersionID: versionID, UserID: userID, Status: target, UpdatedAt: time.Now()}, nil
}

func (s *Service) userStatus(ctx context.Context, versionID, userID int64) (shared.Status, error) {
	row, err := s.repo.UserStatus(ctx, versionID, userID)
	if err != nil {
		return "", fmt.Errorf("load version status: %w", err)
	}
	if row == nil {
		return shared.StatusUnconfirmed, nil
	}
	return row.Status, nil
}

func (s *Service) authorizeView(ctx context.Context, actorID, userID int64) (actor, user *users.User, err error) {
	actor, err = s.users.Get(ctx, actorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load actor: %w", err)
	}
	if actorID == userID {
		return actor, actor, nil
	}
	user, err = s.users.Get(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	if !s.users.IsApproverFor(ctx, actor, user) {
		return nil, nil, ErrForbidden
	}
	return actor, user, nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, ref string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "planning",
		EntityID: ref,
		Meta:     meta,
		At:       time.Now(),
	})
}
