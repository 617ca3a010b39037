package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fallout666222/media-client-manager/internal/shared"
	"github.com/fallout666222/media-client-manager/internal/users"
	"github.com/fallout666222/media-client-manager/internal/weeks"
)

// UserDirectory resolves accounts and approver relationships.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
	IsApproverFor(ctx context.Context, actor, user *users.User) bool
}

// WeekResolver maps dates to reporting weeks.
type WeekResolver interface {
	Resolve(ctx context.Context, date time.Time, firstWeek time.Time) (weeks.Week, error)
}

// Notifier delivers status change notifications, typically by enqueueing mail.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, userID int64, weekKey string, status shared.Status) error
}

// WeekView is a user's resolved week with its ledger status and entries.
type WeekView struct {
	Week          weeks.Week    `json:"week"`
	Status        shared.Status `json:"status"`
	Entries       WeekEntries   `json:"entries"`
	TotalHours    float64       `json:"total_hours"`
	RequiredHours float64       `json:"required_hours"`
}

// Service implements the weekly timesheet workflow: entry edits with the
// required-hours cap, the status ledger, and submit/approve/reject moves.
type Service struct {
	repo      Repository
	users     UserDirectory
	weeks     WeekResolver
	cache     *EntryCache
	approvals *shared.ApprovalRecorder
	audit     *shared.AuditLogger
	notifier  Notifier
	logger    *slog.Logger
}

// NewService constructs the Service. notifier may be nil.
func NewService(repo Repository, users UserDirectory, weekResolver WeekResolver, approvals *shared.ApprovalRecorder, audit *shared.AuditLogger, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		weeks:     weekResolver,
		cache:     NewEntryCache(),
		approvals: approvals,
		audit:     audit,
		notifier:  notifier,
		logger:    logger,
	}
}

// Ledger loads the user's full week-status ledger.
func (s *Service) Ledger(ctx context.Context, actorID, userID int64) (Ledger, error) {
	if _, _, err := s.authorizeView(ctx, actorID, userID); err != nil {
		return Ledger{}, err
	}
	rows, err := s.repo.Statuses(ctx, userID, true)
	if err != nil {
		return Ledger{}, fmt.Errorf("load statuses: %w", err)
	}
	return BuildLedger(rows), nil
}

// Statuses lists the user's raw week-status rows. The chronological form
// orders by week key; the unordered form returns rows in storage order for
// callers that index by key themselves.
func (s *Service) Statuses(ctx context.Context, actorID, userID int64, chronological bool) ([]WeekStatus, error) {
	if _, _, err := s.authorizeView(ctx, actorID, userID); err != nil {
		return nil, err
	}
	rows, err := s.repo.Statuses(ctx, userID, chronological)
	if err != nil {
		return nil, fmt.Errorf("load statuses: %w", err)
	}
	return rows, nil
}

// Week resolves date to the user's reporting week and returns its entries.
// Returns weeks.ErrNoWeek when no reporting week covers the date.
func (s *Service) Week(ctx context.Context, actorID, userID int64, date time.Time) (*WeekView, error) {
	_, user, err := s.authorizeView(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}
	week, err := s.weeks.Resolve(ctx, date, user.FirstWeekOrZero())
	if err != nil {
		return nil, err
	}

	entries, err := s.cache.Get(ctx, userID, week.Key, func(ctx context.Context) (WeekEntries, error) {
		return s.repo.WeekEntries(ctx, userID, week.Key)
	})
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}

	status, err := s.status(ctx, userID, week.Key)
	if err != nil {
		return nil, err
	}
	// The cached maps are shared across requests; stamp the status on a copy.
	entries = entries.WithStatus(status)

	return &WeekView{
		Week:          week,
		Status:        status,
		Entries:       entries,
		TotalHours:    entries.Total(),
		RequiredHours: week.RequiredHours,
	}, nil
}

// UpdateEntry writes one (client, media type) cell. The new week total is
// checked against the week's required hours inside a transaction; exceeding
// the cap is rejected unless the actor is an admin editing with override.
// Owners cannot edit a submitted week; admins can.
func (s *Service) UpdateEntry(ctx context.Context, actorID, userID int64, date time.Time, clientID, mediaTypeID int64, hours float64) error {
	if hours < 0 {
		return ErrNegativeHours
	}
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	user := actor
	if actorID != userID {
		if !actor.IsAdmin() {
			return ErrForbidden
		}
		if user, err = s.users.Get(ctx, userID); err != nil {
			return fmt.Errorf("load user: %w", err)
		}
	}

	week, err := s.weeks.Resolve(ctx, date, user.FirstWeekOrZero())
	if err != nil {
		return err
	}

	status, err := s.status(ctx, userID, week.Key)
	if err != nil {
		return err
	}
	if status.Submitted() && !actor.IsAdmin() {
		return ErrWeekSubmitted
	}
	override := actor.IsAdmin()

	err = s.repo.WithTx(ctx, func(tx Repository) error {
		prev, err := tx.CellHours(ctx, userID, week.Key, clientID, mediaTypeID)
		if err != nil {
			return fmt.Errorf("load cell: %w", err)
		}
		total, err := tx.WeekTotal(ctx, userID, week.Key)
		if err != nil {
			return fmt.Errorf("load week total: %w", err)
		}
		if total-prev+hours > week.RequiredHours && !override {
			return ErrHoursCapExceeded
		}
		return tx.UpsertHours(ctx, userID, week.Key, clientID, mediaTypeID, hours)
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(userID, week.Key)
	s.recordAudit(ctx, actorID, "timesheet.entry", fmt.Sprintf("%d:%s", userID, week.Key), map[string]any{
		"client_id":     clientID,
		"media_type_id": mediaTypeID,
		"hours":         hours,
	})
	return nil
}

// WeekPercentages returns each client's share of the week's booked hours.
func (s *Service) WeekPercentages(ctx context.Context, actorID, userID int64, date time.Time) ([]WeekPercentage, error) {
	_, user, err := s.authorizeView(ctx, actorID, userID)
	if err != nil {
		return nil, err
	}
	week, err := s.weeks.Resolve(ctx, date, user.FirstWeekOrZero())
	if err != nil {
		return nil, err
	}
	return s.repo.WeekPercentages(ctx, userID, week.Key)
}

// FirstUnsubmitted returns the start of the user's earliest week, from their
// first working week through the current one, that is not yet submitted. The
// zero time means everything through the current week is submitted.
func (s *Service) FirstUnsubmitted(ctx context.Context, actorID, userID int64, now time.Time) (time.Time, error) {
	_, user, err := s.authorizeView(ctx, actorID, userID)
	if err != nil {
		return time.Time{}, err
	}
	rows, err := s.repo.Statuses(ctx, userID, true)
	if err != nil {
		return time.Time{}, fmt.Errorf("load statuses: %w", err)
	}
	ledger := BuildLedger(rows)
	return FirstUnsubmittedWeek(user.FirstWeekOrZero(), now, ledger.SubmittedWeeks), nil
}

// Submit moves the owner's week to under-review.
func (s *Service) Submit(ctx context.Context, actorID, userID int64, date time.Time) (*WeekStatus, error) {
	if actorID != userID {
		return nil, ErrForbidden
	}
	return s.transition(ctx, actorID, userID, date, shared.StatusUnderReview, false, shared.ApprovalSubmit)
}

// Approve moves an under-review week to accepted. Approver only.
func (s *Service) Approve(ctx context.Context, actorID, userID int64, date time.Time) (*WeekStatus, error) {
	return s.transition(ctx, actorID, userID, date, shared.StatusAccepted, true, shared.ApprovalApprove)
}

// Reject sends an under-review week back for revision. Approver only.
func (s *Service) Reject(ctx context.Context, actorID, userID int64, date time.Time) (*WeekStatus, error) {
	return s.transition(ctx, actorID, userID, date, shared.StatusNeedsRevision, true, shared.ApprovalReject)
}

func (s *Service) transition(ctx context.Context, actorID, userID int64, date time.Time, target shared.Status, needsApprover bool, action shared.ApprovalAction) (*WeekStatus, error) {
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

	week, err := s.weeks.Resolve(ctx, date, user.FirstWeekOrZero())
	if err != nil {
		return nil, err
	}
	current, err := s.status(ctx, userID, week.Key)
	if err != nil {
		return nil, err
	}
	if err := shared.ValidateStatusTransition(current, target, byApprover); err != nil {
		return nil, err
	}

	// Resolve the stored status id before touching the ledger; an unknown
	// name aborts the transition with no partial write.
	name, err := shared.StatusName(target)
	if err != nil {
		return nil, err
	}
	statusID, err := s.repo.StatusID(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertWeekStatus(ctx, userID, week.Key, statusID); err != nil {
		return nil, fmt.Errorf("write week status: %w", err)
	}

	ref := fmt.Sprintf("%d:%s", userID, week.Key)
	if s.approvals != nil {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module:  "timesheet",
			Ref:     ref,
			ActorID: actorID,
			Action:  action,
		}); err != nil {
			s.logger.Warn("record approval", slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyStatusChange(ctx, userID, week.Key, target); err != nil {
			s.logger.Warn("notify status change", slog.Any("error", err))
		}
	}
	s.recordAudit(ctx, actorID, "timesheet."+string(action), ref, nil)

	return &WeekStatus{UserID: userID, WeekKey: week.Key, Status: target, UpdatedAt: time.Now()}, nil
}

// ApprovalHistory lists the approval log for a user's week.
func (s *Service) ApprovalHistory(ctx context.Context, actorID, userID int64, weekKey string) ([]shared.ApprovalLog, error) {
	if _, _, err := s.authorizeView(ctx, actorID, userID); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, nil
	}
	return s.approvals.List(ctx, "timesheet", fmt.Sprintf("%d:%s", userID, weekKey))
}

func (s *Service) status(ctx context.Context, userID int64, weekKey string) (shared.Status, error) {
	row, err := s.repo.Status(ctx, userID, weekKey)
	if err != nil {
		return "", fmt.Errorf("load week status: %w", err)
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

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, ref string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "timesheet_week",
		EntityID: ref,
		Meta:     meta,
		At:       time.Now(),
	})
}
