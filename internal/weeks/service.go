package weeks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Validation errors surfaced before any write.
var (
	ErrNameRequired  = errors.New("custom week name is required")
	ErrInvalidPeriod = errors.New("custom week period is invalid")
	ErrInvalidHours  = errors.New("custom week required hours must be positive")
)

// Service manages custom weeks and resolves reporting weeks for dates.
type Service struct {
	repo Repository
}

// NewService constructs the Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns all configured custom weeks ordered by start date.
func (s *Service) List(ctx context.Context) ([]CustomWeek, error) {
	return s.repo.List(ctx)
}

// Get returns a single custom week.
func (s *Service) Get(ctx context.Context, id int64) (*CustomWeek, error) {
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new custom week.
func (s *Service) Create(ctx context.Context, week CustomWeek) (*CustomWeek, error) {
	if err := validate(week); err != nil {
		return nil, err
	}
	id, err := s.repo.Create(ctx, week)
	if err != nil {
		return nil, fmt.Errorf("create custom week: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Update validates and replaces an existing custom week.
func (s *Service) Update(ctx context.Context, id int64, week CustomWeek) (*CustomWeek, error) {
	if err := validate(week); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, id, week); err != nil {
		return nil, fmt.Errorf("update custom week: %w", err)
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a custom week.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Resolve maps a date to its reporting week given the user's first working week.
func (s *Service) Resolve(ctx context.Context, date time.Time, firstWeek time.Time) (Week, error) {
	custom, err := s.repo.List(ctx)
	if err != nil {
		return Week{}, fmt.Errorf("load custom weeks: %w", err)
	}
	return Resolve(date, custom, firstWeek)
}

// MisalignedWeeks lists configured weeks unreachable through Resolve.
func (s *Service) MisalignedWeeks(ctx context.Context) ([]CustomWeek, error) {
	custom, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return Misaligned(custom), nil
}

func validate(week CustomWeek) error {
	if week.Name == "" {
		return ErrNameRequired
	}
	if week.PeriodFrom.IsZero() || week.PeriodTo.IsZero() || week.PeriodTo.Before(week.PeriodFrom) {
		return ErrInvalidPeriod
	}
	if week.RequiredHours <= 0 {
		return ErrInvalidHours
	}
	return nil
}
