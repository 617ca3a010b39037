package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
)

var (
	ErrInvalidTheme    = errors.New("theme must be light or dark")
	ErrInvalidLanguage = errors.New("language is not a valid BCP 47 tag")
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings are a user's presentation preferences. They live per session:
// loaded into the in-process cache on login and dropped on logout, so reads
// during a session never hit the database.
type Settings struct {
	UserID   int64  `json:"user_id"`
	Theme    string `json:"theme"`
	Language string `json:"language"`
}

// Defaults returns the settings applied before a user saves any.
func Defaults(userID int64) Settings {
	return Settings{UserID: userID, Theme: ThemeLight, Language: "en"}
}

// Repository persists settings.
type Repository interface {
	Get(ctx context.Context, userID int64) (*Settings, error)
	Upsert(ctx context.Context, s Settings) error
	Delete(ctx context.Context, userID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, userID int64) (*Settings, error) {
	var s Settings
	err := r.pool.QueryRow(ctx, `SELECT user_id, theme, language FROM user_settings WHERE user_id = $1`,
		userID).Scan(&s.UserID, &s.Theme, &s.Language)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) Upsert(ctx context.Context, s Settings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, theme, language, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET theme = EXCLUDED.theme, language = EXCLUDED.language, updated_at = NOW()
	`, s.UserID, s.Theme, s.Language)
	return err
}

func (r *repository) Delete(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_settings WHERE user_id = $1`, userID)
	return err
}

// Service holds per-session settings with an explicit init/teardown
// lifecycle instead of ambient global state.
type Service struct {
	repo Repository

	mu    sync.RWMutex
	cache map[int64]Settings
}

// NewService constructs the Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cache: make(map[int64]Settings)}
}

// Init loads the user's settings into the session cache. Called on login.
func (s *Service) Init(ctx context.Context, userID int64) (Settings, error) {
	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings := Defaults(userID)
	if stored != nil {
		settings = *stored
	}
	s.mu.Lock()
	s.cache[userID] = settings
	s.mu.Unlock()
	return settings, nil
}

// Teardown drops the user's cached settings. Called on logout.
func (s *Service) Teardown(userID int64) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}

// Get returns the session settings, falling back to the store for requests
// outside an initialised session.
func (s *Service) Get(ctx context.Context, userID int64) (Settings, error) {
	s.mu.RLock()
	cached, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}
	return s.Init(ctx, userID)
}

// Update validates and persists new settings, refreshing the session cache.
func (s *Service) Update(ctx context.Context, userID int64, theme, lang string) (Settings, error) {
	if theme != ThemeLight && theme != ThemeDark {
		return Settings{}, ErrInvalidTheme
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
	}

	settings := Settings{UserID: userID, Theme: theme, Language: tag.String()}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return Settings{}, fmt.Errorf("save settings: %w", err)
	}
	s.mu.Lock()
	s.cache[userID] = settings
	s.mu.Unlock()
	return settings, nil
}
