package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fallout666222/media-client-manager/internal/shared"
)

var ErrForbidden = errors.New("operation not permitted for this user")

// RoleChecker reports whether a user holds the admin role.
type RoleChecker interface {
	Role(ctx context.Context, userID int64) (string, error)
}

// Service manages the client tree and per-user visible lists.
type Service struct {
	repo  Repository
	roles RoleChecker
	audit *shared.AuditLogger
}

// NewService constructs the Service.
func NewService(repo Repository, roles RoleChecker, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit}
}

// Get returns a client by id.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// GetByName returns a client by name, matched case-insensitively.
func (s *Service) GetByName(ctx context.Context, name string) (*Client, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns all clients, defaults first.
func (s *Service) List(ctx context.Context, includeHidden bool) ([]Client, error) {
	return s.repo.List(ctx, includeHidden)
}

// Create adds a client. Names are unique case-insensitively and may not
// collide with the system defaults.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateClientRequest) (*Client, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if IsDefaultName(name) {
		return nil, ErrDuplicateName
	}
	if err := s.checkNameFree(ctx, name, 0); err != nil {
		return nil, err
	}
	if req.ParentID != nil {
		if _, err := s.repo.Get(ctx, *req.ParentID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
	}

	id, err := s.repo.Create(ctx, Client{Name: name, ParentID: req.ParentID})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	s.recordAudit(ctx, actorID, "client.create", id)
	return s.repo.Get(ctx, id)
}

// Update mutates a client. System defaults are immutable.
func (s *Service) Update(ctx context.Context, actorID, id int64, req UpdateClientRequest) (*Client, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsDefault {
		return nil, ErrDefaultImmutable
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrNameRequired
		}
		if IsDefaultName(name) {
			return nil, ErrDuplicateName
		}
		if err := s.checkNameFree(ctx, name, id); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if req.ParentID != nil {
		if *req.ParentID <= 0 {
			updates["parent_id"] = nil
		} else {
			if err := s.checkAcyclic(ctx, id, *req.ParentID); err != nil {
				return nil, err
			}
			updates["parent_id"] = *req.ParentID
		}
	}
	if req.Hidden != nil {
		updates["hidden"] = *req.Hidden
	}

	if len(updates) == 0 {
		return current, nil
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	s.recordAudit(ctx, actorID, "client.update", id)
	return s.repo.Get(ctx, id)
}

// Delete removes a client. System defaults cannot be deleted.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.IsDefault {
		return ErrDefaultImmutable
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "client.delete", id)
	return nil
}

// VisibleForUser returns the user's ordered visible client list. An empty
// list means the user sees every client.
func (s *Service) VisibleForUser(ctx context.Context, userID int64) ([]VisibleClient, error) {
	return s.repo.VisibleForUser(ctx, userID)
}

// SetVisibleForUser replaces the user's ordered visible client list. Admin
// only; every id must refer to an existing client.
func (s *Service) SetVisibleForUser(ctx context.Context, actorID, userID int64, clientIDs []int64) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	seen := make(map[int64]bool, len(clientIDs))
	for _, clientID := range clientIDs {
		if seen[clientID] {
			return fmt.Errorf("client %d listed twice", clientID)
		}
		seen[clientID] = true
		if _, err := s.repo.Get(ctx, clientID); err != nil {
			return err
		}
	}
	if err := s.repo.SetVisibleForUser(ctx, userID, clientIDs); err != nil {
		return fmt.Errorf("set visible clients: %w", err)
	}
	s.recordAudit(ctx, actorID, "client.visibility", userID)
	return nil
}

// checkAcyclic walks the proposed parent chain and rejects it if it reaches
// the client being re-parented.
func (s *Service) checkAcyclic(ctx context.Context, id, parentID int64) error {
	const maxDepth = 100
	cur := parentID
	for i := 0; i < maxDepth; i++ {
		if cur == id {
			return ErrParentCycle
		}
		parent, err := s.repo.Get(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrParentNotFound
			}
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		cur = *parent.ParentID
	}
	return ErrParentCycle
}

func (s *Service) checkNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("check client name: %w", err)
	}
	if existing.ID != selfID {
		return ErrDuplicateName
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, actorID int64) error {
	role, err := s.roles.Role(ctx, actorID)
	if err != nil {
		return fmt.Errorf("load actor role: %w", err)
	}
	if role != "admin" {
		return ErrForbidden
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "client",
		EntityID: fmt.Sprintf("%d", id),
		At:       time.Now(),
	})
}
