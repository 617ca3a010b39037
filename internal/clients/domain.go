package clients

import (
	"errors"
	"strings"
	"time"
)

// DefaultClientNames always exist and can never be renamed, re-parented into a
// cycle, or deleted, regardless of caller role.
var DefaultClientNames = []string{
	"VACATION",
	"SICK LEAVE",
	"BANK HOLIDAY",
	"GENERAL ADMIN",
	"PITCHES",
	"INTERNAL MEETINGS",
}

var (
	ErrNameRequired     = errors.New("client name is required")
	ErrDuplicateName    = errors.New("client name already in use")
	ErrDefaultImmutable = errors.New("system default clients cannot be modified or deleted")
	ErrParentNotFound   = errors.New("parent client not found")
	ErrParentCycle      = errors.New("client parent chain must not contain the client itself")
)

// Client represents a billable client or internal bucket. Clients form a tree
// through ParentID; the chain is kept acyclic.
type Client struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsDefault bool      `json:"is_default"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VisibleClient is a client in a user's ordered visible list.
type VisibleClient struct {
	ClientID     int64  `json:"client_id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

// IsDefaultName reports whether name matches a system default,
// case-insensitively.
func IsDefaultName(name string) bool {
	for _, def := range DefaultClientNames {
		if strings.EqualFold(def, name) {
			return true
		}
	}
	return false
}
