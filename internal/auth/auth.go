// Package auth models resolved principals and the external credential source
// the core authorizes against. The core never authenticates; it consumes the
// identity context produced here.
package auth

import (
	"context"

	"github.com/erikvandergeld/focalize/internal/apperr"
)

// PermCreateTask gates task creation.
const PermCreateTask = "create_task"

// Principal is a resolved identity: an opaque id, a display name, the
// entities the principal belongs to, and flat permission flags.
type Principal struct {
	ID          string   `json:"id" yaml:"id"`
	DisplayName string   `json:"name" yaml:"name"`
	Entities    []string `json:"entities" yaml:"entities"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

// MemberOf reports whether the principal belongs to the entity.
func (p Principal) MemberOf(entityID string) bool {
	for _, e := range p.Entities {
		if e == entityID {
			return true
		}
	}
	return false
}

// Can reports whether the principal carries the permission flag.
func (p Principal) Can(permission string) bool {
	for _, f := range p.Permissions {
		if f == permission {
			return true
		}
	}
	return false
}

// Source resolves an opaque bearer credential to a principal.
type Source interface {
	Resolve(ctx context.Context, credential string) (Principal, error)
}

// Directory looks principals up by id and lists the full principal set. The
// comment processor uses it for mention resolution, the task engine and
// comment reads for display names, and the notification ledger for broadcast
// rollups.
type Directory interface {
	Principal(ctx context.Context, id string) (Principal, error)
	Principals(ctx context.Context) ([]Principal, error)
}

// ErrUnauthenticated is the canonical resolve failure.
var ErrUnauthenticated = apperr.New(apperr.Unauthenticated, "invalid or missing credential")
