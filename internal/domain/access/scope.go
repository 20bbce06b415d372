package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
)

// Scope is the set of clinical records an actor may read, expressed by the
// owning geneticist. It is computed server-side from the stored profile and
// applied before any caller-supplied filter.
type Scope struct {
	all   bool
	owner uuid.UUID
}

// ScopeFor resolves the read scope of p. A reader without an associated
// geneticist gets the empty scope.
func ScopeFor(p *Profile) Scope {
	switch {
	case p == nil:
		return Scope{}
	case p.Role == RoleAdministrator:
		return Scope{all: true}
	case p.Role == RoleGeneticist:
		return Scope{owner: p.ID}
	case p.Role == RoleReader && p.AssociatedGeneticistID != nil:
		return Scope{owner: *p.AssociatedGeneticistID}
	}
	return Scope{}
}

// Unrestricted reports whether the scope covers every record.
func (s Scope) Unrestricted() bool { return s.all }

// Empty reports whether the scope covers no record at all.
func (s Scope) Empty() bool { return !s.all && s.owner == uuid.Nil }

// Owner returns the geneticist whose records the scope covers.
func (s Scope) Owner() (uuid.UUID, bool) { return s.owner, !s.all && s.owner != uuid.Nil }

// Allows reports whether a record owned by geneticistID is in scope.
// Records without an owner are visible to administrators only.
func (s Scope) Allows(geneticistID *uuid.UUID) bool {
	if s.all {
		return true
	}
	return s.owner != uuid.Nil && geneticistID != nil && *geneticistID == s.owner
}

// SQL renders the scope as a predicate on column. The returned args bind
// starting at placeholder $argIdx.
func (s Scope) SQL(column string, argIdx int) (string, []interface{}) {
	switch {
	case s.all:
		return "TRUE", nil
	case s.owner == uuid.Nil:
		return "FALSE", nil
	}
	return fmt.Sprintf("%s = $%d", column, argIdx), []interface{}{s.owner}
}

// Actor is the authenticated caller as seen by the domain services.
type Actor struct {
	Profile *Profile
	Scope   Scope
}

func NewActor(p *Profile) *Actor {
	return &Actor{Profile: p, Scope: ScopeFor(p)}
}

func (a *Actor) Role() Role {
	if a == nil || a.Profile == nil {
		return ""
	}
	return a.Profile.Role
}

func (a *Actor) CanWrite() bool {
	r := a.Role()
	return r == RoleAdministrator || r == RoleGeneticist
}

type actorKey struct{}

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor bound to ctx. Requests without one are
// refused by every scoped operation.
func ActorFromContext(ctx context.Context) (*Actor, error) {
	a, _ := ctx.Value(actorKey{}).(*Actor)
	if a == nil || a.Profile == nil {
		return nil, fmt.Errorf("no authenticated actor: %w", apperr.ErrForbidden)
	}
	return a, nil
}

// AuthorizeRead fails with ErrForbidden unless a record owned by owner is in
// the actor's scope.
func (a *Actor) AuthorizeRead(owner *uuid.UUID) error {
	if !a.Scope.Allows(owner) {
		return fmt.Errorf("record outside of %s scope: %w", a.Role(), apperr.ErrForbidden)
	}
	return nil
}

// AuthorizeWrite is AuthorizeRead for roles that may write.
func (a *Actor) AuthorizeWrite(owner *uuid.UUID) error {
	if !a.CanWrite() {
		return fmt.Errorf("%s role is read-only: %w", a.Role(), apperr.ErrForbidden)
	}
	return a.AuthorizeRead(owner)
}

// AuthorizeCreate checks that the actor may open new records.
func (a *Actor) AuthorizeCreate() error {
	if !a.CanWrite() {
		return fmt.Errorf("%s role is read-only: %w", a.Role(), apperr.ErrForbidden)
	}
	return nil
}

// AuthorizeCouple checks a write on the couple path: the actor must be able
// to write and must own the record of at least one member. owners holds the
// owning geneticist of each member's record.
func (a *Actor) AuthorizeCouple(owners ...*uuid.UUID) error {
	if !a.CanWrite() {
		return fmt.Errorf("%s role is read-only: %w", a.Role(), apperr.ErrForbidden)
	}
	for _, o := range owners {
		if a.Scope.Allows(o) {
			return nil
		}
	}
	return fmt.Errorf("neither couple member is in scope: %w", apperr.ErrForbidden)
}
