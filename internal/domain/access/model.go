// Package access resolves what an authenticated actor may see and change.
//
// Every actor has exactly one Profile. Administrators see everything,
// geneticists see the clinical records they own, and readers see, without
// changing, the records owned by the geneticist they are associated with.
package access

import (
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
)

type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleGeneticist    Role = "geneticist"
	RoleReader        Role = "reader"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdministrator, RoleGeneticist, RoleReader:
		return true
	}
	return false
}

// Profile is the access principal of one identity.
type Profile struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 string     `json:"user_id"`
	DisplayName            string     `json:"display_name"`
	Role                   Role       `json:"role"`
	AssociatedGeneticistID *uuid.UUID `json:"associated_geneticist_id,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Validate checks the role and association invariants that hold for a
// single profile.
func (p *Profile) Validate() error {
	v := &apperr.ValidationError{}
	if !p.Role.Valid() {
		v.Add("role", "must be one of administrator, geneticist, reader")
	}
	switch {
	case p.Role == RoleReader && p.AssociatedGeneticistID == nil:
		v.Add("associated_geneticist_id", "is required for readers")
	case p.Role != RoleReader && p.AssociatedGeneticistID != nil:
		v.Add("associated_geneticist_id", "is only allowed for readers")
	case p.AssociatedGeneticistID != nil && *p.AssociatedGeneticistID == p.ID:
		v.Add("associated_geneticist_id", "must not reference the profile itself")
	}
	return v.Err()
}
