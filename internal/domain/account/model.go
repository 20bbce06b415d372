// Package account holds password identities. A successful login issues a
// bearer token whose subject is the user id, which is also the key of the
// user's access profile.
package account

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/validate"
)

const MinPasswordLength = 8

// ErrInvalidCredentials is returned for an unknown email or a wrong
// password alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Subject is the identity carried in the user's tokens.
func (u *User) Subject() string { return u.ID.String() }

// NewUser is an administrator's request to create an account.
type NewUser struct {
	Email                  string      `json:"email" yaml:"email"`
	Password               string      `json:"password" yaml:"password"`
	DisplayName            string      `json:"display_name" yaml:"display_name"`
	Role                   access.Role `json:"role" yaml:"role"`
	AssociatedGeneticistID *uuid.UUID  `json:"associated_geneticist_id,omitempty" yaml:"-"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (n *NewUser) Validate() error {
	v := &apperr.ValidationError{}
	n.Email = normalizeEmail(n.Email)
	n.DisplayName = strings.TrimSpace(n.DisplayName)
	if n.Email == "" {
		v.Add("email", "is required")
	} else {
		validate.Email(v, "email", &n.Email)
	}
	validate.MaxLen(v, "display_name", &n.DisplayName, 200)
	if len(n.Password) < MinPasswordLength {
		v.Add("password", "must be at least %d characters", MinPasswordLength)
	}
	if n.Role == "" {
		n.Role = access.RoleGeneticist
	}
	switch n.Role {
	case access.RoleAdministrator, access.RoleGeneticist, access.RoleReader:
	default:
		v.Add("role", "must be administrator, geneticist or reader")
	}
	return v.Err()
}
