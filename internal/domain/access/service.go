package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
)

type Service struct {
	repo   Repository
	tx     db.Transactor
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "access").Logger()}
}

// EnsureProfile returns the profile of userID, creating a geneticist
// profile on first sight. It is called once per authenticated request.
func (s *Service) EnsureProfile(ctx context.Context, userID, displayName string) (*Profile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Invalid("user_id", "is required")
	}
	p := &Profile{UserID: userID, DisplayName: strings.TrimSpace(displayName), Role: RoleGeneticist}
	if err := s.repo.Ensure(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ActorFor resolves the actor of an authenticated identity.
func (s *Service) ActorFor(ctx context.Context, userID, displayName string) (*Actor, error) {
	p, err := s.EnsureProfile(ctx, userID, displayName)
	if err != nil {
		return nil, err
	}
	return NewActor(p), nil
}

func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Profiles(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ChangeRole moves a profile to role. Entering the reader role requires an
// associated geneticist-role profile other than the profile itself; any
// other role clears the association. A geneticist with associated readers
// cannot leave the geneticist role.
func (s *Service) ChangeRole(ctx context.Context, profileID uuid.UUID, role Role, associated *uuid.UUID) (*Profile, error) {
	if !role.Valid() {
		return nil, apperr.Invalid("role", "must be one of administrator, geneticist, reader")
	}

	var out *Profile
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, profileID)
		if err != nil {
			return err
		}

		if role == RoleReader {
			if associated == nil || *associated == uuid.Nil {
				return apperr.Invalid("associated_geneticist_id", "is required for readers")
			}
			if *associated == p.ID {
				return apperr.Invalid("associated_geneticist_id", "must not reference the profile itself")
			}
			g, err := s.repo.GetByID(ctx, *associated)
			if err != nil {
				return fmt.Errorf("associated geneticist: %w", err)
			}
			if g.Role != RoleGeneticist {
				return apperr.Invalid("associated_geneticist_id", "must reference a geneticist")
			}
			id := g.ID
			p.AssociatedGeneticistID = &id
		} else {
			p.AssociatedGeneticistID = nil
		}

		if p.Role == RoleGeneticist && role != RoleGeneticist {
			n, err := s.repo.CountReaders(ctx, p.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("geneticist has %d associated readers: %w", n, apperr.ErrConflict)
			}
		}

		from := p.Role
		p.Role = role
		if err := p.Validate(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		s.logger.Info().
			Str("profile_id", p.ID.String()).
			Str("from", string(from)).
			Str("to", string(role)).
			Msg("profile role changed")
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BootstrapAdmins ensures a profile for each user id and promotes it to
// administrator.
func (s *Service) BootstrapAdmins(ctx context.Context, userIDs []string) error {
	for _, uid := range userIDs {
		if strings.TrimSpace(uid) == "" {
			continue
		}
		p, err := s.EnsureProfile(ctx, uid, "")
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", uid, err)
		}
		if p.Role == RoleAdministrator {
			continue
		}
		if _, err := s.ChangeRole(ctx, p.ID, RoleAdministrator, nil); err != nil {
			return fmt.Errorf("bootstrap %s: %w", uid, err)
		}
	}
	return nil
}
