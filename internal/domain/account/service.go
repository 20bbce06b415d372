package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/internal/platform/metrics"
)

// Profiles is the part of the access service accounts drive.
type Profiles interface {
	EnsureProfile(ctx context.Context, userID, displayName string) (*access.Profile, error)
	ChangeRole(ctx context.Context, profileID uuid.UUID, role access.Role, associated *uuid.UUID) (*access.Profile, error)
}

type TokenIssuer interface {
	Issue(subject, name string) (string, time.Time, error)
}

type Service struct {
	users    Repository
	profiles Profiles
	issuer   TokenIssuer
	tx       db.Transactor
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cost     int
}

func NewService(users Repository, profiles Profiles, issuer TokenIssuer, tx db.Transactor, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		users:    users,
		profiles: profiles,
		issuer:   issuer,
		tx:       tx,
		metrics:  m,
		logger:   logger.With().Str("component", "account").Logger(),
		cost:     bcrypt.DefaultCost,
	}
}

// CreateUser registers an account together with its access profile.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, *access.Profile, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Email: in.Email, PasswordHash: string(hash), DisplayName: in.DisplayName}
	var p *access.Profile
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if p, err = s.profiles.EnsureProfile(ctx, u.Subject(), u.DisplayName); err != nil {
			return err
		}
		if in.Role != p.Role {
			p, err = s.profiles.ChangeRole(ctx, p.ID, in.Role, in.AssociatedGeneticistID)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("user_id", u.Subject()).Str("role", string(p.Role)).Msg("user created")
	return u, p, nil
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Profile     *access.Profile `json:"profile"`
}

// Login checks a password and issues a bearer token. The user's profile is
// ensured before the token is returned.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		s.metrics.Login("failed")
		return nil, ErrInvalidCredentials
	case err != nil:
		s.metrics.Login("error")
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.metrics.Login("failed")
		s.logger.Warn().Str("user_id", u.Subject()).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	p, err := s.profiles.EnsureProfile(ctx, u.Subject(), u.DisplayName)
	if err != nil {
		s.metrics.Login("error")
		return nil, err
	}
	token, exp, err := s.issuer.Issue(u.Subject(), u.DisplayName)
	if err != nil {
		s.metrics.Login("error")
		return nil, err
	}
	s.metrics.Login("ok")
	return &Token{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, Profile: p}, nil
}

// SeedUser is one entry of a seed file. Readers name their geneticist by
// email.
type SeedUser struct {
	NewUser              `yaml:",inline"`
	AssociatedGeneticist string `yaml:"associated_geneticist"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users"`
}

// Seed creates the users listed in a YAML document. Existing emails are
// skipped, so a seed file can be applied repeatedly. Entries are created in
// order; a reader must come after its geneticist.
func (s *Service) Seed(ctx context.Context, r io.Reader) (int, error) {
	var file seedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("decode seed file: %w", err)
	}

	created := 0
	for i, entry := range file.Users {
		in := entry.NewUser
		if _, err := s.users.GetByEmail(ctx, normalizeEmail(in.Email)); err == nil {
			continue
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return created, err
		}

		if entry.AssociatedGeneticist != "" {
			g, err := s.users.GetByEmail(ctx, normalizeEmail(entry.AssociatedGeneticist))
			if err != nil {
				return created, fmt.Errorf("users[%d] associated geneticist %s: %w", i, entry.AssociatedGeneticist, err)
			}
			gp, err := s.profiles.EnsureProfile(ctx, g.Subject(), g.DisplayName)
			if err != nil {
				return created, err
			}
			in.AssociatedGeneticistID = &gp.ID
		}
		if _, _, err := s.CreateUser(ctx, in); err != nil {
			return created, fmt.Errorf("users[%d] %s: %w", i, in.Email, err)
		}
		created++
	}
	return created, nil
}
