package report

import (
	"context"
	"strings"
	"time"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/pkg/pagination"
)

// Source runs report queries restricted to scope.
type Source interface {
	Cases(ctx context.Context, scope access.Scope, f Filter, p pagination.Params) ([]Row, int, error)
	// Individuals returns individuals matching text, newest first. Empty
	// text matches everyone.
	Individuals(ctx context.Context, scope access.Scope, text string, limit int) ([]IndividualHit, error)
	Summary(ctx context.Context, scope access.Scope, now time.Time) (*Summary, error)
}

type Service struct {
	src Source
	now func() time.Time
}

func NewService(src Source) *Service {
	return &Service{src: src, now: time.Now}
}

func scopeOf(ctx context.Context) (access.Scope, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return access.Scope{}, err
	}
	return actor.Scope, nil
}

// Search lists case rows visible to the caller.
func (s *Service) Search(ctx context.Context, f Filter, p pagination.Params) ([]Row, int, error) {
	scope, err := scopeOf(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.normalize()
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	if scope.Empty() {
		return []Row{}, 0, nil
	}
	return s.src.Cases(ctx, scope, f, p)
}

// QuickSearch finds individuals by name or birth id.
func (s *Service) QuickSearch(ctx context.Context, text string) ([]IndividualHit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []IndividualHit{}, nil
	}
	return s.individuals(ctx, text, QuickSearchLimit)
}

// Recent returns the most recently registered individuals.
func (s *Service) Recent(ctx context.Context) ([]IndividualHit, error) {
	return s.individuals(ctx, "", RecentLimit)
}

func (s *Service) individuals(ctx context.Context, text string, limit int) ([]IndividualHit, error) {
	scope, err := scopeOf(ctx)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return []IndividualHit{}, nil
	}
	return s.src.Individuals(ctx, scope, text, limit)
}

// Summary counts what the caller can see.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	scope, err := scopeOf(ctx)
	if err != nil {
		return nil, err
	}
	if scope.Empty() {
		return newSummary(s.now()), nil
	}
	return s.src.Summary(ctx, scope, s.now())
}
