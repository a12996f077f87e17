package setting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	patronentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
)

// ErrUnconfigured is returned when no patreon settings row exists.
var ErrUnconfigured = errors.New("patreon settings unconfigured")

const (
	patreonSettingsID = "patreon"
	cacheKeyPatreon   = "patreon"
)

// Repository is the subset of repo.Repo the service needs.
type Repository interface {
	FirstByCategory(ctx context.Context, category string) (*entity.Setting, error)
	Upsert(ctx context.Context, s *entity.Setting) error
}

// Service reads and writes the patreon settings row and answers entitlement
// checks. Parsed settings are cached for ttl.
type Service struct {
	repo  Repository
	cache *gocache.Cache
	ttl   time.Duration
}

// NewService constructs a Service with the provided repository.
func NewService(r Repository, ttl time.Duration) *Service {
	return &Service{repo: r, cache: gocache.New(ttl, 2*ttl), ttl: ttl}
}

// PatreonSettings returns the current patreon settings or ErrUnconfigured.
func (s *Service) PatreonSettings(ctx context.Context) (*entity.PatreonSettings, error) {
	if v, ok := s.cache.Get(cacheKeyPatreon); ok {
		return v.(*entity.PatreonSettings), nil
	}
	row, err := s.repo.FirstByCategory(ctx, entity.CategoryPatreon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnconfigured
		}
		return nil, err
	}
	var ps entity.PatreonSettings
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &ps); err != nil {
			return nil, fmt.Errorf("decode patreon settings %s: %w", row.ID, err)
		}
	}
	s.cache.Set(cacheKeyPatreon, &ps, s.ttl)
	return &ps, nil
}

// IsEntitled reports whether p may use developer builds.
func (s *Service) IsEntitled(ctx context.Context, p *patronentity.Patron) (bool, error) {
	ps, err := s.PatreonSettings(ctx)
	if err != nil {
		return false, err
	}
	return ps.IsEntitledToDevBuilds(p.RewardID, p.PledgeCents), nil
}

// SavePatreonSettings stores ps and drops the cached copy.
func (s *Service) SavePatreonSettings(ctx context.Context, ps entity.PatreonSettings) error {
	meta, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, entity.NewSetting(patreonSettingsID, entity.CategoryPatreon, meta)); err != nil {
		return err
	}
	s.cache.Delete(cacheKeyPatreon)
	return nil
}
