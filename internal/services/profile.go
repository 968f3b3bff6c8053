package services

import (
	"context"
	"errors"
	"time"

	"github.com/solodesign/apiserver/internal/store"
	"github.com/solodesign/apiserver/types"
	"go.uber.org/zap"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (types.Profile, error)
	Upsert(ctx context.Context, profile types.Profile) (types.Profile, error)
	List(ctx context.Context, offset, limit int) ([]types.Profile, error)
}

// ProfileCache is the optional read-through cache in front of the repository.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (types.Profile, bool, error)
	Set(ctx context.Context, profile types.Profile) error
	Invalidate(ctx context.Context, userID string) error
}

// ProfileService encapsulates profile use-cases.
type ProfileService struct {
	repo   ProfileRepository
	cache  ProfileCache
	logger *zap.Logger
	now    func() time.Time
}

func NewProfileService(repo ProfileRepository, cache ProfileCache, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// GetProfile reads through the cache. A missing row is store.ErrNotFound.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (types.Profile, error) {
	if s.cache != nil {
		profile, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("profile cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return profile, nil
		}
	}

	if s.repo == nil {
		return types.Profile{}, store.ErrNotFound
	}
	profile, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return types.Profile{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, profile); err != nil {
			s.logger.Warn("profile cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return profile, nil
}

// Resolve never fails: lookups that miss or error yield the default client
// profile, which is not stored.
func (s *ProfileService) Resolve(ctx context.Context, userID, email string) types.Profile {
	profile, err := s.GetProfile(ctx, userID)
	if err == nil {
		return profile
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("profile lookup failed; using default profile", zap.String("user_id", userID), zap.Error(err))
	}
	return types.DefaultProfile(userID, email, s.now())
}

// RoleFor returns the profile role of a provider session.
func (s *ProfileService) RoleFor(ctx context.Context, session types.Session) (types.Role, error) {
	if session.Source == types.SourceLegacy {
		return types.RoleAdmin, nil
	}
	return s.Resolve(ctx, session.Subject, session.Email).Role, nil
}

func (s *ProfileService) List(ctx context.Context, offset, limit int) ([]types.Profile, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// Save stores a profile and drops its cached copy.
func (s *ProfileService) Save(ctx context.Context, profile types.Profile) (types.Profile, error) {
	saved, err := s.repo.Upsert(ctx, profile)
	if err != nil {
		return types.Profile{}, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, saved.UserID); err != nil {
			s.logger.Warn("profile cache invalidate failed", zap.String("user_id", saved.UserID), zap.Error(err))
		}
	}
	return saved, nil
}
