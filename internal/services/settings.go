package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/abrezinsky/votedesk/internal/logger"
	"github.com/abrezinsky/votedesk/internal/pagination"
	"github.com/abrezinsky/votedesk/internal/repository"
)

// PreferencesService handles locally stored user preferences
type PreferencesService struct {
	log             logger.Logger
	repo            repository.SettingsRepository
	defaultPageSize int
}

// NewPreferencesService creates a new PreferencesService
func NewPreferencesService(log logger.Logger, repo repository.SettingsRepository, defaultPageSize int) *PreferencesService {
	if defaultPageSize < 1 || defaultPageSize > pagination.MaxLimit {
		defaultPageSize = pagination.DefaultLimit
	}
	return &PreferencesService{log: log, repo: repo, defaultPageSize: defaultPageSize}
}

// PageSize returns the stored page size, or the configured default
func (s *PreferencesService) PageSize(ctx context.Context) int {
	value, err := s.repo.GetSetting(ctx, repository.KeyPageSize)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("Failed to read page size preference", "error", err)
		}
		return s.defaultPageSize
	}

	size, err := strconv.Atoi(value)
	if err != nil || size < 1 || size > pagination.MaxLimit {
		s.log.Warn("Ignoring invalid page size preference", "value", value)
		return s.defaultPageSize
	}
	return size
}

// SetPageSize saves the page size
func (s *PreferencesService) SetPageSize(ctx context.Context, size int) error {
	if size < 1 || size > pagination.MaxLimit {
		return ErrInvalidPageSize
	}
	return s.repo.SetSetting(ctx, repository.KeyPageSize, strconv.Itoa(size))
}
