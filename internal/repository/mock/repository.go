package mock

import (
	"context"

	"github.com/abrezinsky/votedesk/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.GetSettingError = errors.New("database locked")
//	init := session.NewInitializer(store, mockRepo, log)
type Repository struct {
	repository.SettingsRepository

	GetSettingError    error
	SetSettingError    error
	DeleteSettingError error

	// Deleted records every key passed to DeleteSetting, including failed calls.
	Deleted []string
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.SettingsRepository) *Repository {
	return &Repository{SettingsRepository: real}
}

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.SettingsRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.SettingsRepository.SetSetting(ctx, key, value)
}

func (m *Repository) DeleteSetting(ctx context.Context, key string) error {
	m.Deleted = append(m.Deleted, key)
	if m.DeleteSettingError != nil {
		return m.DeleteSettingError
	}
	return m.SettingsRepository.DeleteSetting(ctx, key)
}

// Ensure Repository implements the settings interface
var _ repository.SettingsRepository = (*Repository)(nil)
