package repository

import "context"

// SettingsRepository defines key/value settings operations.
// The session token store and user preferences are both built on it.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Ensure Repository implements all interfaces
var _ SettingsRepository = (*Repository)(nil)
