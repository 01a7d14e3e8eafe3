package prefs

import (
	"context"
	"encoding/json"

	"github.com/nzvengeance/flight-logbook/internal/models"
)

const settingKey = "preferences"

// SettingsStore is the per-user key/value table. *database.DB implements it.
type SettingsStore interface {
	GetUserSetting(ctx context.Context, userID int64, key string) (string, error)
	SetUserSetting(ctx context.Context, userID int64, key, value string) error
}

// DBStore keeps preferences as one JSON value in user_settings.
type DBStore struct {
	settings SettingsStore
}

var _ Store = (*DBStore)(nil)

func NewDBStore(settings SettingsStore) *DBStore {
	return &DBStore{settings: settings}
}

func (s *DBStore) Get(ctx context.Context, userID int64) (models.Preferences, error) {
	raw, err := s.settings.GetUserSetting(ctx, userID, settingKey)
	if err != nil {
		return models.Preferences{}, err
	}
	return decode([]byte(raw))
}

func (s *DBStore) Put(ctx context.Context, userID int64, p models.Preferences) error {
	data, err := json.Marshal(normalize(p))
	if err != nil {
		return err
	}
	return s.settings.SetUserSetting(ctx, userID, settingKey, string(data))
}
