package store

import (
	"context"
	"time"
)

// Well-known setting keys.
const (
	SettingSiteName     = "site.name"
	SettingContactEmail = "site.contactEmail"
	SettingDonationURL  = "site.donationUrl"
)

// Setting is a key/value pair. Settings are addressed by Key and cannot be created or
// deleted, only upserted.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type UpsertSetting struct {
	Key   string `json:"-"`
	Value string `json:"value"`
}

func (s *Store) ListSettings(ctx context.Context) ([]*Setting, error) {
	list, err := s.settings.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	return pointers(list), nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (*Setting, error) {
	return s.settings.Get(ctx, key)
}

func (s *Store) UpsertSetting(ctx context.Context, upsert *UpsertSetting) (*Setting, error) {
	return s.settings.Update(ctx, upsert.Key, upsert)
}
