package domain

import (
	"encoding/json"
	"time"
)

// ServiceSettings is the service-specific settings blob persisted with a configuration.
// Fields irrelevant to a provider are ignored by it.
type ServiceSettings struct {
	ConsumerKey  string   `json:"consumer_key,omitempty"`  // pocket
	ClientID     string   `json:"client_id,omitempty"`     // raindrop
	RedirectURI  string   `json:"redirect_uri,omitempty"`  // pocket, raindrop
	CollectionID *int64   `json:"collection_id,omitempty"` // raindrop
	Tags         []string `json:"tags,omitempty"`          // raindrop, pocket
	Category     string   `json:"category,omitempty"`      // readwise
	Username     string   `json:"username,omitempty"`      // display only
}

// ServiceConfig is one connected read-later service instance
type ServiceConfig struct {
	ID           string          `json:"id"`
	ProviderType ProviderType    `json:"provider_type"`
	Enabled      bool            `json:"enabled"`
	Primary      bool            `json:"primary"`
	Settings     ServiceSettings `json:"settings"`
	LastSyncedAt *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ServiceSummary is the view of a configuration exposed to clients
type ServiceSummary struct {
	ID            string          `json:"id"`
	ProviderType  ProviderType    `json:"provider_type"`
	Name          string          `json:"name"`
	Enabled       bool            `json:"enabled"`
	Primary       bool            `json:"primary"`
	Authenticated bool            `json:"authenticated"`
	Settings      ServiceSettings `json:"settings"`
	LastSyncedAt  *time.Time      `json:"last_synced_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ToSummary converts a ServiceConfig to its client view
func (c *ServiceConfig) ToSummary(authenticated bool) *ServiceSummary {
	return &ServiceSummary{
		ID:            c.ID,
		ProviderType:  c.ProviderType,
		Name:          c.ProviderType.DisplayName(),
		Enabled:       c.Enabled,
		Primary:       c.Primary,
		Authenticated: authenticated,
		Settings:      c.Settings,
		LastSyncedAt:  c.LastSyncedAt,
		CreatedAt:     c.CreatedAt,
	}
}

// MarshalSettings encodes the settings blob for storage
func (c *ServiceConfig) MarshalSettings() ([]byte, error) {
	return json.Marshal(c.Settings)
}

// UnmarshalSettings decodes a stored settings blob; empty input leaves defaults
func (c *ServiceConfig) UnmarshalSettings(data []byte) error {
	if len(data) == 0 {
		c.Settings = ServiceSettings{}
		return nil
	}
	return json.Unmarshal(data, &c.Settings)
}

// SelectPrimary returns the id of the record that should be primary:
// the flagged one if any, otherwise the first record.
func SelectPrimary(configs []*ServiceConfig) string {
	for _, c := range configs {
		if c.Primary {
			return c.ID
		}
	}
	if len(configs) > 0 {
		return configs[0].ID
	}
	return ""
}
