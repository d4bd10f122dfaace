package domain

import "time"

// SaveReceipt is what a provider returns for an accepted save
type SaveReceipt struct {
	ItemID string `json:"item_id,omitempty"`
	URL    string `json:"url,omitempty"` // Canonical URL echoed by the provider, if any
}

// SaveResult is the outcome of one save attempt. It is broadcast once and not persisted.
type SaveResult struct {
	Success      bool         `json:"success"`
	URL          string       `json:"url"`
	ProviderType ProviderType `json:"provider_type"`
	ConfigID     string       `json:"config_id,omitempty"`
	ItemID       string       `json:"item_id,omitempty"`
	Error        string       `json:"error,omitempty"`
	ErrorKind    ErrorKind    `json:"error_kind,omitempty"`
	Message      string       `json:"message,omitempty"` // User-facing text for failures
	Retryable    bool         `json:"retryable,omitempty"`
	At           time.Time    `json:"at"`
}

// NewSaveResult wraps a provider outcome in a SaveResult
func NewSaveResult(provider ProviderType, configID, url string, receipt *SaveReceipt, err error) *SaveResult {
	r := &SaveResult{
		Success:      err == nil,
		URL:          url,
		ProviderType: provider,
		ConfigID:     configID,
		At:           time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
		r.ErrorKind = ErrorKindOf(err)
		r.Message = UserMessage(err)
		r.Retryable = r.ErrorKind == ErrorKindRateLimited || r.ErrorKind == ErrorKindProviderUnavailable
		return r
	}
	if receipt != nil {
		r.ItemID = receipt.ItemID
	}
	return r
}
