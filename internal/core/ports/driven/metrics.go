package driven

import (
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// SaveMetrics records orchestration measurements.
type SaveMetrics interface {
	// RecordSave records one save attempt
	RecordSave(provider domain.ProviderType, kind domain.ErrorKind, duration time.Duration)

	// SetConfiguredServices records the registry size
	SetConfiguredServices(n int)

	// RecordToggle records one interaction toggle
	RecordToggle(kind domain.InteractionKind, success bool, duration time.Duration)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordSave(domain.ProviderType, domain.ErrorKind, time.Duration) {}
func (NopMetrics) SetConfiguredServices(int) {}
func (NopMetrics) RecordToggle(domain.InteractionKind, bool, time.Duration) {}
