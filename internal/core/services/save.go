package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// Ensure SaveOrchestrator implements SaveService
var _ driving.SaveService = (*SaveOrchestrator)(nil)

// SaveOrchestrator holds the registry of configured read-later services,
// dispatches saves to their adapters and broadcasts each outcome.
//
// Registry mutations are serialised by opMu. Reads take mu.
type SaveOrchestrator struct {
	store     driven.ServiceConfigStore
	creds     driven.CredentialStore
	factory   driven.SaverFactory
	publisher driven.SaveResultPublisher
	registry  driven.RegistryChangePublisher
	metrics   driven.SaveMetrics
	logger    *slog.Logger

	opMu sync.Mutex

	mu         sync.RWMutex
	configs    []*domain.ServiceConfig
	adapters   map[string]driven.Saver
	primaryID  string
	lastResult *domain.SaveResult

	loading atomic.Bool
	busy    atomic.Bool
}

// SaveOrchestratorConfig holds dependencies for SaveOrchestrator.
type SaveOrchestratorConfig struct {
	Store     driven.ServiceConfigStore
	Creds     driven.CredentialStore
	Factory   driven.SaverFactory
	Publisher driven.SaveResultPublisher
	Metrics   driven.SaveMetrics
	Logger    *slog.Logger

	// Registry is told about configuration changes. Optional.
	Registry driven.RegistryChangePublisher
}

// NewSaveOrchestrator creates a new save orchestrator with an empty registry.
// Call LoadConfigurations before the first save.
func NewSaveOrchestrator(cfg SaveOrchestratorConfig) *SaveOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}

	return &SaveOrchestrator{
		store:     cfg.Store,
		creds:     cfg.Creds,
		factory:   cfg.Factory,
		publisher: cfg.Publisher,
		registry:  cfg.Registry,
		metrics:   metrics,
		logger:    logger,
		adapters:  make(map[string]driven.Saver),
	}
}

// LoadConfigurations reads every configuration, builds one adapter per record
// and loads its credential before returning.
func (o *SaveOrchestrator) LoadConfigurations(ctx context.Context) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	o.loading.Store(true)
	defer o.loading.Store(false)

	configs, err := o.store.List(ctx)
	if err != nil {
		o.logger.Error("failed to load service configurations", "error", err)
		o.replaceRegistry(nil, nil, "")
		return
	}

	adapters := make(map[string]driven.Saver, len(configs))
	for _, cfg := range configs {
		adapter, err := o.buildAdapter(ctx, cfg)
		if err != nil {
			o.logger.Warn("failed to build adapter",
				"config_id", cfg.ID,
				"provider", cfg.ProviderType,
				"error", err,
			)
			continue
		}
		adapters[cfg.ID] = adapter
	}

	primaryID := domain.SelectPrimary(configs)
	o.replaceRegistry(configs, adapters, primaryID)

	o.logger.Info("loaded service configurations",
		"count", len(configs),
		"primary", primaryID,
	)
}

// Save sends a URL to the configured service of the requested type,
// or to the primary service when no type is given.
func (o *SaveOrchestrator) Save(ctx context.Context, req driving.SaveRequest) (*domain.SaveResult, error) {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}

	if !o.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrSaveInProgress
	}
	defer o.busy.Store(false)

	cfg, adapter := o.resolve(req.Provider)
	if adapter == nil {
		provider := req.Provider
		if cfg != nil {
			provider = cfg.ProviderType
		}
		return o.finish(ctx, provider, "", url, nil, domain.ErrNotConfigured, 0)
	}
	if !cfg.Enabled {
		return o.finish(ctx, cfg.ProviderType, cfg.ID, url, nil, domain.ErrServiceDisabled, 0)
	}

	start := time.Now()
	receipt, err := adapter.Save(ctx, url, req.Title)
	elapsed := time.Since(start)

	if err != nil {
		o.logger.Warn("save failed",
			"provider", cfg.ProviderType,
			"config_id", cfg.ID,
			"url", url,
			"error", err,
		)
	} else {
		o.touchLastSynced(ctx, cfg.ID)
		o.logger.Info("saved url",
			"provider", cfg.ProviderType,
			"config_id", cfg.ID,
			"url", url,
			"duration", elapsed,
		)
	}

	return o.finish(ctx, cfg.ProviderType, cfg.ID, url, receipt, err, elapsed)
}

// SaveToPrimary sends a URL to the primary service.
func (o *SaveOrchestrator) SaveToPrimary(ctx context.Context, url, title string) (*domain.SaveResult, error) {
	return o.Save(ctx, driving.SaveRequest{URL: url, Title: title})
}

// finish records and broadcasts a save outcome. The returned error is the
// adapter error so callers can inspect it with errors.Is.
func (o *SaveOrchestrator) finish(ctx context.Context, provider domain.ProviderType, configID, url string, receipt *domain.SaveReceipt, saveErr error, elapsed time.Duration) (*domain.SaveResult, error) {
	result := domain.NewSaveResult(provider, configID, url, receipt, saveErr)

	o.mu.Lock()
	o.lastResult = result
	o.mu.Unlock()

	o.metrics.RecordSave(provider, result.ErrorKind, elapsed)

	if o.publisher != nil {
		if err := o.publisher.PublishSaveResult(ctx, result); err != nil {
			o.logger.Warn("failed to publish save result", "error", err)
		}
	}

	return result, saveErr
}

// ConfigureService persists a configuration, stores its credential and
// registers an adapter. The first configured service becomes primary.
func (o *SaveOrchestrator) ConfigureService(ctx context.Context, req driving.ConfigureServiceRequest) (*domain.ServiceSummary, error) {
	if !req.ProviderType.IsValid() {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, req.ProviderType)
	}

	o.opMu.Lock()
	defer o.opMu.Unlock()

	now := time.Now()
	cfg := &domain.ServiceConfig{
		ID:           uuid.NewString(),
		ProviderType: req.ProviderType,
		Enabled:      true,
		Settings:     req.Settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := o.store.Insert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("insert service config: %w", err)
	}

	if err := o.creds.Save(ctx, req.Credential, cfg.ProviderType, cfg.ID); err != nil {
		if delErr := o.store.Delete(ctx, cfg.ID); delErr != nil {
			o.logger.Error("failed to roll back service config",
				"config_id", cfg.ID,
				"error", delErr,
			)
		}
		return nil, fmt.Errorf("save credential: %w", err)
	}

	adapter, err := o.buildAdapter(ctx, cfg)
	if err != nil {
		o.logger.Warn("configured service without adapter",
			"config_id", cfg.ID,
			"provider", cfg.ProviderType,
			"error", err,
		)
	}

	o.mu.Lock()
	first := len(o.configs) == 0
	o.configs = append(o.configs, cfg)
	if adapter != nil {
		o.adapters[cfg.ID] = adapter
	}
	count := len(o.configs)
	o.mu.Unlock()

	o.metrics.SetConfiguredServices(count)

	if first {
		o.electPrimaryLocked(ctx, cfg.ID)
	}

	o.logger.Info("configured service",
		"config_id", cfg.ID,
		"provider", cfg.ProviderType,
		"primary", first,
	)
	o.announceRegistryChange(ctx)

	return o.summary(cfg.ID), nil
}

// RemoveService erases the credential and the configuration, drops the
// adapter and re-elects a primary if needed.
func (o *SaveOrchestrator) RemoveService(ctx context.Context, id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cfg := o.config(id)
	if cfg == nil {
		return domain.ErrNotFound
	}

	if err := o.creds.Delete(ctx, cfg.ProviderType, cfg.ID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if err := o.store.Delete(ctx, cfg.ID); err != nil {
		return fmt.Errorf("delete service config: %w", err)
	}

	o.mu.Lock()
	wasPrimary := o.primaryID == id
	remaining := make([]*domain.ServiceConfig, 0, len(o.configs))
	for _, c := range o.configs {
		if c.ID != id {
			remaining = append(remaining, c)
		}
	}
	o.configs = remaining
	delete(o.adapters, id)
	if wasPrimary {
		o.primaryID = ""
	}
	count := len(remaining)
	o.mu.Unlock()

	o.metrics.SetConfiguredServices(count)

	o.logger.Info("removed service",
		"config_id", id,
		"provider", cfg.ProviderType,
	)

	if wasPrimary && count > 0 {
		o.electPrimaryLocked(ctx, remaining[0].ID)
	}
	o.announceRegistryChange(ctx)
	return nil
}

// SetPrimary clears the primary flag on every other configuration and sets it on id.
func (o *SaveOrchestrator) SetPrimary(ctx context.Context, id string) error {
	o.opMu.Lock()
	defer o.opMu.Unlock()
	if err := o.setPrimaryLocked(ctx, id); err != nil {
		return err
	}
	o.announceRegistryChange(ctx)
	return nil
}

func (o *SaveOrchestrator) setPrimaryLocked(ctx context.Context, id string) error {
	if o.config(id) == nil {
		return domain.ErrNotFound
	}

	now := time.Now()
	o.mu.RLock()
	var changes []domain.ServiceConfig
	for _, c := range o.configs {
		want := c.ID == id
		if c.Primary == want {
			continue
		}
		updated := *c
		updated.Primary = want
		updated.UpdatedAt = now
		changes = append(changes, updated)
	}
	o.mu.RUnlock()

	for _, updated := range changes {
		if err := o.store.Save(ctx, &updated); err != nil {
			return fmt.Errorf("save service config: %w", err)
		}
		o.mu.Lock()
		if c := o.configLocked(updated.ID); c != nil {
			c.Primary = updated.Primary
			c.UpdatedAt = updated.UpdatedAt
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.primaryID = id
	o.mu.Unlock()
	return nil
}

// electPrimaryLocked makes id primary in the registry even when the flag
// cannot be persisted. LoadConfigurations falls back to the first record
// when storage holds no primary.
func (o *SaveOrchestrator) electPrimaryLocked(ctx context.Context, id string) {
	err := o.setPrimaryLocked(ctx, id)
	if err == nil {
		return
	}
	o.logger.Error("failed to persist primary service",
		"config_id", id,
		"error", err,
	)

	o.mu.Lock()
	for _, c := range o.configs {
		c.Primary = c.ID == id
	}
	o.primaryID = id
	o.mu.Unlock()
}

// UpdateService changes the enabled flag or settings and rebuilds the adapter.
func (o *SaveOrchestrator) UpdateService(ctx context.Context, id string, req driving.UpdateServiceRequest) (*domain.ServiceSummary, error) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	cfg := o.config(id)
	if cfg == nil {
		return nil, domain.ErrNotFound
	}

	o.mu.RLock()
	updated := *cfg
	o.mu.RUnlock()
	if req.Enabled != nil {
		updated.Enabled = *req.Enabled
	}
	if req.Settings != nil {
		updated.Settings = *req.Settings
	}
	updated.UpdatedAt = time.Now()

	if err := o.store.Save(ctx, &updated); err != nil {
		return nil, fmt.Errorf("save service config: %w", err)
	}

	var adapter driven.Saver
	if req.Settings != nil {
		var err error
		adapter, err = o.buildAdapter(ctx, &updated)
		if err != nil {
			o.logger.Warn("failed to rebuild adapter", "config_id", id, "error", err)
		}
	}

	o.mu.Lock()
	cfg.Enabled = updated.Enabled
	cfg.Settings = updated.Settings
	cfg.UpdatedAt = updated.UpdatedAt
	if adapter != nil {
		o.adapters[id] = adapter
	}
	o.mu.Unlock()
	o.announceRegistryChange(ctx)

	return o.summary(id), nil
}

// Reauthenticate runs the provider's default handshake for a configuration.
func (o *SaveOrchestrator) Reauthenticate(ctx context.Context, id string) error {
	o.mu.RLock()
	adapter := o.adapters[id]
	o.mu.RUnlock()

	if adapter == nil {
		return domain.ErrNotConfigured
	}
	if err := adapter.Authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate %s: %w", adapter.Type(), err)
	}
	return nil
}

// Snapshot returns the read-only registry state.
func (o *SaveOrchestrator) Snapshot() *driving.RegistrySnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := &driving.RegistrySnapshot{
		Services:   make([]*domain.ServiceSummary, 0, len(o.configs)),
		IsLoading:  o.loading.Load(),
		IsBusy:     o.busy.Load(),
		LastResult: o.lastResult,
	}
	for _, c := range o.configs {
		s := o.summaryLocked(c)
		snap.Services = append(snap.Services, s)
		if c.ID == o.primaryID {
			snap.Primary = s
		}
	}
	return snap
}

// IsBusy reports whether a save is in flight.
func (o *SaveOrchestrator) IsBusy() bool {
	return o.busy.Load()
}

// IsLoading reports whether configurations are being loaded.
func (o *SaveOrchestrator) IsLoading() bool {
	return o.loading.Load()
}

// LastResult returns the most recent save outcome.
func (o *SaveOrchestrator) LastResult() *domain.SaveResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastResult
}

// PrimaryID returns the id of the primary configuration.
func (o *SaveOrchestrator) PrimaryID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.primaryID
}

// buildAdapter creates the adapter and loads its credential synchronously.
// A credential load failure leaves the adapter unauthenticated.
func (o *SaveOrchestrator) buildAdapter(ctx context.Context, cfg *domain.ServiceConfig) (driven.Saver, error) {
	adapter, err := o.factory.Create(cfg, o.creds)
	if err != nil {
		return nil, fmt.Errorf("create adapter: %w", err)
	}
	if err := adapter.LoadCredential(ctx); err != nil {
		o.logger.Warn("failed to load credential",
			"config_id", cfg.ID,
			"provider", cfg.ProviderType,
			"error", err,
		)
	}
	return adapter, nil
}

func (o *SaveOrchestrator) replaceRegistry(configs []*domain.ServiceConfig, adapters map[string]driven.Saver, primaryID string) {
	if adapters == nil {
		adapters = make(map[string]driven.Saver)
	}
	o.mu.Lock()
	o.configs = configs
	o.adapters = adapters
	o.primaryID = primaryID
	o.mu.Unlock()
	o.metrics.SetConfiguredServices(len(configs))
}

// resolve picks the configuration for a provider type: the primary if it has
// that type, otherwise the first of that type in creation order.
// An empty type selects the primary.
func (o *SaveOrchestrator) resolve(provider domain.ProviderType) (*domain.ServiceConfig, driven.Saver) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if provider == "" {
		for _, c := range o.configs {
			if c.ID == o.primaryID {
				cp := *c
				return &cp, o.adapters[c.ID]
			}
		}
		return nil, nil
	}

	var match *domain.ServiceConfig
	for _, c := range o.configs {
		if c.ProviderType != provider {
			continue
		}
		if c.ID == o.primaryID {
			match = c
			break
		}
		if match == nil {
			match = c
		}
	}
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, o.adapters[match.ID]
}

func (o *SaveOrchestrator) config(id string) *domain.ServiceConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.configLocked(id)
}

func (o *SaveOrchestrator) configLocked(id string) *domain.ServiceConfig {
	for _, c := range o.configs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (o *SaveOrchestrator) announceRegistryChange(ctx context.Context) {
	if o.registry == nil {
		return
	}
	if err := o.registry.PublishRegistryChanged(ctx); err != nil {
		o.logger.Warn("failed to announce registry change", "error", err)
	}
}

// touchLastSynced records a successful save. It writes the current record
// under opMu so a concurrent SetPrimary cannot be overwritten by a stale copy.
func (o *SaveOrchestrator) touchLastSynced(ctx context.Context, id string) {
	o.opMu.Lock()
	defer o.opMu.Unlock()

	now := time.Now()
	o.mu.Lock()
	c := o.configLocked(id)
	if c == nil {
		o.mu.Unlock()
		return
	}
	c.LastSyncedAt = &now
	updated := *c
	o.mu.Unlock()

	if err := o.store.Save(ctx, &updated); err != nil {
		o.logger.Warn("failed to update last synced", "config_id", id, "error", err)
	}
}

func (o *SaveOrchestrator) summary(id string) *domain.ServiceSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, c := range o.configs {
		if c.ID == id {
			return o.summaryLocked(c)
		}
	}
	return nil
}

func (o *SaveOrchestrator) summaryLocked(c *domain.ServiceConfig) *domain.ServiceSummary {
	authenticated := false
	if a := o.adapters[c.ID]; a != nil {
		authenticated = a.IsAuthenticated()
	}
	s := c.ToSummary(authenticated)
	s.Primary = c.ID == o.primaryID
	return s
}
