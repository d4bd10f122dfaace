package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

type saveFixture struct {
	store     *mocks.MockServiceConfigStore
	creds     *mocks.MockCredentialStore
	factory   *mocks.MockSaverFactory
	publisher *mocks.MockPublisher
	svc       *SaveOrchestrator
}

func newSaveFixture() *saveFixture {
	f := &saveFixture{
		store:     mocks.NewMockServiceConfigStore(),
		creds:     mocks.NewMockCredentialStore(),
		factory:   mocks.NewMockSaverFactory(),
		publisher: mocks.NewMockPublisher(),
	}
	f.svc = NewSaveOrchestrator(SaveOrchestratorConfig{
		Store:     f.store,
		Creds:     f.creds,
		Factory:   f.factory,
		Publisher: f.publisher,
		Registry:  f.publisher,
	})
	return f
}

func (f *saveFixture) configure(t *testing.T, provider domain.ProviderType, secret string) *domain.ServiceSummary {
	t.Helper()
	summary, err := f.svc.ConfigureService(context.Background(), driving.ConfigureServiceRequest{
		ProviderType: provider,
		Credential:   secret,
	})
	if err != nil {
		t.Fatalf("configure %s: %v", provider, err)
	}
	// Keep creation order stable for primary re-election
	time.Sleep(time.Millisecond)
	return summary
}

func TestSaveOrchestrator_ConfigureFirstBecomesPrimary(t *testing.T) {
	f := newSaveFixture()

	first := f.configure(t, domain.ProviderTypePocket, "token")
	second := f.configure(t, domain.ProviderTypeReadwise, "rw-token")

	if !first.Primary {
		t.Error("expected first service to be primary")
	}
	if second.Primary {
		t.Error("expected second service not to be primary")
	}
	if ids := f.store.PrimaryIDs(); len(ids) != 1 || ids[0] != first.ID {
		t.Errorf("expected only %s flagged primary, got %v", first.ID, ids)
	}
	if !f.creds.Has(domain.ProviderTypeReadwise, second.ID) {
		t.Error("expected credential stored under config id")
	}
}

func TestSaveOrchestrator_ConfigureRollsBackOnCredentialFailure(t *testing.T) {
	f := newSaveFixture()
	f.creds.SaveErr = errors.New("keychain locked")

	_, err := f.svc.ConfigureService(context.Background(), driving.ConfigureServiceRequest{
		ProviderType: domain.ProviderTypeOmnivore,
		Credential:   "key",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	configs, _ := f.store.List(context.Background())
	if len(configs) != 0 {
		t.Errorf("expected record to be rolled back, got %d", len(configs))
	}
	if len(f.svc.Snapshot().Services) != 0 {
		t.Error("expected empty registry")
	}
}

func TestSaveOrchestrator_ConfigureInvalidProvider(t *testing.T) {
	f := newSaveFixture()
	_, err := f.svc.ConfigureService(context.Background(), driving.ConfigureServiceRequest{
		ProviderType: "delicious",
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSaveOrchestrator_SaveNotConfigured(t *testing.T) {
	f := newSaveFixture()
	pocket := f.configure(t, domain.ProviderTypePocket, "token")

	result, err := f.svc.Save(context.Background(), driving.SaveRequest{
		URL:      "https://example.com/a",
		Provider: domain.ProviderTypeRaindrop,
	})
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if result == nil || result.Success || result.ErrorKind != domain.ErrorKindNotConfigured {
		t.Errorf("unexpected result %+v", result)
	}
	if calls := f.factory.Saver(pocket.ID).Calls(); calls != 0 {
		t.Errorf("expected no adapter calls, got %d", calls)
	}
	if f.publisher.LastSaveResult() != result {
		t.Error("expected failure to be broadcast")
	}
}

func TestSaveOrchestrator_SaveSuccess(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypeReadwise, "token")

	var gotURL, gotTitle string
	f.factory.Saver(cfg.ID).SaveFn = func(ctx context.Context, url, title string) (*domain.SaveReceipt, error) {
		gotURL, gotTitle = url, title
		return &domain.SaveReceipt{ItemID: "doc-9"}, nil
	}

	result, err := f.svc.Save(context.Background(), driving.SaveRequest{
		URL:      " https://example.com/a ",
		Title:    "A",
		Provider: domain.ProviderTypeReadwise,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotURL != "https://example.com/a" || gotTitle != "A" {
		t.Errorf("adapter got (%q, %q)", gotURL, gotTitle)
	}
	if !result.Success || result.ItemID != "doc-9" || result.ConfigID != cfg.ID {
		t.Errorf("unexpected result %+v", result)
	}
	if f.svc.LastResult() != result {
		t.Error("expected last result to be stored")
	}
	if len(f.publisher.SaveResults) != 1 {
		t.Errorf("expected one broadcast, got %d", len(f.publisher.SaveResults))
	}

	stored, _ := f.store.Get(context.Background(), cfg.ID)
	if stored.LastSyncedAt == nil {
		t.Error("expected last synced to be updated")
	}
}

func TestSaveOrchestrator_SaveFailureDoesNotMutateState(t *testing.T) {
	f := newSaveFixture()
	first := f.configure(t, domain.ProviderTypeInstapaper, "user:pass")
	f.configure(t, domain.ProviderTypeReadwise, "token")

	f.factory.Saver(first.ID).SaveFn = func(ctx context.Context, url, title string) (*domain.SaveReceipt, error) {
		return nil, domain.NewProviderError(domain.ProviderTypeInstapaper, domain.ErrCredentialInvalid, 403, "")
	}

	before := f.svc.Snapshot()
	result, err := f.svc.Save(context.Background(), driving.SaveRequest{
		URL:      "https://example.com/a",
		Provider: domain.ProviderTypeInstapaper,
	})
	if !errors.Is(err, domain.ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}
	if result.ErrorKind != domain.ErrorKindCredentialInvalid || result.Message == "" {
		t.Errorf("unexpected result %+v", result)
	}

	after := f.svc.Snapshot()
	if len(after.Services) != len(before.Services) || after.Primary.ID != before.Primary.ID {
		t.Error("failed save must not change the registry")
	}
	if !f.creds.Has(domain.ProviderTypeInstapaper, first.ID) {
		t.Error("failed save must not erase the credential")
	}
	stored, _ := f.store.Get(context.Background(), first.ID)
	if stored.LastSyncedAt != nil {
		t.Error("failed save must not touch last synced")
	}
}

func TestSaveOrchestrator_SaveToPrimary(t *testing.T) {
	f := newSaveFixture()
	f.configure(t, domain.ProviderTypePocket, "token")
	second := f.configure(t, domain.ProviderTypeRaindrop, "{}")

	if err := f.svc.SetPrimary(context.Background(), second.ID); err != nil {
		t.Fatalf("set primary: %v", err)
	}

	result, err := f.svc.SaveToPrimary(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ProviderType != domain.ProviderTypeRaindrop {
		t.Errorf("expected primary raindrop, got %s", result.ProviderType)
	}
	if f.factory.Saver(second.ID).Calls() != 1 {
		t.Error("expected primary adapter to be called")
	}
}

func TestSaveOrchestrator_SaveToPrimaryWithoutServices(t *testing.T) {
	f := newSaveFixture()
	_, err := f.svc.SaveToPrimary(context.Background(), "https://example.com", "")
	if !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSaveOrchestrator_SaveDisabled(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypePocket, "token")

	disabled := false
	if _, err := f.svc.UpdateService(context.Background(), cfg.ID, driving.UpdateServiceRequest{Enabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := f.svc.Save(context.Background(), driving.SaveRequest{URL: "https://example.com", Provider: domain.ProviderTypePocket})
	if !errors.Is(err, domain.ErrServiceDisabled) {
		t.Errorf("expected ErrServiceDisabled, got %v", err)
	}
	if f.factory.Saver(cfg.ID).Calls() != 0 {
		t.Error("disabled service must not be called")
	}
}

func TestSaveOrchestrator_SaveRequiresURL(t *testing.T) {
	f := newSaveFixture()
	_, err := f.svc.Save(context.Background(), driving.SaveRequest{URL: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSaveOrchestrator_BusyRejectsConcurrentSave(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypeReadwise, "token")

	started := make(chan struct{})
	release := make(chan struct{})
	f.factory.Saver(cfg.ID).SaveFn = func(ctx context.Context, url, title string) (*domain.SaveReceipt, error) {
		close(started)
		<-release
		return &domain.SaveReceipt{}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = f.svc.Save(context.Background(), driving.SaveRequest{URL: "https://example.com/1"})
	}()

	<-started
	if !f.svc.IsBusy() || !f.svc.Snapshot().IsBusy {
		t.Error("expected busy while a save is in flight")
	}
	_, err := f.svc.Save(context.Background(), driving.SaveRequest{URL: "https://example.com/2"})
	if !errors.Is(err, domain.ErrSaveInProgress) {
		t.Errorf("expected ErrSaveInProgress, got %v", err)
	}

	close(release)
	wg.Wait()

	if f.svc.IsBusy() {
		t.Error("expected busy flag to clear")
	}
}

func TestSaveOrchestrator_RemovePrimaryReelects(t *testing.T) {
	f := newSaveFixture()
	primary := f.configure(t, domain.ProviderTypePocket, "token")
	second := f.configure(t, domain.ProviderTypeInstapaper, "user:pass")
	f.configure(t, domain.ProviderTypeReadwise, "token")

	if err := f.svc.RemoveService(context.Background(), primary.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ids := f.store.PrimaryIDs()
	if len(ids) != 1 {
		t.Fatalf("expected exactly one primary, got %v", ids)
	}
	if ids[0] != second.ID {
		t.Errorf("expected earliest remaining service %s to be primary, got %s", second.ID, ids[0])
	}
	if f.svc.PrimaryID() != second.ID {
		t.Errorf("expected registry primary %s, got %s", second.ID, f.svc.PrimaryID())
	}
	if f.creds.Has(domain.ProviderTypePocket, primary.ID) {
		t.Error("expected credential to be erased")
	}
	if len(f.svc.Snapshot().Services) != 2 {
		t.Error("expected two services left")
	}
}

func TestSaveOrchestrator_RemoveLastService(t *testing.T) {
	f := newSaveFixture()
	only := f.configure(t, domain.ProviderTypeOmnivore, "key")

	if err := f.svc.RemoveService(context.Background(), only.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := f.svc.Snapshot()
	if snap.Primary != nil || len(snap.Services) != 0 {
		t.Errorf("expected empty registry, got %+v", snap)
	}
	if f.creds.Len() != 0 {
		t.Error("expected no credentials left")
	}
}

func TestSaveOrchestrator_RemoveUnknown(t *testing.T) {
	f := newSaveFixture()
	if err := f.svc.RemoveService(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveOrchestrator_RemoveKeepsRecordWhenCredentialDeleteFails(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypePocket, "token")
	f.creds.DeleteErr = errors.New("locked")

	if err := f.svc.RemoveService(context.Background(), cfg.ID); err == nil {
		t.Fatal("expected error")
	}
	if stored, _ := f.store.Get(context.Background(), cfg.ID); stored == nil {
		t.Error("expected record to remain")
	}
}

func TestSaveOrchestrator_SetPrimaryIdempotent(t *testing.T) {
	f := newSaveFixture()
	f.configure(t, domain.ProviderTypePocket, "token")
	target := f.configure(t, domain.ProviderTypeReadwise, "token")

	for i := 0; i < 2; i++ {
		if err := f.svc.SetPrimary(context.Background(), target.ID); err != nil {
			t.Fatalf("set primary #%d: %v", i+1, err)
		}
		ids := f.store.PrimaryIDs()
		if len(ids) != 1 || ids[0] != target.ID {
			t.Fatalf("after call #%d expected only %s primary, got %v", i+1, target.ID, ids)
		}
	}

	snap := f.svc.Snapshot()
	primaries := 0
	for _, s := range snap.Services {
		if s.Primary {
			primaries++
		}
	}
	if primaries != 1 || snap.Primary.ID != target.ID {
		t.Errorf("expected single primary %s in snapshot", target.ID)
	}
}

func TestSaveOrchestrator_SetPrimaryUnknown(t *testing.T) {
	f := newSaveFixture()
	if err := f.svc.SetPrimary(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveOrchestrator_LastSyncedWriteKeepsNewPrimary(t *testing.T) {
	f := newSaveFixture()
	ctx := context.Background()
	a := f.configure(t, domain.ProviderTypePocket, "token")
	b := f.configure(t, domain.ProviderTypeReadwise, "token")

	hit := make(chan struct{})
	release := make(chan struct{})
	var gated atomic.Bool
	f.store.SaveHook = func(cfg *domain.ServiceConfig) {
		if cfg.ID != a.ID || cfg.LastSyncedAt == nil {
			return
		}
		if gated.CompareAndSwap(false, true) {
			close(hit)
			<-release
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := f.svc.Save(ctx, driving.SaveRequest{URL: "https://example.com", Provider: domain.ProviderTypePocket}); err != nil {
			t.Errorf("save: %v", err)
		}
	}()

	<-hit
	go func() {
		defer wg.Done()
		if err := f.svc.SetPrimary(ctx, b.ID); err != nil {
			t.Errorf("set primary: %v", err)
		}
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	ids := f.store.PrimaryIDs()
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("expected only %s flagged primary, got %v", b.ID, ids)
	}
	if stored, _ := f.store.Get(ctx, a.ID); stored.LastSyncedAt == nil {
		t.Error("expected last synced time to be persisted")
	}

	f.svc.LoadConfigurations(ctx)
	if f.svc.PrimaryID() != b.ID {
		t.Errorf("expected %s primary after reload, got %s", b.ID, f.svc.PrimaryID())
	}
}

func TestSaveOrchestrator_RemovePrimaryReelectsWhenFlagWriteFails(t *testing.T) {
	f := newSaveFixture()
	ctx := context.Background()
	primary := f.configure(t, domain.ProviderTypePocket, "token")
	second := f.configure(t, domain.ProviderTypeInstapaper, "user:pass")
	f.configure(t, domain.ProviderTypeReadwise, "token")

	f.store.SaveErr = errors.New("read-only")
	if err := f.svc.RemoveService(ctx, primary.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if stored, _ := f.store.Get(ctx, primary.ID); stored != nil {
		t.Error("expected record to be deleted")
	}
	snap := f.svc.Snapshot()
	if len(snap.Services) != 2 {
		t.Fatalf("expected two services left, got %d", len(snap.Services))
	}
	if snap.Primary == nil || snap.Primary.ID != second.ID {
		t.Errorf("expected %s to be primary, got %+v", second.ID, snap.Primary)
	}

	f.store.SaveErr = nil
	f.svc.LoadConfigurations(ctx)
	if f.svc.PrimaryID() != second.ID {
		t.Errorf("expected %s primary after reload, got %s", second.ID, f.svc.PrimaryID())
	}
}

func TestSaveOrchestrator_ConfigureFirstWhenFlagWriteFails(t *testing.T) {
	f := newSaveFixture()
	ctx := context.Background()
	f.store.SaveErr = errors.New("read-only")

	summary, err := f.svc.ConfigureService(ctx, driving.ConfigureServiceRequest{
		ProviderType: domain.ProviderTypePocket,
		Credential:   "token",
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !summary.Primary || f.svc.PrimaryID() != summary.ID {
		t.Error("expected configured service to be primary")
	}
	if !f.creds.Has(domain.ProviderTypePocket, summary.ID) {
		t.Error("expected credential to be stored")
	}

	f.store.SaveErr = nil
	f.svc.LoadConfigurations(ctx)
	if f.svc.PrimaryID() != summary.ID {
		t.Errorf("expected %s primary after reload, got %s", summary.ID, f.svc.PrimaryID())
	}
}

func TestSaveOrchestrator_AnnouncesRegistryChanges(t *testing.T) {
	f := newSaveFixture()
	ctx := context.Background()
	first := f.configure(t, domain.ProviderTypePocket, "token")
	second := f.configure(t, domain.ProviderTypeReadwise, "token")

	if _, err := f.svc.Save(ctx, driving.SaveRequest{URL: "https://example.com"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.svc.SetPrimary(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := f.publisher.RegistryChanges(); got != 2 {
		t.Fatalf("expected 2 announcements after configuring, got %d", got)
	}

	if err := f.svc.SetPrimary(ctx, second.ID); err != nil {
		t.Fatalf("set primary: %v", err)
	}
	disabled := false
	if _, err := f.svc.UpdateService(ctx, first.ID, driving.UpdateServiceRequest{Enabled: &disabled}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := f.svc.RemoveService(ctx, first.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got := f.publisher.RegistryChanges(); got != 5 {
		t.Errorf("expected 5 announcements, got %d", got)
	}
}

func TestSaveOrchestrator_LoadConfigurations(t *testing.T) {
	f := newSaveFixture()
	base := time.Now().Add(-time.Hour)
	_ = f.store.Insert(context.Background(), &domain.ServiceConfig{ID: "a", ProviderType: domain.ProviderTypePocket, Enabled: true, CreatedAt: base})
	_ = f.store.Insert(context.Background(), &domain.ServiceConfig{ID: "b", ProviderType: domain.ProviderTypeReadwise, Enabled: true, Primary: true, CreatedAt: base.Add(time.Minute)})

	loaded := 0
	f.factory.Configure = func(s *mocks.MockSaver) {
		s.LoadCredentialFn = func(ctx context.Context) error {
			loaded++
			return nil
		}
	}

	f.svc.LoadConfigurations(context.Background())

	snap := f.svc.Snapshot()
	if len(snap.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(snap.Services))
	}
	if snap.Services[0].ID != "a" {
		t.Error("expected creation order")
	}
	if snap.Primary == nil || snap.Primary.ID != "b" {
		t.Error("expected flagged record to be primary")
	}
	if loaded != 2 {
		t.Errorf("expected credentials loaded before return, got %d", loaded)
	}
	if snap.IsLoading {
		t.Error("expected loading to be finished")
	}
}

func TestSaveOrchestrator_LoadConfigurationsFallsBackToFirst(t *testing.T) {
	f := newSaveFixture()
	base := time.Now().Add(-time.Hour)
	_ = f.store.Insert(context.Background(), &domain.ServiceConfig{ID: "b", ProviderType: domain.ProviderTypeReadwise, CreatedAt: base.Add(time.Minute)})
	_ = f.store.Insert(context.Background(), &domain.ServiceConfig{ID: "a", ProviderType: domain.ProviderTypePocket, CreatedAt: base})

	f.svc.LoadConfigurations(context.Background())

	if f.svc.PrimaryID() != "a" {
		t.Errorf("expected first record as primary, got %q", f.svc.PrimaryID())
	}
}

func TestSaveOrchestrator_LoadConfigurationsStorageFailure(t *testing.T) {
	f := newSaveFixture()
	f.configure(t, domain.ProviderTypePocket, "token")

	f.store.ListErr = errors.New("disk gone")
	f.svc.LoadConfigurations(context.Background())

	snap := f.svc.Snapshot()
	if len(snap.Services) != 0 || snap.Primary != nil {
		t.Errorf("expected empty registry after read failure, got %+v", snap)
	}
}

func TestSaveOrchestrator_UpdateServiceRebuildsAdapter(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypeRaindrop, "{}")
	original := f.factory.Saver(cfg.ID)

	collection := int64(7)
	summary, err := f.svc.UpdateService(context.Background(), cfg.ID, driving.UpdateServiceRequest{
		Settings: &domain.ServiceSettings{CollectionID: &collection},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if summary.Settings.CollectionID == nil || *summary.Settings.CollectionID != 7 {
		t.Error("expected settings to be updated")
	}
	if f.factory.Saver(cfg.ID) == original {
		t.Error("expected adapter to be rebuilt")
	}

	stored, _ := f.store.Get(context.Background(), cfg.ID)
	if stored.Settings.CollectionID == nil {
		t.Error("expected settings to be persisted")
	}
}

func TestSaveOrchestrator_Reauthenticate(t *testing.T) {
	f := newSaveFixture()
	cfg := f.configure(t, domain.ProviderTypePocket, "")
	f.factory.Saver(cfg.ID).AuthenticateFn = func(ctx context.Context) error {
		return domain.ErrSetupRequired
	}

	err := f.svc.Reauthenticate(context.Background(), cfg.ID)
	if !errors.Is(err, domain.ErrSetupRequired) {
		t.Errorf("expected ErrSetupRequired, got %v", err)
	}
	if err := f.svc.Reauthenticate(context.Background(), "missing"); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
