package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/lib/pq"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

var serviceConfigRowColumns = []string{
	"id", "provider_type", "enabled", "is_primary", "settings",
	"last_synced_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*ServiceConfigStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewServiceConfigStore(db), mock
}

func TestServiceConfigStore_Get(t *testing.T) {
	store, mock := newMockDB(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	collection := int64(42)
	want := &domain.ServiceConfig{
		ID:           "cfg-1",
		ProviderType: domain.ProviderTypeRaindrop,
		Enabled:      true,
		Primary:      true,
		Settings: domain.ServiceSettings{
			ClientID:     "client",
			CollectionID: &collection,
			Tags:         []string{"later"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	settings, err := want.MarshalSettings()
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM service_configs WHERE id = $1`)).
		WithArgs("cfg-1").
		WillReturnRows(sqlmock.NewRows(serviceConfigRowColumns).
			AddRow("cfg-1", "raindrop", true, true, settings, nil, created, created))

	got, err := store.Get(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("Get err=%v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestServiceConfigStore_GetMissing(t *testing.T) {
	store, mock := newMockDB(t)

	mock.ExpectQuery(`FROM service_configs`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(serviceConfigRowColumns))

	got, err := store.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestServiceConfigStore_ListOrdered(t *testing.T) {
	store, mock := newMockDB(t)

	now := time.Now()
	synced := now.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at, id`)).
		WillReturnRows(sqlmock.NewRows(serviceConfigRowColumns).
			AddRow("a", "pocket", true, false, []byte(`{"consumer_key":"ck"}`), synced, now, now).
			AddRow("b", "readwise", false, true, []byte(`{}`), nil, now, now))

	got, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List err=%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(got))
	}
	if got[0].Settings.ConsumerKey != "ck" || got[0].LastSyncedAt == nil {
		t.Errorf("first config not decoded: %+v", got[0])
	}
	if got[1].Enabled || !got[1].Primary || got[1].LastSyncedAt != nil {
		t.Errorf("second config not decoded: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestServiceConfigStore_Insert(t *testing.T) {
	store, mock := newMockDB(t)

	now := time.Now()
	cfg := &domain.ServiceConfig{
		ID:           "cfg-1",
		ProviderType: domain.ProviderTypeInstapaper,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO service_configs`).
		WithArgs("cfg-1", domain.ProviderTypeInstapaper, true, false, sqlmock.AnyArg(), sqlmock.AnyArg(), now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Insert(context.Background(), cfg); err != nil {
		t.Fatalf("Insert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestServiceConfigStore_InsertDuplicate(t *testing.T) {
	store, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO service_configs`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := store.Insert(context.Background(), &domain.ServiceConfig{ID: "dup", ProviderType: domain.ProviderTypePocket})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestServiceConfigStore_SaveMissing(t *testing.T) {
	store, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE service_configs SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Save(context.Background(), &domain.ServiceConfig{ID: "gone"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceConfigStore_Delete(t *testing.T) {
	store, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM service_configs WHERE id = $1`)).
		WithArgs("cfg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM service_configs`).
		WithArgs("cfg-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "cfg-1"); err != nil {
		t.Fatalf("Delete err=%v", err)
	}
	if err := store.Delete(context.Background(), "cfg-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
