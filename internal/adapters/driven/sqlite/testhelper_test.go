package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/custodia-labs/readlater/internal/adapters/driven/secrets"
)

// setupTestDB creates a named shared in-memory database for one test.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)
	db, err := openDSN(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func testEncryptor(t *testing.T) *secrets.Encryptor {
	t.Helper()
	enc, err := secrets.NewEncryptor(make([]byte, secrets.KeySize))
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}
	return enc
}
