//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fieldju/cerberus/internal/domain"
	"github.com/fieldju/cerberus/internal/secure"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := Open(Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testPathPrefix returns a unique path prefix so tests sharing one database
// never see each other's rows.
func testPathPrefix(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("app/test-%s/", uuid.New().String()[:8])
}

func newTestRecord(path string, sdbID uuid.UUID) *domain.SecureDataRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.SecureDataRecord{
		Path:             path,
		SDBID:            sdbID,
		EncryptedBlob:    []byte("blob-" + path),
		Type:             domain.SecureDataTypeObject,
		SizeInBytes:      16,
		TopLevelKeyCount: 1,
		CreatedBy:        "alice",
		CreatedAt:        now,
		LastUpdatedBy:    "alice",
		LastUpdatedAt:    now,
	}
}

// --- Connection Health ---

func TestConnectionHealth(t *testing.T) {
	db := testDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

// --- Concurrent Writes ---

func TestSecureDataRepository_ConcurrentInserts(t *testing.T) {
	db := testDB(t)
	repo := NewSecureDataRepository(db.GormDB())
	ctx := context.Background()
	prefix := testPathPrefix(t)
	sdbID := uuid.New()

	const numWorkers = 20
	var failCount atomic.Int32
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("%ssecret-%d", prefix, i)
			if err := repo.Insert(ctx, newTestRecord(path, sdbID)); err != nil {
				failCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := failCount.Load(); got != 0 {
		t.Errorf("failed inserts = %d, want 0", got)
	}
	paths, err := repo.PathsByPrefixAndType(ctx, prefix, domain.SecureDataTypeObject)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(paths) != numWorkers {
		t.Errorf("stored paths = %d, want %d", len(paths), numWorkers)
	}
}

func TestSecureDataRepository_DuplicateInsertRejected(t *testing.T) {
	db := testDB(t)
	repo := NewSecureDataRepository(db.GormDB())
	ctx := context.Background()
	path := testPathPrefix(t) + "dup"

	if err := repo.Insert(ctx, newTestRecord(path, uuid.New())); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.Insert(ctx, newTestRecord(path, uuid.New())); err == nil {
		t.Error("second insert on the same path must violate the primary key")
	}
}

// --- Version Archive ---

func TestSecureDataVersionRepository_NewestFirst(t *testing.T) {
	db := testDB(t)
	repo := NewSecureDataVersionRepository(db.GormDB())
	ctx := context.Background()
	path := testPathPrefix(t) + "versioned"
	sdbID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		err := repo.Append(ctx, &domain.SecureDataVersion{
			SDBID:             sdbID,
			Path:              path,
			EncryptedBlob:     []byte(fmt.Sprintf("v%d", i)),
			Action:            domain.SecretsActionUpdate,
			Type:              domain.SecureDataTypeObject,
			SizeInBytes:       i,
			ActionPerformedBy: "alice",
			ActionPerformedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("appending version %d: %v", i, err)
		}
	}

	versions, err := repo.VersionsByPath(ctx, path, 0)
	if err != nil {
		t.Fatalf("querying versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("got %d versions, want 3", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i].ActionPerformedAt.After(versions[i-1].ActionPerformedAt) {
			t.Errorf("version %d performed at %v is after version %d at %v (should be newest first)",
				i, versions[i].ActionPerformedAt, i-1, versions[i-1].ActionPerformedAt)
		}
	}

	versions, err = repo.VersionsByPath(ctx, path, 2)
	if err != nil {
		t.Fatalf("querying with limit: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("got %d versions with limit 2, want 2", len(versions))
	}
}

// --- Transaction Atomicity ---

func TestTransactor_ArchiveAndDeleteCommitTogether(t *testing.T) {
	db := testDB(t)
	dataRepo := NewSecureDataRepository(db.GormDB())
	versionRepo := NewSecureDataVersionRepository(db.GormDB())
	tx := NewTransactor(db.GormDB())
	ctx := context.Background()
	path := testPathPrefix(t) + "secret"
	sdbID := uuid.New()

	if err := dataRepo.Insert(ctx, newTestRecord(path, sdbID)); err != nil {
		t.Fatalf("seeding record: %v", err)
	}

	err := tx.InTransaction(ctx, func(ds secure.Store, vs secure.VersionStore) error {
		if err := vs.Append(ctx, &domain.SecureDataVersion{
			SDBID:             sdbID,
			Path:              path,
			EncryptedBlob:     []byte("blob-" + path),
			Action:            domain.SecretsActionDelete,
			Type:              domain.SecureDataTypeObject,
			ActionPerformedBy: "bob",
			ActionPerformedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return ds.Delete(ctx, path)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	rec, err := dataRepo.GetByPath(ctx, path)
	if err != nil || rec != nil {
		t.Fatalf("record must be gone after commit, got (%v, %v)", rec, err)
	}
	versions, err := versionRepo.VersionsByPath(ctx, path, 0)
	if err != nil {
		t.Fatalf("querying versions: %v", err)
	}
	if len(versions) != 1 || versions[0].Action != domain.SecretsActionDelete {
		t.Fatalf("expected one DELETE version, got %+v", versions)
	}
}

func TestTransactor_RollbackLeavesNoTrace(t *testing.T) {
	db := testDB(t)
	dataRepo := NewSecureDataRepository(db.GormDB())
	versionRepo := NewSecureDataVersionRepository(db.GormDB())
	tx := NewTransactor(db.GormDB())
	ctx := context.Background()
	path := testPathPrefix(t) + "secret"
	sdbID := uuid.New()

	sentinel := errors.New("boom")
	err := tx.InTransaction(ctx, func(ds secure.Store, vs secure.VersionStore) error {
		if err := ds.Insert(ctx, newTestRecord(path, sdbID)); err != nil {
			return err
		}
		if err := vs.Append(ctx, &domain.SecureDataVersion{
			SDBID:         sdbID,
			Path:          path,
			EncryptedBlob: []byte("old"),
			Action:        domain.SecretsActionUpdate,
			Type:          domain.SecureDataTypeObject,
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	rec, err := dataRepo.GetByPath(ctx, path)
	if err != nil || rec != nil {
		t.Fatalf("insert must be rolled back, got (%v, %v)", rec, err)
	}
	versions, err := versionRepo.VersionsByPath(ctx, path, 0)
	if err != nil {
		t.Fatalf("querying versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("version append must be rolled back, got %d versions", len(versions))
	}
}

// --- Directory Seeding ---

func TestDirectorySeeding_Idempotent(t *testing.T) {
	db := testDB(t)
	repo := NewDirectoryRepository(db.GormDB())
	ctx := context.Background()

	// Open already seeded; a second pass must not duplicate rows.
	if err := repo.EnsureDefaults(ctx); err != nil {
		t.Fatalf("re-seeding: %v", err)
	}

	roles, err := repo.RoleIDToNameMap(ctx)
	if err != nil {
		t.Fatalf("role map: %v", err)
	}
	if len(roles) != 3 {
		t.Errorf("role count = %d, want 3", len(roles))
	}

	cats, err := repo.CategoryIDToNameMap(ctx)
	if err != nil {
		t.Fatalf("category map: %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("category count = %d, want 2", len(cats))
	}
}
