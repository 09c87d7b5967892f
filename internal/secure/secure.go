// Package secure implements the secure-data storage and versioning engine.
// Secrets live under slash-delimited logical paths, encrypted at rest with
// path-bound encryption. Every update or delete archives the prior state to
// an append-only version ledger before the live row is touched.
package secure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldju/cerberus/internal/crypto"
	"github.com/fieldju/cerberus/internal/domain"
)

var (
	// ErrNotFound is returned when no live record exists at a path.
	ErrNotFound = errors.New("no secure data found at path")
	// ErrInvalidSecureDataType is returned when a write would overwrite a
	// record of a different type (e.g. an object write over a file entry).
	ErrInvalidSecureDataType = errors.New("secure data type does not match existing data at path")
)

// Store is the keyed persistence contract for live secure-data records.
// Lookups return (nil, nil) when no record exists.
type Store interface {
	GetByPath(ctx context.Context, path string) (*domain.SecureDataRecord, error)
	GetByPathAndType(ctx context.Context, path string, t domain.SecureDataType) (*domain.SecureDataRecord, error)
	Insert(ctx context.Context, rec *domain.SecureDataRecord) error
	Update(ctx context.Context, rec *domain.SecureDataRecord) error
	Delete(ctx context.Context, path string) error
	PathsByPrefixAndType(ctx context.Context, prefix string, t domain.SecureDataType) ([]string, error)
	PathsBySDBID(ctx context.Context, sdbID uuid.UUID) ([]string, error)
	CountAll(ctx context.Context) (int64, error)
	SumTopLevelKeyCounts(ctx context.Context) (int64, error)
	DeleteByPathPrefix(ctx context.Context, prefix string) error
}

// VersionStore is the append-only ledger of prior record states. No update
// or delete operation is exposed.
type VersionStore interface {
	Append(ctx context.Context, v *domain.SecureDataVersion) error
}

// Transactor runs a function against transaction-scoped stores. The archive
// and live-row mutation of a write or delete must commit or roll back as one
// unit, so the boundary is explicit in the contract rather than hidden in
// the persistence layer.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(Store, VersionStore) error) error
}

// Engine orchestrates secret reads, writes, deletes, and listing against the
// live store, the version ledger, and the encryption gateway. The engine is
// stateless between calls; all durable state lives in the stores.
type Engine struct {
	tx      Transactor
	store   Store
	gateway crypto.Gateway
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewEngine creates a secure data engine. metrics may be nil.
func NewEngine(tx Transactor, store Store, gateway crypto.Gateway, logger *slog.Logger, metrics *Metrics) *Engine {
	return &Engine{
		tx:      tx,
		store:   store,
		gateway: gateway,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WriteSecret encrypts and persists a JSON-object payload at path. If a live
// record already exists it must be OBJECT-typed; the current state is
// archived as an UPDATE version and the live row overwritten, preserving the
// original creation audit fields. Otherwise a fresh record is inserted with
// the principal as creator. Archive and mutation commit atomically.
func (e *Engine) WriteSecret(ctx context.Context, sdbID uuid.UUID, path, plaintextPayload, principal string) error {
	e.logger.Debug("writing secure data", slog.String("sdb_id", sdbID.String()), slog.String("path", path))

	if strings.Trim(path, "/") == "" {
		return fmt.Errorf("secure data path must not be empty")
	}

	kvCount := e.topLevelKeyCount(plaintextPayload)
	sizeInBytes := len(plaintextPayload)

	ciphertext, err := e.gateway.Encrypt(ctx, plaintextPayload, path)
	if err != nil {
		return fmt.Errorf("encrypting secure data at %s: %w", path, err)
	}
	now := e.now()

	err = e.tx.InTransaction(ctx, func(ds Store, vs VersionStore) error {
		current, err := ds.GetByPath(ctx, path)
		if err != nil {
			return fmt.Errorf("reading current secure data at %s: %w", path, err)
		}
		if current == nil {
			return ds.Insert(ctx, &domain.SecureDataRecord{
				Path:             path,
				SDBID:            sdbID,
				EncryptedBlob:    []byte(ciphertext),
				Type:             domain.SecureDataTypeObject,
				SizeInBytes:      sizeInBytes,
				TopLevelKeyCount: kvCount,
				CreatedBy:        principal,
				CreatedAt:        now,
				LastUpdatedBy:    principal,
				LastUpdatedAt:    now,
			})
		}

		if current.Type != domain.SecureDataTypeObject {
			return ErrInvalidSecureDataType
		}

		if err := vs.Append(ctx, &domain.SecureDataVersion{
			SDBID:             sdbID,
			Path:              path,
			EncryptedBlob:     current.EncryptedBlob,
			Action:            domain.SecretsActionUpdate,
			Type:              domain.SecureDataTypeObject,
			SizeInBytes:       current.SizeInBytes,
			PreviousUpdatedBy: current.LastUpdatedBy,
			PreviousUpdatedAt: current.LastUpdatedAt,
			ActionPerformedBy: principal,
			ActionPerformedAt: now,
		}); err != nil {
			return fmt.Errorf("archiving secure data version at %s: %w", path, err)
		}

		return ds.Update(ctx, &domain.SecureDataRecord{
			Path:             path,
			SDBID:            sdbID,
			EncryptedBlob:    []byte(ciphertext),
			Type:             domain.SecureDataTypeObject,
			SizeInBytes:      sizeInBytes,
			TopLevelKeyCount: kvCount,
			CreatedBy:        current.CreatedBy,
			CreatedAt:        current.CreatedAt,
			LastUpdatedBy:    principal,
			LastUpdatedAt:    now,
		})
	})
	if err != nil {
		return err
	}

	e.metrics.observeWrite(sizeInBytes)
	return nil
}

// ReadSecret returns the decrypted secret at path, or (nil, nil) when no
// OBJECT record exists there. A decryption failure is a hard error, never
// "not found".
func (e *Engine) ReadSecret(ctx context.Context, path string) (*domain.SecureData, error) {
	e.logger.Debug("reading secure data", slog.String("path", path))

	rec, err := e.store.GetByPathAndType(ctx, path, domain.SecureDataTypeObject)
	if err != nil {
		return nil, fmt.Errorf("reading secure data at %s: %w", path, err)
	}
	if rec == nil {
		return nil, nil
	}

	plaintext, err := e.gateway.Decrypt(ctx, string(rec.EncryptedBlob), path)
	if err != nil {
		e.metrics.observeDecryptFailure()
		return nil, fmt.Errorf("decrypting secure data at %s: %w", path, err)
	}

	e.metrics.observeRead()
	return &domain.SecureData{
		SDBID:         rec.SDBID,
		Path:          rec.Path,
		Data:          plaintext,
		CreatedBy:     rec.CreatedBy,
		CreatedAt:     rec.CreatedAt,
		LastUpdatedBy: rec.LastUpdatedBy,
		LastUpdatedAt: rec.LastUpdatedAt,
	}, nil
}

// ListKeys lists the virtual tree one level below partialPath, mimicking a
// directory listing over the flat path set.
//
// Given live paths
//
//	app/foo/bar/bam
//	app/foo/bam
//	app/bam/foo
//
// ListKeys("app/foo") and ListKeys("app/foo/") both return {"bar/", "bam"}.
// Entries ending in "/" have further children; the rest are data nodes.
func (e *Engine) ListKeys(ctx context.Context, partialPath string) (map[string]struct{}, error) {
	if !strings.HasSuffix(partialPath, "/") {
		partialPath += "/"
	}

	keys := make(map[string]struct{})
	paths, err := e.store.PathsByPrefixAndType(ctx, partialPath, domain.SecureDataTypeObject)
	if err != nil {
		return nil, fmt.Errorf("listing keys under %s: %w", partialPath, err)
	}

	for _, fullPath := range paths {
		rest := strings.TrimPrefix(fullPath, partialPath)
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		keys[rest] = struct{}{}
	}
	return keys, nil
}

// DeleteSecret archives the live record at path as a DELETE version, then
// removes the live row, atomically. The archive-then-remove ordering makes
// every individual delete recoverable from the version ledger.
func (e *Engine) DeleteSecret(ctx context.Context, path, principal string) error {
	now := e.now()

	err := e.tx.InTransaction(ctx, func(ds Store, vs VersionStore) error {
		current, err := ds.GetByPath(ctx, path)
		if err != nil {
			return fmt.Errorf("reading secure data at %s: %w", path, err)
		}
		if current == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}

		if err := vs.Append(ctx, &domain.SecureDataVersion{
			SDBID:             current.SDBID,
			Path:              current.Path,
			EncryptedBlob:     current.EncryptedBlob,
			Action:            domain.SecretsActionDelete,
			Type:              current.Type,
			SizeInBytes:       current.SizeInBytes,
			PreviousUpdatedBy: current.LastUpdatedBy,
			PreviousUpdatedAt: current.LastUpdatedAt,
			ActionPerformedBy: principal,
			ActionPerformedAt: now,
		}); err != nil {
			return fmt.Errorf("archiving secure data version at %s: %w", path, err)
		}

		return ds.Delete(ctx, path)
	})
	if err != nil {
		return err
	}

	e.metrics.observeDelete()
	return nil
}

// DeleteAllSecretsUnderPrefix removes every live record whose path starts
// with subPath. This is a coarse administrative purge: unlike DeleteSecret
// it writes NO version records, and it applies no trailing-slash
// normalization, so callers must pass the exact prefix they intend.
//
// Given live paths
//
//	app/test/foo/1
//	app/test/foo/2
//	app/test/bam
//
// DeleteAllSecretsUnderPrefix("app/test/foo/") removes the first two and
// leaves app/test/bam intact.
func (e *Engine) DeleteAllSecretsUnderPrefix(ctx context.Context, subPath string) error {
	e.logger.Warn("deleting all secure data under path", slog.String("path", subPath))
	if err := e.store.DeleteByPathPrefix(ctx, subPath); err != nil {
		return fmt.Errorf("bulk deleting secure data under %s: %w", subPath, err)
	}
	return nil
}

// RestoreSDBSecrets bulk-writes backed-up secrets for one safe deposit box.
// Keys of data are full paths including the category segment, which is
// stripped before writing because the engine stores paths relative to the
// category.
func (e *Engine) RestoreSDBSecrets(ctx context.Context, sdbID uuid.UUID, data map[string]map[string]any, principal string) error {
	for path, secretsData := range data {
		pathWithoutCategory := path
		if i := strings.Index(path, "/"); i >= 0 {
			pathWithoutCategory = path[i+1:]
		}
		payload, err := json.Marshal(secretsData)
		if err != nil {
			return fmt.Errorf("marshaling secrets payload for sdb %s at %s: %w", sdbID, path, err)
		}
		if err := e.WriteSecret(ctx, sdbID, pathWithoutCategory, string(payload), principal); err != nil {
			return err
		}
	}
	return nil
}

// PathsForSDB returns every live path owned by the given safe deposit box.
func (e *Engine) PathsForSDB(ctx context.Context, sdbID uuid.UUID) ([]string, error) {
	return e.store.PathsBySDBID(ctx, sdbID)
}

// TotalDataNodeCount reports the number of live secure-data records.
func (e *Engine) TotalDataNodeCount(ctx context.Context) (int64, error) {
	return e.store.CountAll(ctx)
}

// TotalKeyValuePairCount sums the top-level key counts across all live
// records. A reporting metric only, never used for authorization.
func (e *Engine) TotalKeyValuePairCount(ctx context.Context) (int64, error) {
	return e.store.SumTopLevelKeyCounts(ctx)
}

// HasBeenUpdated reports whether the record has ever been overwritten since
// creation. Exact equality on author and timestamp; no tolerance window.
func HasBeenUpdated(rec *domain.SecureDataRecord) bool {
	createdBySame := rec.CreatedBy == rec.LastUpdatedBy
	createdAtSame := rec.CreatedAt.Equal(rec.LastUpdatedAt)
	return !(createdBySame && createdAtSame)
}

// SecretMetadata flattens the audit fields of a secret into a string map for
// API and tooling output.
func SecretMetadata(sd *domain.SecureData) map[string]string {
	return map[string]string{
		"created_by":      sd.CreatedBy,
		"created_ts":      sd.CreatedAt.Format(time.RFC3339Nano),
		"last_updated_by": sd.LastUpdatedBy,
		"last_updated_ts": sd.LastUpdatedAt.Format(time.RFC3339Nano),
	}
}

// topLevelKeyCount parses the payload as a flat JSON object and counts its
// top-level keys for KPI reporting. Parse failures default to 1 and are
// logged; metric collection must never block the write path.
func (e *Engine) topLevelKeyCount(plaintextPayload string) int {
	kvCount := 1
	var data map[string]any
	if err := json.Unmarshal([]byte(plaintextPayload), &data); err != nil {
		e.logger.Error("failed to count top level key value pairs in payload", slog.Any("error", err))
	} else if data != nil {
		kvCount = len(data)
	}
	return kvCount
}
