// Package pgvault is a Postgres-backed store.Vault, grounded on
// internal/infra/storage/postgresql_members.go's raw-SQL, pkg/errors.Wrap
// style: hand-written queries over *sql.DB via database/sql and
// github.com/lib/pq, no ORM.
//
// Unlike memvault, pgvault does not implement store.UI/State/Environment/
// Sync/Hasher — a real deployment wires those from the surrounding
// application (its own UI, session, and sync layers), not from the
// credential table.
package pgvault

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"

	"github.com/vaultkey/fido2-core/internal/fido2/store"
)

// Store is a Postgres-backed store.Vault.
type Store struct {
	db *sql.DB
}

// Open connects to a Postgres database at dsn and verifies it is reachable.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "pgvault: failed to open connection")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "pgvault: failed to ping database")
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, for callers that manage their own pool
// (e.g. sharing one connection pool across several stores).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schema is the DDL pgvault expects. Callers run it once via a migration
// tool; pgvault itself never creates or alters tables.
const Schema = `
CREATE TABLE IF NOT EXISTS vault_entries (
	cipher_id TEXT PRIMARY KEY,
	blob BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// GetEncrypted fetches the sealed blob for cipherID.
func (s *Store) GetEncrypted(ctx context.Context, cipherID string) (store.EncryptedEntry, error) {
	query := `SELECT blob FROM vault_entries WHERE cipher_id = $1`
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, cipherID).Scan(&blob)
	if err != nil {
		if err == sql.ErrNoRows {
			return store.EncryptedEntry{}, errors.Errorf("pgvault: no entry for cipher %q", cipherID)
		}
		return store.EncryptedEntry{}, errors.Wrap(err, "failed to fetch vault entry")
	}
	return store.EncryptedEntry{CipherID: cipherID, Blob: blob}, nil
}

// Decrypt is not implemented by Store and always returns an error: Store
// holds no encryption key. Codec wraps a Store with a key and supplies
// Decrypt, Encrypt and GetAllDecrypted.
func (s *Store) Decrypt(ctx context.Context, entry store.EncryptedEntry) (store.Entry, error) {
	return store.Entry{}, errors.New("pgvault: Decrypt must be provided by the surrounding codec, see Codec")
}

// Encrypt mirrors Decrypt: it is supplied by the surrounding codec.
func (s *Store) Encrypt(ctx context.Context, entry store.Entry) (store.EncryptedEntry, error) {
	return store.EncryptedEntry{}, errors.New("pgvault: Encrypt must be provided by the surrounding codec, see Codec")
}

// SaveWithServer upserts entry's sealed blob.
func (s *Store) SaveWithServer(ctx context.Context, entry store.EncryptedEntry) error {
	query := `
		INSERT INTO vault_entries (cipher_id, blob, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cipher_id) DO UPDATE SET
			blob = EXCLUDED.blob,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, entry.CipherID, entry.Blob)
	if err != nil {
		return errors.Wrap(err, "failed to save vault entry")
	}
	return nil
}

// GetAllDecrypted is unsupported directly: pgvault only stores sealed blobs
// and has no decryption key of its own. Use Codec.GetAllDecrypted instead.
func (s *Store) GetAllDecrypted(ctx context.Context) ([]store.Entry, error) {
	return nil, errors.New("pgvault: GetAllDecrypted must be provided by the surrounding codec, see Codec")
}

// UpdateLastUsedDate bumps the updated_at column for cipherID, recording
// that it was touched without changing its blob.
func (s *Store) UpdateLastUsedDate(ctx context.Context, cipherID string) error {
	query := `UPDATE vault_entries SET updated_at = NOW() WHERE cipher_id = $1`
	_, err := s.db.ExecContext(ctx, query, cipherID)
	if err != nil {
		return errors.Wrap(err, "failed to update last-used date")
	}
	return nil
}

// ListCipherIDs returns every stored cipher ID, for codecs implementing
// GetAllDecrypted on top of the raw table.
func (s *Store) ListCipherIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cipher_id FROM vault_entries`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vault entries")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan cipher id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
