package pgvault

import (
	"context"
	"crypto/rand"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vaultkey/fido2-core/internal/fido2/store"
)

// Codec wraps a Store with a symmetric key, turning the raw blob table into
// a complete store.Vault. The key is the caller's responsibility (typically
// derived from a master password or fetched from a KMS) and is never
// persisted by pgvault itself.
type Codec struct {
	*Store
	aead chacha20poly1305.AEAD
}

// NewCodec builds a Codec over store using key (must be
// chacha20poly1305.KeySize bytes).
func NewCodec(s *Store, key []byte) (*Codec, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "pgvault: failed to construct AEAD")
	}
	return &Codec{Store: s, aead: aead}, nil
}

// Decrypt opens an EncryptedEntry's blob.
func (c *Codec) Decrypt(ctx context.Context, entry store.EncryptedEntry) (store.Entry, error) {
	if len(entry.Blob) < c.aead.NonceSize() {
		return store.Entry{}, errors.New("pgvault: ciphertext shorter than nonce")
	}
	nonce, ciphertext := entry.Blob[:c.aead.NonceSize()], entry.Blob[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, []byte(entry.CipherID))
	if err != nil {
		return store.Entry{}, errors.Wrap(err, "pgvault: failed to open sealed entry")
	}
	var e store.Entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return store.Entry{}, errors.Wrap(err, "pgvault: failed to unmarshal decrypted entry")
	}
	return e, nil
}

// Encrypt seals entry, assigning a fresh CipherID if entry.ID is empty.
func (c *Codec) Encrypt(ctx context.Context, entry store.Entry) (store.EncryptedEntry, error) {
	if entry.ID == "" {
		id, err := randomCipherID()
		if err != nil {
			return store.EncryptedEntry{}, err
		}
		entry.ID = id
	}
	plain, err := json.Marshal(entry)
	if err != nil {
		return store.EncryptedEntry{}, errors.Wrap(err, "pgvault: failed to marshal entry")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return store.EncryptedEntry{}, errors.Wrap(err, "pgvault: failed to generate nonce")
	}
	sealed := c.aead.Seal(nonce, nonce, plain, []byte(entry.ID))
	return store.EncryptedEntry{CipherID: entry.ID, Blob: sealed}, nil
}

// GetAllDecrypted lists every cipher ID then decrypts each in turn.
func (c *Codec) GetAllDecrypted(ctx context.Context) ([]store.Entry, error) {
	ids, err := c.ListCipherIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		enc, err := c.GetEncrypted(ctx, id)
		if err != nil {
			return nil, err
		}
		e, err := c.Decrypt(ctx, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func randomCipherID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "pgvault: failed to generate cipher id")
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range b {
		out[2*i] = hex[c>>4]
		out[2*i+1] = hex[c&0xf]
	}
	return string(out), nil
}
