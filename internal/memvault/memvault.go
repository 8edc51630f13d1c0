// Package memvault is an in-process reference implementation of every
// collaborator interface the fido2 client and authenticator layers consume
// (store.Vault, store.UI, store.State, store.Environment, store.Sync,
// store.Hasher). It exists so the core can be exercised end to end (by
// tests and by cmd/fido2demo) without a running password-manager backend.
//
// Entries are "encrypted" with XChaCha20-Poly1305 under a fixed vault key,
// mirroring how a real client encrypts cipher blobs before they ever reach
// sync or disk; the key here is generated once at construction time and
// memvault never writes it anywhere itself. ExportState hands the key and
// blobs to a caller that needs the vault to span processes (cmd/fido2vectors
// saves them to a file), and LoadState rebuilds a Vault from them.
package memvault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/vaultkey/fido2-core/internal/fido2/crypto"
	"github.com/vaultkey/fido2-core/internal/fido2/store"
)

// Vault is an in-memory store.Vault. It also implements store.UI,
// store.State, store.Environment, and store.Sync with fixed, scriptable
// answers, since a demo harness has no human operator and no real network.
type Vault struct {
	mu        sync.Mutex
	aead      chacha20poly1305.AEAD
	aeadKey   []byte
	encrypted map[string][]byte // CipherID -> AEAD-sealed JSON blob
	locks     map[string]*sync.Mutex

	webVaultURL string
	blocklist   map[string]struct{}
	authed      bool

	// ConfirmCipherID, when non-empty, is the entry ConfirmNewCredential
	// reports as chosen; PickCipherID is the same for PickCredential. Both
	// default to "" (cancellation) until a caller sets them, so a fresh
	// Vault is safe but useless until configured — callers drive the
	// ceremony by setting these fields between steps.
	ConfirmCipherID   string
	ConfirmUV         bool
	PickCipherID      string
	PickUV            bool
	PickUP            bool
}

// New constructs an empty Vault with a freshly generated AEAD key, an
// authenticated session, an empty autofill blocklist, and the given web
// vault URL (used by the self-registration guard).
func New(webVaultURL string) (*Vault, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "memvault: failed to generate AEAD key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "memvault: failed to construct AEAD")
	}
	return &Vault{
		aead:        aead,
		aeadKey:     key,
		encrypted:   make(map[string][]byte),
		locks:       make(map[string]*sync.Mutex),
		webVaultURL: webVaultURL,
		blocklist:   make(map[string]struct{}),
		authed:      true,
	}, nil
}

// Seed inserts entry pre-encrypted into the store, as if it had been synced
// down from a server, returning the generated CipherID.
func (v *Vault) Seed(entry store.Entry) (string, error) {
	enc, err := v.Encrypt(context.Background(), entry)
	if err != nil {
		return "", err
	}
	if err := v.SaveWithServer(context.Background(), enc); err != nil {
		return "", err
	}
	return enc.CipherID, nil
}

func (v *Vault) lockFor(cipherID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	l, ok := v.locks[cipherID]
	if !ok {
		l = &sync.Mutex{}
		v.locks[cipherID] = l
	}
	return l
}

// GetEncrypted returns the sealed blob for cipherID.
func (v *Vault) GetEncrypted(ctx context.Context, cipherID string) (store.EncryptedEntry, error) {
	l := v.lockFor(cipherID)
	l.Lock()
	defer l.Unlock()

	v.mu.Lock()
	blob, ok := v.encrypted[cipherID]
	v.mu.Unlock()
	if !ok {
		return store.EncryptedEntry{}, errors.Errorf("memvault: no entry for cipher %q", cipherID)
	}
	return store.EncryptedEntry{CipherID: cipherID, Blob: blob}, nil
}

// Decrypt opens an EncryptedEntry's blob.
func (v *Vault) Decrypt(ctx context.Context, entry store.EncryptedEntry) (store.Entry, error) {
	if len(entry.Blob) < v.aead.NonceSize() {
		return store.Entry{}, errors.New("memvault: ciphertext shorter than nonce")
	}
	nonce, ciphertext := entry.Blob[:v.aead.NonceSize()], entry.Blob[v.aead.NonceSize():]
	plain, err := v.aead.Open(nil, nonce, ciphertext, []byte(entry.CipherID))
	if err != nil {
		return store.Entry{}, errors.Wrap(err, "memvault: failed to open sealed entry")
	}
	var e store.Entry
	if err := json.Unmarshal(plain, &e); err != nil {
		return store.Entry{}, errors.Wrap(err, "memvault: failed to unmarshal decrypted entry")
	}
	return e, nil
}

// Encrypt seals entry, assigning a fresh CipherID if entry.ID is empty.
func (v *Vault) Encrypt(ctx context.Context, entry store.Entry) (store.EncryptedEntry, error) {
	if entry.ID == "" {
		entry.ID = newCipherID()
	}
	plain, err := json.Marshal(entry)
	if err != nil {
		return store.EncryptedEntry{}, errors.Wrap(err, "memvault: failed to marshal entry")
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return store.EncryptedEntry{}, errors.Wrap(err, "memvault: failed to generate nonce")
	}
	sealed := v.aead.Seal(nonce, nonce, plain, []byte(entry.ID))
	return store.EncryptedEntry{CipherID: entry.ID, Blob: sealed}, nil
}

// SaveWithServer persists entry as if it had been round-tripped through a
// sync server.
func (v *Vault) SaveWithServer(ctx context.Context, entry store.EncryptedEntry) error {
	l := v.lockFor(entry.CipherID)
	l.Lock()
	defer l.Unlock()

	v.mu.Lock()
	v.encrypted[entry.CipherID] = entry.Blob
	v.mu.Unlock()
	return nil
}

// GetAllDecrypted returns every stored entry, decrypted.
func (v *Vault) GetAllDecrypted(ctx context.Context) ([]store.Entry, error) {
	v.mu.Lock()
	ids := make([]string, 0, len(v.encrypted))
	for id := range v.encrypted {
		ids = append(ids, id)
	}
	v.mu.Unlock()

	out := make([]store.Entry, 0, len(ids))
	for _, id := range ids {
		enc, err := v.GetEncrypted(ctx, id)
		if err != nil {
			return nil, err
		}
		e, err := v.Decrypt(ctx, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateLastUsedDate decrypts the entry for cipherID, stamps its
// LastUsedDate, and reseals it, mirroring the out-of-band "updated_at" bump
// pgvault.Store does with a plain UPDATE against its own column.
func (v *Vault) UpdateLastUsedDate(ctx context.Context, cipherID string) error {
	enc, err := v.GetEncrypted(ctx, cipherID)
	if err != nil {
		return err
	}
	entry, err := v.Decrypt(ctx, enc)
	if err != nil {
		return err
	}
	entry.LastUsedDate = time.Now()
	resealed, err := v.Encrypt(ctx, entry)
	if err != nil {
		return err
	}
	return v.SaveWithServer(ctx, resealed)
}

// EnsureUnlockedVault always succeeds: memvault has no lock state.
func (v *Vault) EnsureUnlockedVault(ctx context.Context) error {
	return nil
}

// InformExcludedCredential is a no-op notification sink.
func (v *Vault) InformExcludedCredential(ctx context.Context, credentialIDs []string) {}

// ConfirmNewCredential returns the scripted ConfirmCipherID/ConfirmUV.
func (v *Vault) ConfirmNewCredential(ctx context.Context, req store.ConfirmNewCredentialRequest) (store.ConfirmNewCredentialResult, error) {
	return store.ConfirmNewCredentialResult{CipherID: v.ConfirmCipherID, UserVerified: v.ConfirmUV}, nil
}

// PickCredential returns the scripted PickCipherID/PickUV. PickCredentialResult
// carries no presence flag, so PickUP is not reported.
func (v *Vault) PickCredential(ctx context.Context, req store.PickCredentialRequest) (store.PickCredentialResult, error) {
	return store.PickCredentialResult{CipherID: v.PickCipherID, UserVerified: v.PickUV}, nil
}

// AutofillBlocklistedHosts returns the configured blocklist.
func (v *Vault) AutofillBlocklistedHosts(ctx context.Context) (map[string]struct{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]struct{}, len(v.blocklist))
	for h := range v.blocklist {
		out[h] = struct{}{}
	}
	return out, nil
}

// Block adds host to the autofill blocklist.
func (v *Vault) Block(host string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blocklist[host] = struct{}{}
}

// IsAuthenticated reports the configured authentication state.
func (v *Vault) IsAuthenticated(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.authed, nil
}

// SetAuthenticated overrides the authentication state, for exercising the
// InvalidState guard.
func (v *Vault) SetAuthenticated(authed bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.authed = authed
}

// WebVaultURL returns the configured web vault origin.
func (v *Vault) WebVaultURL(ctx context.Context) (string, error) {
	return v.webVaultURL, nil
}

// FullSync is a no-op: memvault has nothing to fetch from.
func (v *Vault) FullSync(ctx context.Context, force bool) error {
	return nil
}

// Hash implements store.Hasher via the core's own SHA-256.
func (v *Vault) Hash(data []byte) [32]byte {
	return crypto.SHA256(data)
}

// State is the serializable form of a Vault's key and encrypted blobs, so
// cmd/fido2vectors can register a credential in one process invocation and
// assert against it in another.
type State struct {
	Key       []byte
	Encrypted map[string][]byte
}

// ExportState snapshots v's AEAD key and encrypted blobs.
func (v *Vault) ExportState() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	enc := make(map[string][]byte, len(v.encrypted))
	for id, blob := range v.encrypted {
		enc[id] = append([]byte(nil), blob...)
	}
	return State{Key: v.aeadKey, Encrypted: enc}
}

// LoadState constructs a Vault from a previously exported State, reusing its
// AEAD key so existing blobs stay decryptable.
func LoadState(webVaultURL string, s State) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(s.Key)
	if err != nil {
		return nil, errors.Wrap(err, "memvault: failed to reconstruct AEAD from saved key")
	}
	encrypted := make(map[string][]byte, len(s.Encrypted))
	for id, blob := range s.Encrypted {
		encrypted[id] = append([]byte(nil), blob...)
	}
	return &Vault{
		aead:        aead,
		aeadKey:     append([]byte(nil), s.Key...),
		encrypted:   encrypted,
		locks:       make(map[string]*sync.Mutex),
		webVaultURL: webVaultURL,
		blocklist:   make(map[string]struct{}),
		authed:      true,
	}, nil
}

func newCipherID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range b {
		out[2*i] = hex[c>>4]
		out[2*i+1] = hex[c&0xf]
	}
	return string(out)
}
