package memvault

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkey/fido2-core/internal/fido2/store"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)

	entry := store.Entry{Type: store.EntryTypeLogin, Username: "alice@example.com"}
	enc, err := v.Encrypt(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, enc.CipherID)

	decrypted, err := v.Decrypt(context.Background(), enc)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", decrypted.Username)
	assert.Equal(t, enc.CipherID, decrypted.ID)
}

func TestSeedAndGetAllDecrypted(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)

	id, err := v.Seed(store.Entry{Type: store.EntryTypeLogin, Username: "bob@example.com"})
	require.NoError(t, err)

	entries, err := v.GetAllDecrypted(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "bob@example.com", entries[0].Username)
}

func TestGetEncryptedUnknownCipherIDFails(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)
	_, err = v.GetEncrypted(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)

	enc, err := v.Encrypt(context.Background(), store.Entry{Type: store.EntryTypeLogin})
	require.NoError(t, err)
	enc.Blob[len(enc.Blob)-1] ^= 0xff

	_, err = v.Decrypt(context.Background(), enc)
	assert.Error(t, err)
}

func TestConfirmAndPickCredentialReturnScriptedValues(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)
	v.ConfirmCipherID = "cipher-1"
	v.ConfirmUV = true
	v.PickCipherID = "cipher-2"
	v.PickUV = true

	confirm, err := v.ConfirmNewCredential(context.Background(), store.ConfirmNewCredentialRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cipher-1", confirm.CipherID)
	assert.True(t, confirm.UserVerified)

	pick, err := v.PickCredential(context.Background(), store.PickCredentialRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cipher-2", pick.CipherID)
	assert.True(t, pick.UserVerified)
}

func TestBlockAddsToAutofillBlocklist(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)
	v.Block("evil.example.com")

	blocklist, err := v.AutofillBlocklistedHosts(context.Background())
	require.NoError(t, err)
	_, blocked := blocklist["evil.example.com"]
	assert.True(t, blocked)
}

func TestSetAuthenticated(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)

	authed, err := v.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, authed, "New defaults to authenticated")

	v.SetAuthenticated(false)
	authed, err = v.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, authed)
}

func TestExportLoadStatePreservesEntries(t *testing.T) {
	v, err := New("https://vault.example.com")
	require.NoError(t, err)
	id, err := v.Seed(store.Entry{Type: store.EntryTypeLogin, Username: "carol@example.com"})
	require.NoError(t, err)

	state := v.ExportState()
	loaded, err := LoadState("https://vault.example.com", state)
	require.NoError(t, err)

	entries, err := loaded.GetAllDecrypted(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "carol@example.com", entries[0].Username)
}
