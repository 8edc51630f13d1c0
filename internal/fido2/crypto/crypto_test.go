package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256(t *testing.T) {
	h1 := SHA256([]byte("hello"))
	h2 := SHA256([]byte("hello"))
	h3 := SHA256([]byte("world"))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestGenerateP256KeyPairProducesFixedWidthCoordinates(t *testing.T) {
	kp, err := GenerateP256KeyPair()
	require.NoError(t, err)
	assert.Len(t, kp.Public.X, 32)
	assert.Len(t, kp.Public.Y, 32)
}

func TestPKCS8RoundTrip(t *testing.T) {
	kp, err := GenerateP256KeyPair()
	require.NoError(t, err)

	der, err := ExportPKCS8(kp.Private)
	require.NoError(t, err)

	imported, err := ImportPKCS8(der)
	require.NoError(t, err)
	assert.Equal(t, kp.Private.D, imported.D)
	assert.True(t, kp.Private.PublicKey.Equal(&imported.PublicKey))
}

func TestImportPKCS8RejectsGarbage(t *testing.T) {
	_, err := ImportPKCS8([]byte("not a key"))
	assert.Error(t, err)
}

func TestSignAndVerifyES256RoundTrip(t *testing.T) {
	kp, err := GenerateP256KeyPair()
	require.NoError(t, err)
	spki, err := ExportSPKI(kp.Private)
	require.NoError(t, err)

	message := []byte("authenticator data || client data hash")
	sig, err := SignES256(kp.Private, message)
	require.NoError(t, err)

	ok, err := VerifyES256(spki, message, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyES256RejectsTamperedMessage(t *testing.T) {
	kp, err := GenerateP256KeyPair()
	require.NoError(t, err)
	spki, err := ExportSPKI(kp.Private)
	require.NoError(t, err)

	sig, err := SignES256(kp.Private, []byte("original"))
	require.NoError(t, err)

	ok, err := VerifyES256(spki, []byte("tampered"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyES256RejectsWrongKey(t *testing.T) {
	signer, err := GenerateP256KeyPair()
	require.NoError(t, err)
	other, err := GenerateP256KeyPair()
	require.NoError(t, err)
	otherSPKI, err := ExportSPKI(other.Private)
	require.NoError(t, err)

	sig, err := SignES256(signer.Private, []byte("message"))
	require.NoError(t, err)

	ok, err := VerifyES256(otherSPKI, []byte("message"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}
