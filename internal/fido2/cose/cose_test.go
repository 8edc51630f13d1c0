package cose

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkey/fido2-core/internal/fido2/crypto"
)

func TestEncodeCOSEKeyRejectsShortCoordinates(t *testing.T) {
	_, err := EncodeCOSEKey(crypto.PublicKey{X: []byte{1, 2, 3}, Y: make([]byte, 32)})
	assert.Error(t, err)
}

func TestEncodeCOSEKeyRoundTrips(t *testing.T) {
	x := make([]byte, 32)
	y := make([]byte, 32)
	for i := range x {
		x[i] = byte(i)
		y[i] = byte(31 - i)
	}

	out, err := EncodeCOSEKey(crypto.PublicKey{X: x, Y: y})
	require.NoError(t, err)

	var decoded map[int]interface{}
	require.NoError(t, cbor.Unmarshal(out, &decoded))
	assert.EqualValues(t, ktyEC2, decoded[1])
	assert.EqualValues(t, algES256, decoded[3])
	assert.EqualValues(t, crvP256, decoded[-1])
	assert.Equal(t, x, decoded[-2])
	assert.Equal(t, y, decoded[-3])
}

func TestEncodeCOSEKeyIsDeterministic(t *testing.T) {
	pub := crypto.PublicKey{X: make([]byte, 32), Y: make([]byte, 32)}
	a, err := EncodeCOSEKey(pub)
	require.NoError(t, err)
	b, err := EncodeCOSEKey(pub)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEncodeAttestationObjectNone(t *testing.T) {
	authData := []byte{0xde, 0xad, 0xbe, 0xef}
	out, err := EncodeAttestationObjectNone(authData)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, cbor.Unmarshal(out, &decoded))
	assert.Equal(t, "none", decoded["fmt"])
	assert.Equal(t, authData, decoded["authData"])
	attStmt, ok := decoded["attStmt"].(map[interface{}]interface{})
	require.True(t, ok)
	assert.Empty(t, attStmt)
}
