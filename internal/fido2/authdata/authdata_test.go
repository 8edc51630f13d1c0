package authdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkey/fido2-core/internal/fido2/crypto"
)

func TestBuildAssertionLayout(t *testing.T) {
	out, err := Build(Params{
		RPID:      "example.com",
		Flags:     Flags{UserPresent: true, UserVerified: true},
		SignCount: 7,
	})
	require.NoError(t, err)
	require.Len(t, out, 37)

	wantHash := RPIDHash("example.com")
	assert.Equal(t, wantHash[:], out[:32])

	flags := out[32]
	assert.NotZero(t, flags&(1<<0), "UP should be set")
	assert.NotZero(t, flags&(1<<2), "UV should be set")
	assert.NotZero(t, flags&(1<<3), "BE is always set")
	assert.NotZero(t, flags&(1<<4), "BS is always set")
	assert.Zero(t, flags&(1<<6), "AT must be unset without attested credential data")
	assert.Zero(t, flags&(1<<7), "ED is always unset")

	counter := uint32(out[33])<<24 | uint32(out[34])<<16 | uint32(out[35])<<8 | uint32(out[36])
	assert.Equal(t, uint32(7), counter)
}

func TestBuildRegistrationLayoutIncludesAttestedCredentialData(t *testing.T) {
	credID := []byte{1, 2, 3, 4}
	pub := crypto.PublicKey{X: make([]byte, 32), Y: make([]byte, 32)}

	out, err := Build(Params{
		RPID:      "example.com",
		Flags:     Flags{UserPresent: true, AttestedCredData: true},
		SignCount: 0,
		AttestedCred: &AttestedCredentialData{
			CredentialID: credID,
			PublicKey:    pub,
		},
	})
	require.NoError(t, err)

	flags := out[32]
	assert.NotZero(t, flags&(1<<6), "AT should be set")

	aaguidStart := 37
	assert.Equal(t, AAGUID[:], out[aaguidStart:aaguidStart+16])

	credIDLenStart := aaguidStart + 16
	credIDLen := uint16(out[credIDLenStart])<<8 | uint16(out[credIDLenStart+1])
	assert.EqualValues(t, len(credID), credIDLen)

	credIDStart := credIDLenStart + 2
	assert.Equal(t, credID, out[credIDStart:credIDStart+len(credID)])
	assert.Greater(t, len(out), credIDStart+len(credID), "COSE key bytes should follow the credential ID")
}

func TestBuildRejectsATWithoutAttestedCredentialData(t *testing.T) {
	_, err := Build(Params{RPID: "example.com", Flags: Flags{AttestedCredData: true}})
	assert.Error(t, err)
}

func TestBuildRejectsAttestedCredentialDataWithoutAT(t *testing.T) {
	_, err := Build(Params{
		RPID:  "example.com",
		Flags: Flags{},
		AttestedCred: &AttestedCredentialData{
			CredentialID: []byte{1},
			PublicKey:    crypto.PublicKey{X: make([]byte, 32), Y: make([]byte, 32)},
		},
	})
	assert.Error(t, err)
}

func TestRPIDHashDiffersByRPID(t *testing.T) {
	a := RPIDHash("example.com")
	b := RPIDHash("other.example.com")
	assert.NotEqual(t, a, b)
}
