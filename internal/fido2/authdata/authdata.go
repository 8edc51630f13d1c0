// Package authdata assembles the authenticator-data byte layout:
// rpIdHash(32) || flags(1) || signCount(4, big-endian) ||
// [attestedCredentialData] || [extensions]. The layout mirrors the
// hand-built buffer in tools/gen_webauthn_credential's
// generateRegistrationResponse/generateLoginResponse, generalized into a
// single builder shared by registration and assertion.
package authdata

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/vaultkey/fido2-core/internal/fido2/cose"
	"github.com/vaultkey/fido2-core/internal/fido2/crypto"
)

// AAGUID is the fixed authenticator model identifier this virtual
// authenticator reports. It is never randomized: every credential
// this core creates is attested to come from the same "device".
var AAGUID = [16]byte{0xd5, 0x48, 0x82, 0x6e, 0x79, 0xb4, 0xdb, 0x40, 0xa3, 0xd8, 0x11, 0x11, 0x6f, 0x7e, 0x83, 0x49}

// Flags are the authenticator-data flag bits. Bit numbering matches the
// WebAuthn standard, not gen_webauthn_credential's original buggy constant
// for ED: ED lives at bit 7 (0x80) here, never bit 6, which is reserved for
// AT.
type Flags struct {
	UserPresent     bool // bit 0
	UserVerified    bool // bit 2
	BackupEligible  bool // bit 3, always true
	BackupState     bool // bit 4, always true
	AttestedCredData bool // bit 6, only set during MakeCredential
	ExtensionData   bool // bit 7, always false: no extensions are emitted
}

func (f Flags) byte() byte {
	var b byte
	if f.UserPresent {
		b |= 1 << 0
	}
	if f.UserVerified {
		b |= 1 << 2
	}
	if f.BackupEligible {
		b |= 1 << 3
	}
	if f.BackupState {
		b |= 1 << 4
	}
	if f.AttestedCredData {
		b |= 1 << 6
	}
	if f.ExtensionData {
		b |= 1 << 7
	}
	return b
}

// AttestedCredentialData is present iff Flags.AttestedCredData is set, i.e.
// only during MakeCredential.
type AttestedCredentialData struct {
	CredentialID []byte
	PublicKey    crypto.PublicKey
}

// Params carries everything needed to build one authenticator-data blob.
type Params struct {
	RPID         string
	Flags        Flags
	SignCount    uint32
	AttestedCred *AttestedCredentialData // nil unless Flags.AttestedCredData
}

// Build assembles the authenticator-data bytes. BackupEligible and
// BackupState are forced to true regardless of the caller, and ExtensionData
// is forced to false (no extensions are ever emitted).
func Build(p Params) ([]byte, error) {
	p.Flags.BackupEligible = true
	p.Flags.BackupState = true
	p.Flags.ExtensionData = false

	if p.Flags.AttestedCredData && p.AttestedCred == nil {
		return nil, errors.New("authdata: AT flag set without attested credential data")
	}
	if !p.Flags.AttestedCredData && p.AttestedCred != nil {
		return nil, errors.New("authdata: attested credential data supplied without AT flag")
	}

	rpIDHash := crypto.SHA256([]byte(p.RPID))

	size := 32 + 1 + 4
	var coseKey []byte
	var err error
	if p.AttestedCred != nil {
		coseKey, err = cose.EncodeCOSEKey(p.AttestedCred.PublicKey)
		if err != nil {
			return nil, errors.Wrap(err, "authdata: failed to encode COSE key")
		}
		size += 16 + 2 + len(p.AttestedCred.CredentialID) + len(coseKey)
	}

	out := make([]byte, 0, size)
	out = append(out, rpIDHash[:]...)
	out = append(out, p.Flags.byte())

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], p.SignCount)
	out = append(out, countBuf[:]...)

	if p.AttestedCred != nil {
		out = append(out, AAGUID[:]...)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(p.AttestedCred.CredentialID)))
		out = append(out, lenBuf[:]...)
		out = append(out, p.AttestedCred.CredentialID...)
		out = append(out, coseKey...)
	}

	return out, nil
}

// RPIDHash returns SHA256(utf8(rpID)), exposed for tests.
func RPIDHash(rpID string) [32]byte {
	return crypto.SHA256([]byte(rpID))
}
