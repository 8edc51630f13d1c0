// Package cose produces CTAP2-canonical CBOR for COSE public keys and
// attestation objects. The field layout follows
// tools/gen_webauthn_credential.buildCOSEPublicKey, generalized from a
// map[int]interface{} literal to a tagged struct encoded through
// fxamacker/cbor's CTAP2 canonical encoding mode, which sorts map/struct
// keys the same way CTAP2 requires (shortest encoded key first, then
// bytewise) — for the five fixed integer keys used here (1, 3, -1, -2, -3)
// that canonical sort already produces the required order, so no manual
// re-ordering is needed.
package cose

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/vaultkey/fido2-core/internal/fido2/crypto"
)

var (
	encModeOnce sync.Once
	encMode     cbor.EncMode
	encModeErr  error
)

func canonicalEncMode() (cbor.EncMode, error) {
	encModeOnce.Do(func() {
		encMode, encModeErr = cbor.CTAP2EncOptions().EncMode()
	})
	return encMode, encModeErr
}

// COSEKeyEC2P256 is the 5-entry COSE_Key map for an EC2/P-256/ES256 public
// key: kty=2 (EC2), alg=-7 (ES256), crv=1 (P-256), and the two 32-byte
// affine coordinates.
type COSEKeyEC2P256 struct {
	Kty int    `cbor:"1,keyasint"`
	Alg int    `cbor:"3,keyasint"`
	Crv int    `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

const (
	ktyEC2    = 2
	algES256  = -7
	crvP256   = 1
)

// EncodeCOSEKey CBOR-encodes a P-256 public key as an EC2/ES256 COSE_Key.
// X and Y must already be 32-byte, zero-padded (crypto.PublicKey guarantees
// this).
func EncodeCOSEKey(pub crypto.PublicKey) ([]byte, error) {
	if len(pub.X) != 32 || len(pub.Y) != 32 {
		return nil, errors.New("cose: X and Y must be exactly 32 bytes")
	}
	em, err := canonicalEncMode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build canonical CBOR encoder")
	}
	key := COSEKeyEC2P256{
		Kty: ktyEC2,
		Alg: algES256,
		Crv: crvP256,
		X:   pub.X,
		Y:   pub.Y,
	}
	out, err := em.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal COSE_Key")
	}
	return out, nil
}

// attestationObjectNone is the "none" attestation object: a
// 3-entry map in fmt/attStmt/authData order. Canonical CBOR key sort (by
// encoded length, then bytewise) already orders these three text keys the
// same way, since "fmt" (3 bytes) < "attStmt" (7 bytes) < "authData" (8
// bytes).
type attestationObjectNone struct {
	Fmt      string                 `cbor:"fmt"`
	AttStmt  map[string]interface{} `cbor:"attStmt"`
	AuthData []byte                 `cbor:"authData"`
}

// EncodeAttestationObjectNone builds the CTAP2-canonical CBOR attestation
// object for "none" attestation.
func EncodeAttestationObjectNone(authData []byte) ([]byte, error) {
	em, err := canonicalEncMode()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build canonical CBOR encoder")
	}
	obj := attestationObjectNone{
		Fmt:      "none",
		AttStmt:  map[string]interface{}{},
		AuthData: authData,
	}
	out, err := em.Marshal(obj)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal attestation object")
	}
	return out, nil
}
