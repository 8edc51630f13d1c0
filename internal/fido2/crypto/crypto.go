// Package crypto implements the crypto primitives the authenticator layer
// needs: SHA-256, P-256 key generation, PKCS#8/SPKI (de)serialization,
// and DER-encoded ECDSA signing. The approach (raw crypto/ecdsa +
// crypto/elliptic + encoding/asn1, rather than a higher-level WebAuthn
// library) follows tools/gen_webauthn_credential's own credential-generation
// code, which builds these structures by hand for the same reason this
// package does: producing byte-exact CTAP2 output.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"math/big"

	"github.com/pkg/errors"
)

// SHA256 hashes data, as used for rpIdHash, clientDataHash, and the message
// digest fed into SignES256.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// PublicKey is the affine coordinates of a P-256 public key, always exactly
// 32 bytes each, left-padded with zeros.
type PublicKey struct {
	X, Y []byte
}

// KeyPair is a generated P-256 credential key pair.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	Public  PublicKey
}

// GenerateP256KeyPair creates a fresh ECDSA P-256 key pair.
func GenerateP256KeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate P-256 key")
	}
	return &KeyPair{
		Private: priv,
		Public:  publicKeyOf(priv),
	}, nil
}

// publicKeyOf extracts X/Y as fixed-width, zero-padded 32-byte slices.
func publicKeyOf(priv *ecdsa.PrivateKey) PublicKey {
	return PublicKey{
		X: leftPad32(priv.PublicKey.X.Bytes()),
		Y: leftPad32(priv.PublicKey.Y.Bytes()),
	}
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// ExportPKCS8 encodes a private key as PKCS#8 DER, the form persisted as
// StoredCredential.KeyValuePKCS8B64.
func ExportPKCS8(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal PKCS#8 private key")
	}
	return der, nil
}

// ImportPKCS8 decodes a PKCS#8 DER private key previously produced by
// ExportPKCS8.
func ImportPKCS8(der []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse PKCS#8 private key")
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("PKCS#8 key is not an ECDSA private key")
	}
	return priv, nil
}

// ExportSPKI encodes the public half of priv as SPKI DER, the form returned
// to callers as MakeCredential's publicKey.
func ExportSPKI(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal SPKI public key")
	}
	return der, nil
}

// derSignature mirrors the ASN.1 structure tools/gen_passkey_test_data's own
// signMessage produces via encoding/asn1: a SEQUENCE of two INTEGERs.
// encoding/asn1 already emits minimal-length, correctly zero-padded DER
// INTEGERs for big.Int, so no extra massaging is needed.
type derSignature struct {
	R, S *big.Int
}

// SignES256 signs SHA256(message) with priv and returns the signature as
// ASN.1 DER SEQUENCE{r,s}.
func SignES256(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign with ECDSA P-256")
	}
	der, err := asn1.Marshal(derSignature{R: r, S: s})
	if err != nil {
		return nil, errors.Wrap(err, "failed to DER-encode ECDSA signature")
	}
	return der, nil
}

// VerifyES256 verifies a DER signature produced by SignES256 against an SPKI
// public key.
func VerifyES256(spkiDER []byte, message, signature []byte) (bool, error) {
	pub, err := x509.ParsePKIXPublicKey(spkiDER)
	if err != nil {
		return false, errors.Wrap(err, "failed to parse SPKI public key")
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return false, errors.New("SPKI key is not an ECDSA public key")
	}
	var sig derSignature
	if _, err := asn1.Unmarshal(signature, &sig); err != nil {
		return false, errors.Wrap(err, "failed to parse DER signature")
	}
	digest := sha256.Sum256(message)
	return ecdsa.Verify(ecPub, digest[:], sig.R, sig.S), nil
}
