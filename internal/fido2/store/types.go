// Package store defines the data model shared between the authenticator
// layer and its vault collaborator, plus the collaborator
// interfaces the authenticator and client layers consume (collab.go).
package store

import "time"

// RPEntity identifies the relying party requesting or verifying a
// credential. ID must be a registrable suffix of the caller's origin host.
type RPEntity struct {
	ID   string
	Name string
}

// UserEntity identifies the account a credential is bound to. ID length
// must be in [1,64] bytes.
type UserEntity struct {
	ID          []byte
	Name        string
	DisplayName string
}

// PubKeyCredParam is one entry of credTypesAndPubKeyAlgs / pubKeyCredParams.
// Only Alg == ESAlgES256 is ever satisfiable by this authenticator.
type PubKeyCredParam struct {
	Type string
	Alg  int
}

// ESAlgES256 is the COSE algorithm identifier for ECDSA P-256 with SHA-256
// (alg -7), the only algorithm this authenticator supports.
const ESAlgES256 = -7

// ESAlgRS256 is the COSE algorithm identifier for RSASSA-PKCS1-v1_5 with
// SHA-256 (alg -257); referenced only in client-side default parameter
// lists, the authenticator never accepts it.
const ESAlgRS256 = -257

// CredentialDescriptor names a credential by raw ID, as used in exclude and
// allow lists.
type CredentialDescriptor struct {
	Type       string
	ID         []byte
	Transports []string
}

// Reprompt controls whether GetAssertion/MakeCredential must re-confirm user
// verification for a given vault entry regardless of the caller's policy.
type Reprompt int

const (
	RepromptNone Reprompt = iota
	RepromptPassword
)

// StoredCredential is the FIDO2 credential persisted inside a vault entry,
// encrypted by the vault collaborator. At most one exists per entry.
type StoredCredential struct {
	CredentialID      string // canonical textual UUID
	KeyType           string // always "public-key"
	KeyAlgorithm      string // always "ECDSA"
	KeyCurve          string // always "P-256"
	KeyValuePKCS8B64  string // base64url(PKCS#8 private key)
	RPID              string
	RPName            string
	UserHandleB64     string // base64url(user.id)
	UserName          string
	UserDisplayName   string
	Counter           uint32
	Discoverable      bool
	CreationDate      time.Time
}

// EntryType distinguishes vault entry kinds; only login-typed entries may
// carry a FIDO2 credential.
type EntryType int

const (
	EntryTypeLogin EntryType = iota
	EntryTypeOther
)

// Entry is a decrypted vault entry (a "cipher" in the surrounding password
// manager's vocabulary). OrganizationID is non-nil when the entry is shared
// through an organization; such entries are never eligible for exclude-list
// matching.
type Entry struct {
	ID             string
	Deleted        bool
	OrganizationID *string
	Type           EntryType
	Username       string
	Reprompt       Reprompt
	LastUsedDate   time.Time
	FIDO2Credential *StoredCredential
}

// EncryptedEntry is the opaque, vault-encrypted form of an Entry. The core
// never inspects its bytes directly; only Vault.Decrypt/Encrypt do.
type EncryptedEntry struct {
	CipherID string
	Blob     []byte
}
