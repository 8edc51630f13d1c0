// Package authenticator implements the virtual CTAP2 authenticator layer:
// MakeCredential, GetAssertion, and SilentDiscovery. Its shape follows
// internal/infra/webauthn.Service's BeginRegistration/FinishRegistration/
// BeginLogin/FinishLogin split, generalized from a go-webauthn-backed
// relying-party service into a direct CTAP2 authenticator that owns key
// generation, attestation, and signing itself.
package authenticator

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaultkey/fido2-core/internal/fido2/authdata"
	"github.com/vaultkey/fido2-core/internal/fido2/cose"
	fcrypto "github.com/vaultkey/fido2-core/internal/fido2/crypto"
	"github.com/vaultkey/fido2-core/internal/fido2/fidoerr"
	"github.com/vaultkey/fido2-core/internal/fido2/store"
	"github.com/vaultkey/fido2-core/internal/i18nmsg"
)

// Authenticator is the virtual CTAP2 authenticator. UI is late-bound via
// WithUI after construction: the authenticator is built before the
// surrounding application has a live UI collaborator to hand it.
type Authenticator struct {
	vault store.Vault
	ui    store.UI
}

// New constructs an Authenticator without a UI collaborator attached.
func New(vault store.Vault) *Authenticator {
	return &Authenticator{vault: vault}
}

// WithUI returns an Authenticator ready to serve requests, binding ui as its
// user-interface collaborator. It does not mutate a.
func (a *Authenticator) WithUI(ui store.UI) *Authenticator {
	return &Authenticator{vault: a.vault, ui: ui}
}

// MakeCredentialParams are the inputs to MakeCredential.
type MakeCredentialParams struct {
	Hash                            [32]byte
	RP                              store.RPEntity
	User                            store.UserEntity
	CredTypesAndPubKeyAlgs          []store.PubKeyCredParam
	RequireResidentKey              bool
	RequireUserVerification         bool
	ExcludeCredentialDescriptorList []store.CredentialDescriptor
}

// MakeCredentialResult is returned by a successful MakeCredential.
type MakeCredentialResult struct {
	CredentialID        []byte // raw 16 bytes
	AttestationObject    []byte
	AuthData             []byte
	PublicKeySPKI        []byte
	PublicKeyAlgorithm   int
}

// MakeCredential registers a new credential.
func (a *Authenticator) MakeCredential(ctx context.Context, p MakeCredentialParams) (*MakeCredentialResult, error) {
	// Step 1: algorithm negotiation.
	if !hasES256(p.CredTypesAndPubKeyAlgs) {
		return nil, fidoerr.New(fidoerr.KindNotSupported, i18nmsg.MustText("NoSupportedAlgorithm", nil))
	}

	// Step 2: unlock. The authenticator does not sync; the client layer runs
	// FullSync before calling MakeCredential.
	if err := a.ui.EnsureUnlockedVault(ctx); err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to ensure vault unlocked", err)
	}

	// Step 3: exclude-list check.
	excludedIDs, err := decodeExcludeSet(p.ExcludeCredentialDescriptorList)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to decode exclude list", err)
	}
	if len(excludedIDs) > 0 {
		entries, err := a.vault.GetAllDecrypted(ctx)
		if err != nil {
			return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to enumerate vault entries", err)
		}
		var matched []string
		for _, e := range entries {
			if !eligibleFIDO2Entry(e) {
				continue
			}
			if _, ok := excludedIDs[e.FIDO2Credential.CredentialID]; ok {
				matched = append(matched, e.FIDO2Credential.CredentialID)
			}
		}
		if len(matched) > 0 {
			a.ui.InformExcludedCredential(ctx, matched)
			return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("ExcludedCredentialMatch", map[string]interface{}{"Count": len(matched)}))
		}
	}

	// Step 4: confirm + pick target entry.
	confirm, err := a.ui.ConfirmNewCredential(ctx, store.ConfirmNewCredentialRequest{
		CredentialName:   p.RP.Name,
		UserName:         p.User.Name,
		UserVerification: p.RequireUserVerification,
		RPID:             p.RP.ID,
	})
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "UI collaborator failed to confirm credential", err)
	}
	if confirm.CipherID == "" {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("UserCancelled", nil))
	}

	// Step 5: generate key pair + credential record.
	kp, err := fcrypto.GenerateP256KeyPair()
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to generate key pair", err)
	}
	credUUID := uuid.New()
	pkcs8, err := fcrypto.ExportPKCS8(kp.Private)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to export PKCS#8 key", err)
	}

	// Step 6: fetch + decrypt chosen entry, check UV policy.
	encEntry, err := a.vault.GetEncrypted(ctx, confirm.CipherID)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to fetch vault entry", err)
	}
	entry, err := a.vault.Decrypt(ctx, encEntry)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to decrypt vault entry", err)
	}
	if !confirm.UserVerified && (p.RequireUserVerification || entry.Reprompt != store.RepromptNone) {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("UserVerificationRequired", nil))
	}

	stored := newStoredCredential(credUUID, pkcs8, p)

	// Step 7: replace credential, re-encrypt, persist.
	entry.FIDO2Credential = stored
	encEntry, err = a.vault.Encrypt(ctx, entry)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to encrypt vault entry", err)
	}
	if err := a.vault.SaveWithServer(ctx, encEntry); err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to persist vault entry", err)
	}

	// Step 8: build authData.
	rawCredID := uuidToRaw(credUUID)
	authDataBytes, err := authdata.Build(authdata.Params{
		RPID: p.RP.ID,
		Flags: authdata.Flags{
			UserPresent:      true,
			UserVerified:     confirm.UserVerified,
			AttestedCredData: true,
		},
		SignCount: 0,
		AttestedCred: &authdata.AttestedCredentialData{
			CredentialID: rawCredID,
			PublicKey:    kp.Public,
		},
	})
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to build authenticator data", err)
	}
	attObj, err := buildAttestationObject(authDataBytes)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to build attestation object", err)
	}
	spki, err := fcrypto.ExportSPKI(kp.Private)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to export SPKI public key", err)
	}

	log.Info().Str("rp_id", p.RP.ID).Str("cipher_id", confirm.CipherID).Msg("fido2 credential registered")

	return &MakeCredentialResult{
		CredentialID:       rawCredID,
		AttestationObject:  attObj,
		AuthData:           authDataBytes,
		PublicKeySPKI:      spki,
		PublicKeyAlgorithm: store.ESAlgES256,
	}, nil
}

// GetAssertionParams are the inputs to GetAssertion.
type GetAssertionParams struct {
	RPID                          string
	Hash                          [32]byte
	AllowCredentialDescriptorList []store.CredentialDescriptor
	RequireUserPresence           bool
	RequireUserVerification       bool
}

// GetAssertionResult is returned by a successful GetAssertion.
type GetAssertionResult struct {
	SelectedCredentialID []byte // raw 16 bytes
	UserHandle           []byte
	AuthenticatorData    []byte
	Signature            []byte
}

// GetAssertion produces an assertion against an existing credential.
func (a *Authenticator) GetAssertion(ctx context.Context, p GetAssertionParams) (*GetAssertionResult, error) {
	// Step 1: unlock. The authenticator does not sync; the client layer runs
	// FullSync before calling GetAssertion.
	if err := a.ui.EnsureUnlockedVault(ctx); err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to ensure vault unlocked", err)
	}

	entries, err := a.vault.GetAllDecrypted(ctx)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to enumerate vault entries", err)
	}

	// Step 2: candidate selection.
	var candidates []store.Entry
	allowListNonEmpty := len(p.AllowCredentialDescriptorList) > 0
	if allowListNonEmpty {
		allowSet, err := decodeExcludeSet(p.AllowCredentialDescriptorList)
		if err != nil {
			return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to decode allow list", err)
		}
		for _, e := range entries {
			if e.Deleted || e.Type != store.EntryTypeLogin || e.FIDO2Credential == nil {
				continue
			}
			if e.FIDO2Credential.RPID != p.RPID {
				continue
			}
			if _, ok := allowSet[e.FIDO2Credential.CredentialID]; ok {
				candidates = append(candidates, e)
			}
		}
	} else {
		for _, e := range entries {
			if e.Deleted || e.Type != store.EntryTypeLogin || e.FIDO2Credential == nil {
				continue
			}
			if e.FIDO2Credential.RPID == p.RPID && e.FIDO2Credential.Discoverable {
				candidates = append(candidates, e)
			}
		}
	}

	// Step 3.
	if len(candidates) == 0 {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("NoMatchingCredential", nil))
	}

	// Step 4: selection policy.
	var cipherID string
	var userVerified, userPresence bool
	if allowListNonEmpty && len(p.AllowCredentialDescriptorList) == 1 && !p.RequireUserPresence {
		cipherID = candidates[0].ID
		userVerified = false
		userPresence = false
	} else {
		ids := make([]string, 0, len(candidates))
		for _, e := range candidates {
			ids = append(ids, e.ID)
		}
		pick, err := a.ui.PickCredential(ctx, store.PickCredentialRequest{
			CipherIDs:        ids,
			UserVerification: p.RequireUserVerification,
		})
		if err != nil {
			return nil, fidoerr.Wrap(fidoerr.KindUnknown, "UI collaborator failed to pick credential", err)
		}
		if pick.CipherID == "" {
			return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("UserCancelled", nil))
		}
		cipherID = pick.CipherID
		userVerified = pick.UserVerified
		userPresence = true
	}

	// Step 5.
	var selected *store.Entry
	for i := range candidates {
		if candidates[i].ID == cipherID {
			selected = &candidates[i]
			break
		}
	}
	if selected == nil {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("SelectedNotInCandidates", nil))
	}

	// Step 6.
	if !userPresence && p.RequireUserPresence {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("UserPresenceRequired", nil))
	}

	// Step 7.
	if !userVerified && (p.RequireUserVerification || selected.Reprompt != store.RepromptNone) {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("UserVerificationRequired", nil))
	}

	cred := selected.FIDO2Credential

	// Step 8: counter bump, persist before signing.
	newCounter := cred.Counter
	if cred.Counter != 0 {
		newCounter = cred.Counter + 1
	}
	cred.Counter = newCounter
	encEntry, err := a.vault.Encrypt(ctx, *selected)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to encrypt vault entry", err)
	}
	if err := a.vault.SaveWithServer(ctx, encEntry); err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to persist vault entry", err)
	}
	if err := a.vault.UpdateLastUsedDate(ctx, selected.ID); err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to update last-used date", err)
	}

	// Step 9: build authData.
	authDataBytes, err := authdata.Build(authdata.Params{
		RPID: p.RPID,
		Flags: authdata.Flags{
			UserPresent:  userPresence,
			UserVerified: userVerified,
		},
		SignCount: newCounter,
	})
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to build authenticator data", err)
	}

	// Step 10: sign.
	priv, err := importStoredKey(cred)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to import stored private key", err)
	}
	signed := make([]byte, 0, len(authDataBytes)+32)
	signed = append(signed, authDataBytes...)
	signed = append(signed, p.Hash[:]...)
	signature, err := fcrypto.SignES256(priv, signed)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to sign assertion", err)
	}

	rawCredID, err := uuidRaw(cred.CredentialID)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to decode stored credential id", err)
	}
	userHandle, err := b64Decode(cred.UserHandleB64)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to decode stored user handle", err)
	}

	log.Info().Str("rp_id", p.RPID).Uint32("counter", newCounter).Msg("fido2 assertion produced")

	return &GetAssertionResult{
		SelectedCredentialID: rawCredID,
		UserHandle:           userHandle,
		AuthenticatorData:    authDataBytes,
		Signature:            signature,
	}, nil
}

// DiscoveredCredential is one entry of SilentDiscovery's result.
type DiscoveredCredential struct {
	Type       string
	ID         []byte // raw
	RPID       string
	UserHandle []byte
	UserName   string
}

// SilentDiscovery returns the discoverable credentials for rpID without any
// UI interaction or mutation.
func (a *Authenticator) SilentDiscovery(ctx context.Context, rpID string) ([]DiscoveredCredential, error) {
	entries, err := a.vault.GetAllDecrypted(ctx)
	if err != nil {
		return nil, fidoerr.Wrap(fidoerr.KindUnknown, "failed to enumerate vault entries", err)
	}
	var out []DiscoveredCredential
	for _, e := range entries {
		if e.Deleted || e.Type != store.EntryTypeLogin || e.FIDO2Credential == nil {
			continue
		}
		cred := e.FIDO2Credential
		if cred.RPID != rpID || !cred.Discoverable {
			continue
		}
		raw, err := uuidRaw(cred.CredentialID)
		if err != nil {
			continue
		}
		handle, err := b64Decode(cred.UserHandleB64)
		if err != nil {
			continue
		}
		out = append(out, DiscoveredCredential{
			Type:       "public-key",
			ID:         raw,
			RPID:       cred.RPID,
			UserHandle: handle,
			UserName:   cred.UserName,
		})
	}
	return out, nil
}

func hasES256(params []store.PubKeyCredParam) bool {
	for _, p := range params {
		if p.Alg == store.ESAlgES256 {
			return true
		}
	}
	return false
}

func eligibleFIDO2Entry(e store.Entry) bool {
	return !e.Deleted && e.OrganizationID == nil && e.Type == store.EntryTypeLogin && e.FIDO2Credential != nil
}

func decodeExcludeSet(descs []store.CredentialDescriptor) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(descs))
	for _, d := range descs {
		u, err := uuid.FromBytes(d.ID)
		if err != nil {
			return nil, err
		}
		out[u.String()] = struct{}{}
	}
	return out, nil
}

func newStoredCredential(id uuid.UUID, pkcs8 []byte, p MakeCredentialParams) *store.StoredCredential {
	return &store.StoredCredential{
		CredentialID:     id.String(),
		KeyType:          "public-key",
		KeyAlgorithm:     "ECDSA",
		KeyCurve:         "P-256",
		KeyValuePKCS8B64: b64Encode(pkcs8),
		RPID:             p.RP.ID,
		RPName:           p.RP.Name,
		UserHandleB64:    b64Encode(p.User.ID),
		UserName:         p.User.Name,
		UserDisplayName:  p.User.DisplayName,
		Counter:          0,
		Discoverable:     p.RequireResidentKey,
	}
}

func uuidToRaw(id uuid.UUID) []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

func uuidRaw(text string) ([]byte, error) {
	u, err := uuid.Parse(text)
	if err != nil {
		return nil, err
	}
	return uuidToRaw(u), nil
}

func importStoredKey(cred *store.StoredCredential) (*ecdsa.PrivateKey, error) {
	der, err := b64Decode(cred.KeyValuePKCS8B64)
	if err != nil {
		return nil, err
	}
	priv, err := fcrypto.ImportPKCS8(der)
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func buildAttestationObject(authData []byte) ([]byte, error) {
	return cose.EncodeAttestationObjectNone(authData)
}

func b64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
