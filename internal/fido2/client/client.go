// Package client implements the WebAuthn client layer: common guards,
// client-data assembly, algorithm negotiation/defaulting, and dispatch to the
// authenticator layer. It follows the same "caller drives a two-step
// ceremony" shape as cmd/test-client/webauthn_client.go's
// TestWebAuthnRegistration/TestWebAuthnLogin, generalized from an HTTP test
// harness into the in-process client a relying party (browser or platform)
// actually calls.
package client

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vaultkey/fido2-core/internal/fido2/authenticator"
	fcrypto "github.com/vaultkey/fido2-core/internal/fido2/crypto"
	"github.com/vaultkey/fido2-core/internal/fido2/fidoerr"
	"github.com/vaultkey/fido2-core/internal/fido2/rpid"
	"github.com/vaultkey/fido2-core/internal/fido2/store"
	"github.com/vaultkey/fido2-core/internal/i18nmsg"
)

// Client is the WebAuthn client layer.
type Client struct {
	auth  *authenticator.Authenticator
	state store.State
	env   store.Environment
	sync  store.Sync
}

// New constructs a Client over the given authenticator and ambient
// collaborators.
func New(auth *authenticator.Authenticator, state store.State, env store.Environment, sync store.Sync) *Client {
	return &Client{auth: auth, state: state, env: env, sync: sync}
}

// CreateCredentialParams are the caller-supplied inputs to CreateCredential.
type CreateCredentialParams struct {
	Origin                  string
	SameOriginWithAncestors bool
	Challenge               []byte
	RP                      store.RPEntity
	User                    store.UserEntity
	PubKeyCredParams        []store.PubKeyCredParam
	ResidentKey             string // "", "required", "preferred", "discouraged"
	RequireResidentKey      bool   // legacy flag consulted when ResidentKey == ""
	UserVerification        string // "", "required", "preferred", "discouraged"
	ExcludeCredentials      []store.CredentialDescriptor
}

// CreateCredentialResult is returned by a successful CreateCredential.
type CreateCredentialResult struct {
	CredentialID       []byte
	AttestationObject  []byte
	AuthData           []byte
	ClientDataJSON     []byte
	PublicKey          []byte
	PublicKeyAlgorithm int
	Transports         []string
}

// CreateCredential runs a registration ceremony.
func (c *Client) CreateCredential(ctx context.Context, p CreateCredentialParams) (*CreateCredentialResult, error) {
	if err := c.commonGuards(ctx, p.Origin); err != nil {
		return nil, err
	}

	if !p.SameOriginWithAncestors {
		return nil, fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("CrossOriginAncestors", nil))
	}
	if len(p.User.ID) < 1 || len(p.User.ID) > 64 {
		return nil, fidoerr.New(fidoerr.KindTypeError, i18nmsg.MustText("UserIDLength", map[string]interface{}{"Length": len(p.User.ID)}))
	}
	if !strings.HasPrefix(p.Origin, "https://") {
		return nil, fidoerr.New(fidoerr.KindSecurity, i18nmsg.MustText("NonHTTPSOrigin", nil))
	}
	host := originHost(p.Origin)
	if !rpid.IsValid(p.RP.ID, p.Origin) {
		return nil, fidoerr.New(fidoerr.KindSecurity, i18nmsg.MustText("InvalidRPID", map[string]interface{}{"RPID": p.RP.ID, "Host": host}))
	}

	algs := filterSupportedAlgs(p.PubKeyCredParams)
	if len(algs) == 0 {
		return nil, fidoerr.New(fidoerr.KindNotSupported, i18nmsg.MustText("NoSupportedAlgorithm", nil))
	}

	requireResidentKey := residentKeyPolicy(p.ResidentKey, p.RequireResidentKey)
	requireUV := userVerificationPolicy(p.UserVerification)

	cdj := clientDataJSON("webauthn.create", p.Challenge, p.Origin, !p.SameOriginWithAncestors)
	hash := fcrypto.SHA256(cdj)

	if err := c.sync.FullSync(ctx, false); err != nil {
		log.Warn().Err(err).Msg("fido2 client: full sync before registration failed")
	}

	res, err := c.auth.MakeCredential(ctx, authenticator.MakeCredentialParams{
		Hash:                            hash,
		RP:                              p.RP,
		User:                            p.User,
		CredTypesAndPubKeyAlgs:          algs,
		RequireResidentKey:              requireResidentKey,
		RequireUserVerification:         requireUV,
		ExcludeCredentialDescriptorList: p.ExcludeCredentials,
	})
	if err != nil {
		return nil, remapAuthenticatorError(err)
	}

	return &CreateCredentialResult{
		CredentialID:       res.CredentialID,
		AttestationObject:  res.AttestationObject,
		AuthData:           res.AuthData,
		ClientDataJSON:     cdj,
		PublicKey:          res.PublicKeySPKI,
		PublicKeyAlgorithm: res.PublicKeyAlgorithm,
		Transports:         transportsFor(p.RP.ID),
	}, nil
}

// AssertCredentialParams are the caller-supplied inputs to AssertCredential.
type AssertCredentialParams struct {
	Origin                  string
	SameOriginWithAncestors bool
	Challenge               []byte
	RPID                    string
	AllowCredentials        []store.CredentialDescriptor
	UserVerification        string // "", "required", "preferred", "discouraged"
	RequireUserPresence     bool
}

// AssertCredentialResult is returned by a successful AssertCredential.
type AssertCredentialResult struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	ID                string // base64url(rawId)
	RawID             []byte
	Signature         []byte
	UserHandle        []byte
}

// AssertCredential runs an authentication ceremony.
func (c *Client) AssertCredential(ctx context.Context, p AssertCredentialParams) (*AssertCredentialResult, error) {
	if err := c.commonGuards(ctx, p.Origin); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(p.Origin, "https://") {
		return nil, fidoerr.New(fidoerr.KindSecurity, i18nmsg.MustText("NonHTTPSOrigin", nil))
	}
	host := originHost(p.Origin)
	if !rpid.IsValid(p.RPID, p.Origin) {
		return nil, fidoerr.New(fidoerr.KindSecurity, i18nmsg.MustText("InvalidRPID", map[string]interface{}{"RPID": p.RPID, "Host": host}))
	}

	requireUV := userVerificationPolicy(p.UserVerification)

	cdj := clientDataJSON("webauthn.get", p.Challenge, p.Origin, !p.SameOriginWithAncestors)
	hash := fcrypto.SHA256(cdj)

	if err := c.sync.FullSync(ctx, false); err != nil {
		log.Warn().Err(err).Msg("fido2 client: full sync before assertion failed")
	}

	res, err := c.auth.GetAssertion(ctx, authenticator.GetAssertionParams{
		RPID:                          p.RPID,
		Hash:                          hash,
		AllowCredentialDescriptorList: p.AllowCredentials,
		RequireUserPresence:           p.RequireUserPresence,
		RequireUserVerification:       requireUV,
	})
	if err != nil {
		return nil, remapAuthenticatorError(err)
	}

	return &AssertCredentialResult{
		AuthenticatorData: res.AuthenticatorData,
		ClientDataJSON:    cdj,
		ID:                base64RawURL(res.SelectedCredentialID),
		RawID:             res.SelectedCredentialID,
		Signature:         res.Signature,
		UserHandle:        res.UserHandle,
	}, nil
}

// commonGuards applies the guards common to both ceremonies, in order
// (first failure wins): blocklist, authentication, self-save.
func (c *Client) commonGuards(ctx context.Context, origin string) error {
	blocklist, err := c.state.AutofillBlocklistedHosts(ctx)
	if err != nil {
		return fidoerr.Wrap(fidoerr.KindUnknown, "failed to load autofill blocklist", err)
	}
	if _, blocked := blocklist[originHost(origin)]; blocked {
		return fidoerr.New(fidoerr.KindUriBlocked, i18nmsg.MustText("OriginBlocked", nil))
	}

	authed, err := c.state.IsAuthenticated(ctx)
	if err != nil {
		return fidoerr.Wrap(fidoerr.KindUnknown, "failed to check authentication state", err)
	}
	if !authed {
		return fidoerr.New(fidoerr.KindInvalidState, i18nmsg.MustText("NotAuthenticated", nil))
	}

	webVaultURL, err := c.env.WebVaultURL(ctx)
	if err != nil {
		return fidoerr.Wrap(fidoerr.KindUnknown, "failed to load web vault URL", err)
	}
	if origin == webVaultURL {
		return fidoerr.New(fidoerr.KindNotAllowed, i18nmsg.MustText("SelfRegistration", nil))
	}
	return nil
}

// remapAuthenticatorError re-raises InvalidState, NotAllowed, and
// NotSupported verbatim and maps everything else from the authenticator
// layer to Unknown; the client's own UriBlocked/Security/TypeError guards
// above never pass through here since they return before the authenticator
// is ever invoked.
func remapAuthenticatorError(err error) error {
	fe := fidoerr.AsUnknown(err)
	if fe.Kind == fidoerr.KindInvalidState {
		return fe
	}
	if fe.Kind == fidoerr.KindNotAllowed || fe.Kind == fidoerr.KindNotSupported {
		return fe
	}
	return fidoerr.Wrap(fidoerr.KindUnknown, "authenticator layer failed", fe)
}

func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func filterSupportedAlgs(params []store.PubKeyCredParam) []store.PubKeyCredParam {
	if len(params) == 0 {
		params = []store.PubKeyCredParam{
			{Type: "public-key", Alg: store.ESAlgES256},
			{Type: "public-key", Alg: store.ESAlgRS256},
		}
	}
	var out []store.PubKeyCredParam
	for _, p := range params {
		if p.Type == "public-key" && p.Alg == store.ESAlgES256 {
			out = append(out, p)
		}
	}
	return out
}

func residentKeyPolicy(residentKey string, legacyRequire bool) bool {
	switch residentKey {
	case "required", "preferred":
		return true
	case "discouraged":
		return false
	default:
		return legacyRequire
	}
}

func userVerificationPolicy(uv string) bool {
	switch uv {
	case "required", "preferred", "":
		return true
	default:
		return false
	}
}

func transportsFor(rpID string) []string {
	if rpID == "google.com" {
		return []string{"internal", "usb"}
	}
	return []string{"internal"}
}

func base64RawURL(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
