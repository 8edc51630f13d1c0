package main

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaultkey/fido2-core/internal/fido2/authenticator"
	"github.com/vaultkey/fido2-core/internal/fido2/client"
	"github.com/vaultkey/fido2-core/internal/fido2/store"
	"github.com/vaultkey/fido2-core/internal/memvault"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the demo relying-party HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg Config) error {
	e := newEcho(cfg, memvault.New)
	log.Info().Str("addr", cfg.ListenAddr).Msg("fido2demo listening")
	return e.Start(cfg.ListenAddr)
}

// demoWebVaultURL stands in for the password manager's own web vault origin.
// It only feeds the self-registration guard, so it must differ from the RP
// origin the demo registers against.
const demoWebVaultURL = "https://vault.example.com"

// newEcho builds the routed echo instance. newVault is injected so the
// caller chooses how the vault is constructed; runServe and the tests both
// pass memvault.New. Metrics go to a registry owned by this instance, so
// newEcho can be called more than once in a process.
func newEcho(cfg Config, newVault func(string) (*memvault.Vault, error)) *echo.Echo {
	vault, err := newVault(demoWebVaultURL)
	if err != nil {
		panic(err)
	}
	sessions := newSessionState(demoWebVaultURL)
	auth := authenticator.New(vault).WithUI(vault)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	reg := prometheus.NewRegistry()
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{Subsystem: "fido2demo", Registerer: reg}))
	e.GET(cfg.MetricsPath, echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	h := &handlers{cfg: cfg, vault: vault, sessions: sessions, auth: auth}
	e.POST("/session/login", h.login)
	e.POST("/webauthn/register/challenge", h.registerChallenge, h.requireSession)
	e.POST("/webauthn/register", h.register, h.requireSession)
	e.POST("/webauthn/login/challenge", h.loginChallenge, h.requireSession)
	e.POST("/webauthn/login", h.assertLogin, h.requireSession)
	return e
}

type handlers struct {
	cfg      Config
	vault    *memvault.Vault
	sessions *sessionState
	auth     *authenticator.Authenticator
}

// clientFor builds a fido2 client scoped to one request's session state, so
// State.IsAuthenticated/Environment.WebVaultURL reflect the caller's own
// bearer token rather than a shared, request-unsafe global.
func (h *handlers) clientFor(c echo.Context) *client.Client {
	rs := h.sessions.forRequest(c.Request())
	return client.New(h.auth, rs, rs, h.vault)
}

// requireSession parses the bearer token and binds it for the duration of
// the request, the same "session from Authorization header" shape
// scripts/gen_token.go's tokens were designed to carry.
func (h *handlers) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := bearerToken(c.Request())
		if raw == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := parseSessionToken(h.cfg.JWTSecret, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
		}
		h.sessions.bind(c.Request(), claims)
		defer h.sessions.unbind(c.Request())
		return next(c)
	}
}

type loginRequest struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

func (h *handlers) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}
	token, err := issueSessionToken(h.cfg.JWTSecret, req.UserID, req.UserName)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to issue session token")
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *handlers) registerChallenge(c echo.Context) error {
	challenge, err := randomChallenge()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate challenge")
	}
	return c.JSON(http.StatusOK, map[string]string{
		"rpId":      h.cfg.RPID,
		"rpName":    h.cfg.RPName,
		"challenge": challenge,
	})
}

type registerRequest struct {
	Challenge string `json:"challenge"`
}

func (h *handlers) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	challenge, err := base64.RawURLEncoding.DecodeString(req.Challenge)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid challenge encoding")
	}

	rs := h.sessions.forRequest(c.Request())
	fidoClient := h.clientFor(c)

	// The UI collaborator in this demo always approves onto a brand-new
	// vault entry, simulating a user who confirms "save this passkey".
	entryID, err := h.vault.Seed(store.Entry{Type: store.EntryTypeLogin, Username: rs.userName()})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to seed vault entry")
	}
	h.vault.ConfirmCipherID = entryID
	h.vault.ConfirmUV = true

	res, err := fidoClient.CreateCredential(c.Request().Context(), client.CreateCredentialParams{
		Origin:                  h.cfg.RPOrigin,
		SameOriginWithAncestors: true,
		Challenge:               challenge,
		RP:                      store.RPEntity{ID: h.cfg.RPID, Name: h.cfg.RPName},
		User:                    store.UserEntity{ID: []byte(rs.userID()), Name: rs.userName(), DisplayName: rs.userName()},
		ResidentKey:             "required",
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"credentialId":      base64.RawURLEncoding.EncodeToString(res.CredentialID),
		"attestationObject": base64.RawURLEncoding.EncodeToString(res.AttestationObject),
		"clientDataJSON":    base64.RawURLEncoding.EncodeToString(res.ClientDataJSON),
		"transports":        res.Transports,
	})
}

func (h *handlers) loginChallenge(c echo.Context) error {
	challenge, err := randomChallenge()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to generate challenge")
	}
	return c.JSON(http.StatusOK, map[string]string{"rpId": h.cfg.RPID, "challenge": challenge})
}

type assertLoginRequest struct {
	Challenge string `json:"challenge"`
}

func (h *handlers) assertLogin(c echo.Context) error {
	var req assertLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	challenge, err := base64.RawURLEncoding.DecodeString(req.Challenge)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid challenge encoding")
	}

	fidoClient := h.clientFor(c)

	// The UI collaborator in this demo auto-picks the first discoverable
	// credential for the RP, simulating a user choosing their only passkey
	// from a platform picker.
	entries, err := h.vault.GetAllDecrypted(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enumerate vault entries")
	}
	for _, e := range entries {
		if e.FIDO2Credential != nil && e.FIDO2Credential.RPID == h.cfg.RPID && e.FIDO2Credential.Discoverable {
			h.vault.PickCipherID = e.ID
			h.vault.PickUV = true
			break
		}
	}

	res, err := fidoClient.AssertCredential(c.Request().Context(), client.AssertCredentialParams{
		Origin:                  h.cfg.RPOrigin,
		SameOriginWithAncestors: true,
		Challenge:               challenge,
		RPID:                    h.cfg.RPID,
		RequireUserPresence:     true,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":                res.ID,
		"authenticatorData": base64.RawURLEncoding.EncodeToString(res.AuthenticatorData),
		"clientDataJSON":    base64.RawURLEncoding.EncodeToString(res.ClientDataJSON),
		"signature":         base64.RawURLEncoding.EncodeToString(res.Signature),
	})
}

func randomChallenge() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
