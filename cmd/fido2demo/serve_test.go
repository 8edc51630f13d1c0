package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultkey/fido2-core/internal/memvault"
)

func newTestEcho(t *testing.T) (http.Handler, Config) {
	t.Helper()
	cfg := defaultConfig()
	e := newEcho(cfg, memvault.New)
	return e, cfg
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func loginAndGetToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/session/login", "", loginRequest{UserID: "user-1", UserName: "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func TestSessionLoginIssuesToken(t *testing.T) {
	h, _ := newTestEcho(t)
	token := loginAndGetToken(t, h)
	assert.NotEmpty(t, token)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	h, _ := newTestEcho(t)
	rec := doJSON(t, h, http.MethodPost, "/webauthn/register/challenge", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterThenLoginRoundTrip(t *testing.T) {
	h, _ := newTestEcho(t)
	token := loginAndGetToken(t, h)

	challengeRec := doJSON(t, h, http.MethodPost, "/webauthn/register/challenge", token, nil)
	require.Equal(t, http.StatusOK, challengeRec.Code)
	var challengeResp map[string]string
	require.NoError(t, json.Unmarshal(challengeRec.Body.Bytes(), &challengeResp))
	require.NotEmpty(t, challengeResp["challenge"])

	registerRec := doJSON(t, h, http.MethodPost, "/webauthn/register", token, registerRequest{Challenge: challengeResp["challenge"]})
	require.Equal(t, http.StatusOK, registerRec.Code, registerRec.Body.String())
	var registerResp map[string]interface{}
	require.NoError(t, json.Unmarshal(registerRec.Body.Bytes(), &registerResp))
	assert.NotEmpty(t, registerResp["credentialId"])

	loginChallengeRec := doJSON(t, h, http.MethodPost, "/webauthn/login/challenge", token, nil)
	require.Equal(t, http.StatusOK, loginChallengeRec.Code)
	var loginChallengeResp map[string]string
	require.NoError(t, json.Unmarshal(loginChallengeRec.Body.Bytes(), &loginChallengeResp))

	assertRec := doJSON(t, h, http.MethodPost, "/webauthn/login", token, assertLoginRequest{Challenge: loginChallengeResp["challenge"]})
	require.Equal(t, http.StatusOK, assertRec.Code, assertRec.Body.String())
	var assertResp map[string]interface{}
	require.NoError(t, json.Unmarshal(assertRec.Body.Bytes(), &assertResp))
	assert.NotEmpty(t, assertResp["signature"])
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	h, cfg := newTestEcho(t)
	req := httptest.NewRequest(http.MethodGet, cfg.MetricsPath, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
