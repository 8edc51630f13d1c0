package main

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/vaultkey/fido2-core/internal/fido2/store"
)

// sessionClaims is the JWT payload issued at login and consulted by the
// State collaborator, grounded on scripts/gen_token.go's use of
// jwt.RegisteredClaims plus a demo-specific user name.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserName string `json:"user_name,omitempty"`
}

func issueSessionToken(secret, userID, userName string) (string, error) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
		UserName: userName,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseSessionToken(secret, raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse session token")
	}
	if !token.Valid {
		return nil, errors.New("session token is not valid")
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// sessionState adapts the demo's JWT sessions into store.State +
// store.Environment: authentication is "is there a valid bearer token on
// this request", tracked per-request in a mutex-guarded map keyed by the
// *http.Request rather than a single global, so concurrent requests from
// different users never see each other's session.
type sessionState struct {
	mu          sync.RWMutex
	current     map[*http.Request]*sessionClaims
	webVaultURL string
	blocklist   map[string]struct{}
}

func newSessionState(webVaultURL string) *sessionState {
	return &sessionState{
		current:     make(map[*http.Request]*sessionClaims),
		webVaultURL: webVaultURL,
		blocklist:   make(map[string]struct{}),
	}
}

func (s *sessionState) bind(r *http.Request, claims *sessionClaims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[r] = claims
}

func (s *sessionState) unbind(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, r)
}

// forRequest returns the fido2 State/Environment view scoped to one HTTP
// request, since the fido2 client's context.Context doesn't carry an
// *http.Request handle of its own.
func (s *sessionState) forRequest(r *http.Request) *requestState {
	return &requestState{parent: s, req: r}
}

type requestState struct {
	parent *sessionState
	req    *http.Request
}

var _ store.State = (*requestState)(nil)
var _ store.Environment = (*requestState)(nil)

func (r *requestState) AutofillBlocklistedHosts(ctx context.Context) (map[string]struct{}, error) {
	r.parent.mu.RLock()
	defer r.parent.mu.RUnlock()
	out := make(map[string]struct{}, len(r.parent.blocklist))
	for h := range r.parent.blocklist {
		out[h] = struct{}{}
	}
	return out, nil
}

func (r *requestState) IsAuthenticated(ctx context.Context) (bool, error) {
	r.parent.mu.RLock()
	defer r.parent.mu.RUnlock()
	_, ok := r.parent.current[r.req]
	return ok, nil
}

func (r *requestState) WebVaultURL(ctx context.Context) (string, error) {
	return r.parent.webVaultURL, nil
}

func (r *requestState) userID() string {
	r.parent.mu.RLock()
	defer r.parent.mu.RUnlock()
	claims, ok := r.parent.current[r.req]
	if !ok {
		return ""
	}
	return claims.Subject
}

func (r *requestState) userName() string {
	r.parent.mu.RLock()
	defer r.parent.mu.RUnlock()
	claims, ok := r.parent.current[r.req]
	if !ok {
		return ""
	}
	return claims.UserName
}
