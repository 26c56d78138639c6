package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Identity-proxy token carriers. The proxy injects the header on forwarded
// requests; browsers carry the cookie.
const (
	proxyTokenHeader = "Cf-Access-Jwt-Assertion"
	proxyTokenCookie = "CF_Authorization"
)

// keySetTTL bounds how long a fetched key set is trusted before re-fetching.
const keySetTTL = 5 * time.Minute

// ErrProxyTokenInvalid indicates the identity-proxy token failed validation.
var ErrProxyTokenInvalid = errors.New("auth: identity token invalid")

// ExtractProxyToken returns the identity-proxy token from the request, header
// taking precedence over cookie, or "" when neither carrier is present.
func ExtractProxyToken(r *http.Request) string {
	if v := r.Header.Get(proxyTokenHeader); v != "" {
		return v
	}
	if c, err := r.Cookie(proxyTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// AccessVerifier validates identity-proxy JWTs against the team domain's
// published key set. The key set is cached for keySetTTL; a stale or
// domain-changed cache blocks the verifying request on a fresh fetch. No
// session state is consulted here.
type AccessVerifier struct {
	log         *slog.Logger
	allowedAlgs []string
	leeway      time.Duration

	mu        sync.Mutex
	kf        keyfunc.Keyfunc
	domain    string
	fetchedAt time.Time
	cancel    context.CancelFunc
	now       func() time.Time
}

// NewAccessVerifier builds a verifier with the proxy's signing algorithms.
func NewAccessVerifier(log *slog.Logger) *AccessVerifier {
	if log == nil {
		log = slog.Default()
	}
	return &AccessVerifier{
		log:         log,
		allowedAlgs: []string{"RS256", "ES256"},
		leeway:      60 * time.Second,
		now:         time.Now,
	}
}

// Verify checks the token's signature, issuer, audience, and lifetime, and
// returns the resolved principal (email claim when present, else sub).
func (v *AccessVerifier) Verify(ctx context.Context, token, teamDomain, audience string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrProxyTokenInvalid)
	}

	kf, err := v.keysFor(ctx, teamDomain)
	if err != nil {
		return "", fmt.Errorf("key set fetch failed: %w", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(teamDomain),
		jwt.WithLeeway(v.leeway),
	)
	parsed, err := parser.Parse(token, func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		allowed := false
		for _, a := range v.allowedAlgs {
			if alg == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	})
	if err != nil {
		return "", fmt.Errorf("%w: token parse/verify failed: %v", ErrProxyTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims type", ErrProxyTokenInvalid)
	}
	if !audContains(claims["aud"], audience) {
		return "", fmt.Errorf("%w: audience mismatch", ErrProxyTokenInvalid)
	}

	if email, _ := claims["email"].(string); email != "" {
		return email, nil
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: missing sub", ErrProxyTokenInvalid)
	}
	return sub, nil
}

// keysFor returns the cached key set for the team domain, re-fetching when
// the cache is older than keySetTTL or the domain changed.
func (v *AccessVerifier) keysFor(ctx context.Context, teamDomain string) (keyfunc.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.kf != nil && v.domain == teamDomain && v.now().Sub(v.fetchedAt) < keySetTTL {
		return v.kf, nil
	}

	jwksURI := discoverJWKSURI(ctx, teamDomain)

	// The keyfunc's background refresh lives until the next rotation.
	kctx, cancel := context.WithCancel(context.Background())
	kf, err := keyfunc.NewDefaultCtx(kctx, []string{jwksURI})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	if v.cancel != nil {
		v.cancel()
	}
	v.kf = kf
	v.domain = teamDomain
	v.fetchedAt = v.now()
	v.cancel = cancel
	v.log.DebugContext(ctx, "auth.proxy.keys.refresh", slog.String("jwks_uri", jwksURI))
	return kf, nil
}

// discoverJWKSURI resolves the team domain's jwks_uri via OIDC discovery,
// falling back to the proxy's fixed certs path when discovery is unavailable.
func discoverJWKSURI(ctx context.Context, teamDomain string) string {
	fallback := strings.TrimSuffix(teamDomain, "/") + "/cdn-cgi/access/certs"

	provider, err := oidc.NewProvider(ctx, teamDomain)
	if err != nil {
		return fallback
	}
	var meta struct {
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil || meta.JwksURI == "" {
		return fallback
	}
	return meta.JwksURI
}

// Close stops the background key refresh.
func (v *AccessVerifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
		v.kf = nil
	}
}

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}
