// Package auth implements the request authentication gateway. Two credential
// schemes are supported: a pre-shared bearer secret (stored as a salted hash)
// and an identity-proxy JWT minted by an access proxy in front of the server.
// Scheme evaluation is fixed-order and short-circuiting; a present proxy token
// never falls back to bearer checking.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Outcome classifies the result of gateway evaluation.
type Outcome int

const (
	// OutcomeAnonymous means no credential scheme is configured; the request
	// proceeds without an identity.
	OutcomeAnonymous Outcome = iota
	// OutcomeAuthenticated means a configured scheme accepted the request.
	OutcomeAuthenticated
	// OutcomeRejected means the request must be refused with Status.
	OutcomeRejected
)

// Authentication method names recorded on sessions and in logs.
const (
	MethodBearer        = "bearer"
	MethodIdentityProxy = "identity-proxy"
)

// Decision is the gateway's verdict for a single request.
type Decision struct {
	Outcome   Outcome
	Method    string
	Principal string

	// Reason and Status are set only for OutcomeRejected.
	Reason string
	Status int
}

// Credentials is the credential material consulted per request. Values are
// re-read from configuration on every call so edits apply without restart.
type Credentials struct {
	// BearerHash is hex(sha256(secret + installation id)), empty when the
	// bearer scheme is not configured.
	BearerHash string
	// InstallationID salts the presented bearer secret before hashing.
	InstallationID string

	// ProxyTeamDomain is the identity proxy's team domain, which is also the
	// expected token issuer. Empty when the proxy scheme is not configured.
	ProxyTeamDomain string
	// ProxyAudience is the application audience tag tokens must carry.
	ProxyAudience string
}

func (c Credentials) bearerConfigured() bool {
	return c.BearerHash != ""
}

func (c Credentials) proxyConfigured() bool {
	return c.ProxyTeamDomain != "" && c.ProxyAudience != ""
}

// ProxyVerifier validates an identity-proxy token and resolves its principal.
type ProxyVerifier interface {
	Verify(ctx context.Context, token, teamDomain, audience string) (principal string, err error)
}

// Gateway evaluates request credentials against the configured schemes.
type Gateway struct {
	creds func() Credentials
	proxy ProxyVerifier
	log   *slog.Logger
}

// NewGateway builds a gateway. creds is called once per Authenticate so that
// configuration changes take effect on the next request.
func NewGateway(creds func() Credentials, proxy ProxyVerifier, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{creds: creds, proxy: proxy, log: log}
}

// Authenticate evaluates the request in fixed order:
//
//  1. No scheme configured: anonymous.
//  2. Proxy scheme configured and a proxy token is present: verify it. A bad
//     token rejects the request outright; it never falls through to bearer.
//  3. Bearer scheme configured: compare the salted hash of the presented
//     secret. A missing Authorization header is 401; a wrong value is 403.
func (g *Gateway) Authenticate(ctx context.Context, r *http.Request) Decision {
	c := g.creds()

	if !c.bearerConfigured() && !c.proxyConfigured() {
		return Decision{Outcome: OutcomeAnonymous}
	}

	if c.proxyConfigured() {
		if tok := ExtractProxyToken(r); tok != "" {
			principal, err := g.proxy.Verify(ctx, tok, c.ProxyTeamDomain, c.ProxyAudience)
			if err != nil {
				g.log.WarnContext(ctx, "auth.proxy.fail", slog.String("err", err.Error()))
				return Decision{
					Outcome: OutcomeRejected,
					Reason:  "invalid identity token",
					Status:  http.StatusForbidden,
				}
			}
			g.log.InfoContext(ctx, "auth.proxy.ok", slog.String("principal", principal))
			return Decision{
				Outcome:   OutcomeAuthenticated,
				Method:    MethodIdentityProxy,
				Principal: principal,
			}
		}
	}

	if c.bearerConfigured() {
		secret, present := bearerSecret(r)
		if !present {
			return Decision{
				Outcome: OutcomeRejected,
				Reason:  "authentication required",
				Status:  http.StatusUnauthorized,
			}
		}
		if !VerifySecret(secret, c.InstallationID, c.BearerHash) {
			g.log.WarnContext(ctx, "auth.bearer.fail")
			return Decision{
				Outcome: OutcomeRejected,
				Reason:  "invalid bearer token",
				Status:  http.StatusForbidden,
			}
		}
		return Decision{Outcome: OutcomeAuthenticated, Method: MethodBearer}
	}

	// Proxy-only configuration with no token on the request.
	return Decision{
		Outcome: OutcomeRejected,
		Reason:  "authentication required",
		Status:  http.StatusUnauthorized,
	}
}

// bearerSecret extracts the bearer credential from the Authorization header.
// The second return distinguishes an absent header from an empty value.
func bearerSecret(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(rest), true
}
