package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeVerifier struct {
	principal string
	err       error
	calls     int
}

func (f *fakeVerifier) Verify(ctx context.Context, token, teamDomain, audience string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.principal, nil
}

func newRequest(t *testing.T, mutate func(r *http.Request)) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	if mutate != nil {
		mutate(r)
	}
	return r
}

func TestGatewayNoSchemesIsAnonymous(t *testing.T) {
	g := NewGateway(func() Credentials { return Credentials{} }, &fakeVerifier{}, nil)

	d := g.Authenticate(context.Background(), newRequest(t, nil))
	if d.Outcome != OutcomeAnonymous {
		t.Fatalf("expected anonymous, got %+v", d)
	}
}

func TestGatewayProxyTokenAccepted(t *testing.T) {
	fv := &fakeVerifier{principal: "user@example.com"}
	g := NewGateway(func() Credentials {
		return Credentials{ProxyTeamDomain: "https://team.example.com", ProxyAudience: "aud-tag"}
	}, fv, nil)

	r := newRequest(t, func(r *http.Request) {
		r.Header.Set("Cf-Access-Jwt-Assertion", "tok")
	})
	d := g.Authenticate(context.Background(), r)
	if d.Outcome != OutcomeAuthenticated || d.Method != MethodIdentityProxy {
		t.Fatalf("expected identity-proxy auth, got %+v", d)
	}
	if d.Principal != "user@example.com" {
		t.Fatalf("expected principal from verifier, got %q", d.Principal)
	}
	if fv.calls != 1 {
		t.Fatalf("expected one verifier call, got %d", fv.calls)
	}
}

func TestGatewayBadProxyTokenNeverFallsBackToBearer(t *testing.T) {
	secret := "s3cret"
	installID := "inst-1"
	fv := &fakeVerifier{err: errors.New("boom")}
	g := NewGateway(func() Credentials {
		return Credentials{
			BearerHash:      HashSecret(secret, installID),
			InstallationID:  installID,
			ProxyTeamDomain: "https://team.example.com",
			ProxyAudience:   "aud-tag",
		}
	}, fv, nil)

	// Valid bearer alongside an invalid proxy token must still reject.
	r := newRequest(t, func(r *http.Request) {
		r.Header.Set("Cf-Access-Jwt-Assertion", "bad")
		r.Header.Set("Authorization", "Bearer "+secret)
	})
	d := g.Authenticate(context.Background(), r)
	if d.Outcome != OutcomeRejected || d.Status != http.StatusForbidden {
		t.Fatalf("expected 403 rejection, got %+v", d)
	}
}

func TestGatewayBearer(t *testing.T) {
	secret := "s3cret"
	installID := "inst-1"
	creds := func() Credentials {
		return Credentials{
			BearerHash:     HashSecret(secret, installID),
			InstallationID: installID,
		}
	}

	t.Run("valid secret", func(t *testing.T) {
		g := NewGateway(creds, &fakeVerifier{}, nil)
		r := newRequest(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+secret)
		})
		d := g.Authenticate(context.Background(), r)
		if d.Outcome != OutcomeAuthenticated || d.Method != MethodBearer {
			t.Fatalf("expected bearer auth, got %+v", d)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		g := NewGateway(creds, &fakeVerifier{}, nil)
		r := newRequest(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer wrong")
		})
		d := g.Authenticate(context.Background(), r)
		if d.Outcome != OutcomeRejected || d.Status != http.StatusForbidden {
			t.Fatalf("expected 403, got %+v", d)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		g := NewGateway(creds, &fakeVerifier{}, nil)
		d := g.Authenticate(context.Background(), newRequest(t, nil))
		if d.Outcome != OutcomeRejected || d.Status != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %+v", d)
		}
		if d.Reason != "authentication required" {
			t.Fatalf("unexpected reason %q", d.Reason)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		g := NewGateway(creds, &fakeVerifier{}, nil)
		r := newRequest(t, func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwdw==")
		})
		d := g.Authenticate(context.Background(), r)
		if d.Outcome != OutcomeRejected || d.Status != http.StatusForbidden {
			t.Fatalf("expected 403 for non-bearer scheme, got %+v", d)
		}
	})
}

func TestGatewayProxyOnlyWithoutTokenIsUnauthorized(t *testing.T) {
	g := NewGateway(func() Credentials {
		return Credentials{ProxyTeamDomain: "https://team.example.com", ProxyAudience: "aud-tag"}
	}, &fakeVerifier{}, nil)

	d := g.Authenticate(context.Background(), newRequest(t, nil))
	if d.Outcome != OutcomeRejected || d.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", d)
	}
}

func TestExtractProxyTokenPrecedence(t *testing.T) {
	r := newRequest(t, func(r *http.Request) {
		r.Header.Set("Cf-Access-Jwt-Assertion", "from-header")
		r.AddCookie(&http.Cookie{Name: "CF_Authorization", Value: "from-cookie"})
	})
	if got := ExtractProxyToken(r); got != "from-header" {
		t.Fatalf("header should win, got %q", got)
	}

	r = newRequest(t, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "CF_Authorization", Value: "from-cookie"})
	})
	if got := ExtractProxyToken(r); got != "from-cookie" {
		t.Fatalf("expected cookie token, got %q", got)
	}

	if got := ExtractProxyToken(newRequest(t, nil)); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestHashSecret(t *testing.T) {
	h1 := HashSecret("secret", "inst-a")
	h2 := HashSecret("secret", "inst-b")
	if h1 == h2 {
		t.Fatal("installation id must salt the hash")
	}
	if len(h1) != 64 {
		t.Fatalf("expected sha256 hex digest, got %d chars", len(h1))
	}

	if !VerifySecret("secret", "inst-a", h1) {
		t.Fatal("matching secret rejected")
	}
	if VerifySecret("other", "inst-a", h1) {
		t.Fatal("non-matching secret accepted")
	}
	if VerifySecret("secret", "inst-a", "") {
		t.Fatal("empty stored hash must never verify")
	}
}
