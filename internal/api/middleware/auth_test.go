package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
	"github.com/99minutos/ledger-gateway/internal/core/service"
)

var testSecret = []byte("middleware-test-secret")

func newTokens(now time.Time) *service.TokenService {
	return service.NewTokenService(testSecret, "ledger-gateway", func() time.Time { return now })
}

func issue(t *testing.T, tokens *service.TokenService, role domain.Role) string {
	t.Helper()
	token, err := tokens.Issue(domain.Identity{SubjectID: "u-1", Username: "alice"}, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func runAuth(t *testing.T, tokens *service.TokenService, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(tokens)(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return body["message"]
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	now := time.Now()
	tokens := newTokens(now)
	token := issue(t, tokens, domain.RoleAdmin)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := Auth(tokens)(func(c echo.Context) error {
		called = true
		cred := CredentialFrom(c)
		if cred == nil {
			t.Fatalf("credential not set")
		}
		if cred.Username != "alice" || cred.Role != domain.RoleAdmin || cred.SubjectID != "u-1" {
			t.Fatalf("unexpected credential: %+v", cred)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthMiddleware_Unauthenticated(t *testing.T) {
	tokens := newTokens(time.Now())

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Token abc",
		"empty bearer":   "Bearer ",
		"no token part":  "Bearer",
	} {
		t.Run(name, func(t *testing.T) {
			rec, called := runAuth(t, tokens, header)
			if called {
				t.Fatalf("should not reach next")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if msg := message(t, rec); msg != "Unauthenticated" {
				t.Fatalf("unexpected message %q", msg)
			}
		})
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	now := time.Now()
	tokens := newTokens(now)
	expired := issue(t, newTokens(now.Add(-2*time.Hour)), domain.RoleUser)
	foreign := issue(t, service.NewTokenService([]byte("other"), "ledger-gateway", nil), domain.RoleAdmin)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong secret": foreign,
	} {
		t.Run(name, func(t *testing.T) {
			rec, called := runAuth(t, tokens, "Bearer "+token)
			if called {
				t.Fatalf("should not reach next")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if msg := message(t, rec); msg != "Invalid or expired token" {
				t.Fatalf("unexpected message %q", msg)
			}
		})
	}
}
