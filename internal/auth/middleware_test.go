package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func runMiddleware(t *testing.T, authorization string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var actor string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ = ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	Middleware(testSecret, zap.NewNop())(inner).ServeHTTP(rec, req)
	return rec, actor
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	rec, actor := runMiddleware(t, "Bearer "+signToken(t, testSecret, "alice"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor != "alice" {
		t.Errorf("expected actor alice, got %q", actor)
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret":   "Bearer " + signToken(t, "other-secret", "alice"),
		"garbage":        "Bearer not.a.token",
		"empty subject":  "Bearer " + signToken(t, testSecret, ""),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, actor := runMiddleware(t, header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if actor != "" {
				t.Errorf("actor must not reach the handler, got %q", actor)
			}
		})
	}
}

func TestMiddlewareRejectsWrongAlgorithm(t *testing.T) {
	// alg=none tokens must never verify.
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec, _ := runMiddleware(t, "Bearer "+signed)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for alg=none, got %d", rec.Code)
	}
}
