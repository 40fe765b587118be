package middleware

import (
	"drone-helpdesk-go/pkg/token"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, operator string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, token.OperatorClaims{
		OperatorID:       operator,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	auth := AuthMiddleware(token.NewVerifier("secret"))
	whoami := func(c *gin.Context) { c.String(http.StatusOK, OperatorID(c)) }
	r.GET("/api", auth, whoami)
	r.GET("/ws/:token", auth, whoami)

	tok := signed(t, "op-7")
	tests := []struct {
		name   string
		target string
		header string
		status int
		body   string
	}{
		{"bearer header", "/api", "Bearer " + tok, http.StatusOK, "op-7"},
		{"missing header", "/api", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "/api", "Basic " + tok, http.StatusUnauthorized, ""},
		{"bad token", "/api", "Bearer nope", http.StatusUnauthorized, ""},
		{"path token", "/ws/" + tok, "", http.StatusOK, "op-7"},
		{"bad path token", "/ws/nope", "Bearer " + tok, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q", w.Body.String())
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Error("missing request id header")
			}
		})
	}
}
