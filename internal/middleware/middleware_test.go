package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recbridge/backend/internal/auth"
	"github.com/recbridge/backend/internal/models"
)

func newRouter(jwtSvc *auth.JWTService, domain string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(zap.NewNop()), CORS("http://localhost:3000"))
	r.GET("/api/ping", JWT(jwtSvc), RequireDomain(domain), func(c *gin.Context) {
		op := Operator(c)
		c.String(http.StatusOK, op.Email+" "+op.UserID.String())
	})
	return r
}

func TestJWTAndDomain(t *testing.T) {
	jwtSvc := auth.NewJWTService("secret", 1)
	uid := uuid.New()
	good, err := jwtSvc.Generate(&models.User{ID: uid, Email: "ops@example.org"})
	require.NoError(t, err)
	outsider, err := jwtSvc.Generate(&models.User{ID: uuid.New(), Email: "x@other.com"})
	require.NoError(t, err)

	r := newRouter(jwtSvc, "example.org")

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer", "Bearer " + good, "", http.StatusOK},
		{"query token", "", "?token=" + good, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"malformed", "Token " + good, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong domain", "Bearer " + outsider, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ping"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops@example.org "+uid.String(), w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := newRouter(auth.NewJWTService("secret", 1), "")

	req := httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/ping", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
