package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"

	"github.com/recbridge/backend/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	u := &models.User{ID: uuid.New(), Email: "ops@example.org", Name: "Ops"}

	tok, err := svc.Generate(u)
	require.NoError(t, err)

	claims, err := svc.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "ops@example.org", claims.Email)
	assert.Equal(t, "Ops", claims.Name)

	_, err = NewJWTService("other", 1).Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	svc := NewJWTService("secret", 1)
	tok, err := svc.Generate(&models.User{ID: uuid.New()})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckDomain(t *testing.T) {
	tests := []struct {
		email, allowed string
		ok             bool
	}{
		{"a@example.org", "example.org", true},
		{"a@Example.ORG", "example.org", true},
		{"a@example.org", "@example.org", true},
		{"a@other.com", "example.org", false},
		{"a@sub.example.org", "example.org", false},
		{"no-at-sign", "example.org", false},
		{"a@other.com", "", true},
	}
	for _, tt := range tests {
		err := CheckDomain(tt.email, tt.allowed)
		if tt.ok {
			assert.NoError(t, err, tt.email)
		} else {
			assert.ErrorIs(t, err, ErrDomainNotAllowed, tt.email)
		}
	}
}

func fakeValidate(p *idtoken.Payload, err error) ValidateFunc {
	return func(context.Context, string, string) (*idtoken.Payload, error) { return p, err }
}

func TestGoogleVerifier(t *testing.T) {
	ctx := context.Background()
	payload := &idtoken.Payload{Subject: "sub-1", Claims: map[string]interface{}{
		"email": "ops@example.org", "name": "Ops", "picture": "https://img", "hd": "example.org", "email_verified": true,
	}}

	v := NewGoogleVerifier("client", "example.org")
	v.validate = fakeValidate(payload, nil)
	id, err := v.Verify(ctx, "raw")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.org", id.Email)
	assert.Equal(t, "example.org", id.Domain)
	assert.Equal(t, "https://img", id.Picture)

	v.AllowedDomain = "corp.example"
	_, err = v.Verify(ctx, "raw")
	assert.ErrorIs(t, err, ErrDomainNotAllowed)

	v.validate = fakeValidate(nil, errors.New("bad signature"))
	_, err = v.Verify(ctx, "raw")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

var userCols = []string{"id", "email", "name", "picture_url", "domain", "first_login", "last_login", "login_count", "is_active"}

func TestRepositoryRecordLogin(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	uid := uuid.New()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE")).
		WithArgs("ops@example.org", "Ops", "", "example.org").
		WillReturnRows(pgxmock.NewRows(userCols).AddRow(uid, "ops@example.org", "Ops", "", "example.org", now, now, 3, true))

	u, err := NewRepository(mock).RecordLogin(context.Background(), &Identity{Email: "ops@example.org", Name: "Ops", Domain: "example.org"})
	require.NoError(t, err)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, 3, u.LoginCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByIDMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

	u, err := NewRepository(mock).GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, u)
}

type fakeVerifier struct {
	id  *Identity
	err error
}

func (f fakeVerifier) Verify(context.Context, string) (*Identity, error) { return f.id, f.err }

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) RecordLogin(_ context.Context, id *Identity) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Email: id.Email, Name: id.Name, Domain: id.Domain, LoginCount: 1, IsActive: true}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return f.users[id], nil
}

func newAuthRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/session", h.Session)
	r.GET("/auth/me", func(c *gin.Context) {
		c.Set(ContextUserID, userID)
		c.Next()
	}, h.Me)
	return r
}

func TestHandlerSession(t *testing.T) {
	users := &fakeUsers{users: map[uuid.UUID]*models.User{}}
	jwtSvc := NewJWTService("secret", 1)

	t.Run("issues token", func(t *testing.T) {
		h := NewHandler(users, fakeVerifier{id: &Identity{Email: "ops@example.org", Name: "Ops", Domain: "example.org"}}, jwtSvc, nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"id_token":"raw"}`))
		req.Header.Set("Content-Type", "application/json")
		newAuthRouter(h, uuid.Nil).ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Success bool          `json:"success"`
			Data    TokenResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		claims, err := jwtSvc.Validate(body.Data.Token)
		require.NoError(t, err)
		assert.Equal(t, "ops@example.org", claims.Email)
	})

	t.Run("wrong domain", func(t *testing.T) {
		h := NewHandler(users, fakeVerifier{err: ErrDomainNotAllowed}, jwtSvc, nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"id_token":"raw"}`))
		newAuthRouter(h, uuid.Nil).ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		h := NewHandler(users, fakeVerifier{err: ErrInvalidToken}, jwtSvc, nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{"id_token":"raw"}`))
		newAuthRouter(h, uuid.Nil).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		h := NewHandler(users, fakeVerifier{}, jwtSvc, nil)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/session", strings.NewReader(`{}`))
		newAuthRouter(h, uuid.Nil).ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandlerMe(t *testing.T) {
	uid := uuid.New()
	users := &fakeUsers{users: map[uuid.UUID]*models.User{uid: {ID: uid, Email: "ops@example.org", IsActive: true}}}
	h := NewHandler(users, fakeVerifier{}, NewJWTService("secret", 1), nil)

	w := httptest.NewRecorder()
	newAuthRouter(h, uid).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ops@example.org")

	w = httptest.NewRecorder()
	newAuthRouter(h, uuid.New()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
