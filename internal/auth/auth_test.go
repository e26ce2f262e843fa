package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	assert.Equal(t, "5f4dcc3b5aa765d61d8327deb882cf99", Digest("password"))
	assert.Equal(t, Digest(Digest("password")), DoubleDigest("password"))
	assert.Len(t, DoubleDigest(""), 32)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("abc", "abc"))
	assert.False(t, Equal("abc", "abd"))
	assert.False(t, Equal("abc", "abcd"))
}

func TestTokenRoundTrip(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	tm, err := NewTokenManager("secret", time.Hour, mock)
	require.NoError(t, err)

	token, err := tm.Issue()
	require.NoError(t, err)
	assert.NoError(t, tm.Validate(token))

	mock.Add(2 * time.Hour)
	assert.ErrorIs(t, tm.Validate(token), ErrExpiredToken)
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	a, err := NewTokenManager("one", time.Hour, nil)
	require.NoError(t, err)
	b, err := NewTokenManager("two", time.Hour, nil)
	require.NoError(t, err)

	token, err := a.Issue()
	require.NoError(t, err)

	assert.ErrorIs(t, b.Validate(token), ErrInvalidToken)
	assert.ErrorIs(t, b.Validate("not-a-token"), ErrInvalidToken)
	assert.ErrorIs(t, b.Validate(""), ErrNoToken)
}

func TestRandomSigningKey(t *testing.T) {
	a, err := NewTokenManager("", 0, nil)
	require.NoError(t, err)
	b, err := NewTokenManager("", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTokenTTL, a.TTL())
	token, err := a.Issue()
	require.NoError(t, err)
	assert.Error(t, b.Validate(token))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	tm, err := NewTokenManager("signing", time.Hour, nil)
	require.NoError(t, err)
	return NewService("hunter2", tm, nil)
}

func TestHandleLogin(t *testing.T) {
	svc := newTestService(t)

	t.Run("accepts digested key", func(t *testing.T) {
		body := `{"accessKey":"` + Digest("hunter2") + `"}`
		rec := httptest.NewRecorder()
		svc.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token"`)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, CookieName, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("rejects plain key", func(t *testing.T) {
		rec := httptest.NewRecorder()
		svc.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"accessKey":"hunter2"}`)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		svc.HandleLogin(rec, httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	token, err := svc.tokens.Issue()
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := svc.Middleware(ok)

	tests := []struct {
		name string
		mod  func(r *http.Request)
		want int
	}{
		{"no token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusTeapot},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusTeapot},
		{"bad cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "x"}) }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/control/properties", nil)
			tt.mod(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
