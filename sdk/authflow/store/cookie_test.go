package store_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/authflow/sdk/authflow"
	"github.com/router-for-me/authflow/sdk/authflow/store"
)

var testCookieSecret = []byte(strings.Repeat("s", 32))

func newSealer(t *testing.T) *store.CookieSealer {
	t.Helper()
	s, err := store.NewCookieSealer(testCookieSecret)
	require.NoError(t, err)
	return s
}

func TestCookieStore_InRequest(t *testing.T) {
	sealer := newSealer(t)
	runStoreContract(t, func(t *testing.T) clearableStore {
		return sealer.ForRequest(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCookieStore_AcrossRedirect(t *testing.T) {
	ctx := context.Background()
	sealer := newSealer(t)
	fp, err := authflow.NewFingerprint()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sealer.ForRequest(rec, httptest.NewRequest(http.MethodGet, "/login", nil)).Set(ctx, fp))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, authflow.DefaultStorageKey, c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.NotContains(t, c.Value, fp.CSRFToken.Secret())
	assert.NotContains(t, c.Value, fp.PKCEVerifier.Secret())

	callback := httptest.NewRequest(http.MethodGet, "/callback", nil)
	callback.AddCookie(c)
	got, err := sealer.ForRequest(httptest.NewRecorder(), callback).Get(ctx)
	require.NoError(t, err)
	assert.True(t, got.Equal(fp))
}

func TestCookieStore_TamperedOrForeign(t *testing.T) {
	ctx := context.Background()
	sealer := newSealer(t)
	fp, _ := authflow.NewFingerprint()
	rec := httptest.NewRecorder()
	require.NoError(t, sealer.ForRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil)).Set(ctx, fp))
	c := rec.Result().Cookies()[0]

	other, err := store.NewCookieSealer([]byte(strings.Repeat("o", 32)))
	require.NoError(t, err)

	tampered := *c
	mid := len(c.Value) / 2
	flipped := byte('A')
	if c.Value[mid] == 'A' {
		flipped = 'B'
	}
	tampered.Value = c.Value[:mid] + string(flipped) + c.Value[mid+1:]

	tests := []struct {
		name   string
		sealer *store.CookieSealer
		cookie *http.Cookie
	}{
		{name: "other key", sealer: other, cookie: c},
		{name: "tampered", sealer: sealer, cookie: &tampered},
		{name: "garbage", sealer: sealer, cookie: &http.Cookie{Name: c.Name, Value: "%%%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/callback", nil)
			req.AddCookie(tt.cookie)
			_, err := tt.sealer.ForRequest(httptest.NewRecorder(), req).Get(ctx)
			assert.ErrorIs(t, err, authflow.ErrFingerprintCorrupt)
		})
	}
}

func TestCookieStore_ClearExpiresCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	st := newSealer(t).ForRequest(rec, httptest.NewRequest(http.MethodGet, "/", nil), store.WithInsecureCookie())
	require.NoError(t, st.Clear(context.Background()))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.False(t, cookies[0].Secure)
}

func TestNewCookieSealer_ShortSecret(t *testing.T) {
	_, err := store.NewCookieSealer([]byte("short"))
	assert.Error(t, err)
}
