package preferences

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompressai/portal/internal/auth"
	"github.com/kompressai/portal/pkg/logging"
)

func ptr[T any](v T) *T { return &v }

func TestDefaultsAreValid(t *testing.T) {
	d := Defaults()
	require.NoError(t, d.Validate())
	assert.Equal(t, "dark", d.Theme)
	assert.Equal(t, "balanced", d.CompressionQuality)
	assert.True(t, d.EmailNotifications)
	assert.False(t, d.MarketingEmails)
	assert.Equal(t, 30*24*time.Hour, d.APIKeyTTL())
	assert.Equal(t, time.UTC, d.Location())
}

func TestApplyPatch(t *testing.T) {
	updated, err := Defaults().Apply(Patch{
		Theme:           ptr("light"),
		Timezone:        ptr("Europe/Berlin"),
		MarketingEmails: ptr(true),
		APIKeyExpiry:    ptr("never"),
	})
	require.NoError(t, err)
	assert.Equal(t, "light", updated.Theme)
	assert.Equal(t, "Europe/Berlin", updated.Location().String())
	assert.True(t, updated.MarketingEmails)
	assert.Zero(t, updated.APIKeyTTL())
	assert.Equal(t, "en", updated.Language, "untouched fields keep their value")
}

func TestApplyRejectsInvalid(t *testing.T) {
	cases := []Patch{
		{Theme: ptr("sepia")},
		{Language: ptr("xx")},
		{Timezone: ptr("Mars/Olympus")},
		{Timezone: ptr("")},
		{CompressionQuality: ptr("ultra")},
		{DefaultAccuracyFloor: ptr("0-1")},
		{APIKeyExpiry: ptr("365")},
	}
	for _, patch := range cases {
		_, err := Defaults().Apply(patch)
		assert.ErrorIs(t, err, ErrInvalidPreference)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisStore(client)
	ctx := context.Background()

	prefs, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), prefs)

	prefs.Theme = "system"
	require.NoError(t, store.Save(ctx, "u1", prefs))
	assert.True(t, mr.Exists("preferences:u1"))

	loaded, err := store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "system", loaded.Theme)

	require.NoError(t, store.Delete(ctx, "u1"))
	loaded, err = store.Load(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), loaded)

	_, err = store.Load(ctx, "")
	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestRedisStorePartialDocumentKeepsDefaults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.NoError(t, mr.Set("preferences:u2", `{"theme":"light"}`))

	prefs, err := NewRedisStore(client).Load(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "light", prefs.Theme)
	assert.Equal(t, "3-5", prefs.DefaultAccuracyFloor)
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	store := NewMemoryStore()
	bad := Defaults()
	bad.Theme = "neon"
	assert.ErrorIs(t, store.Save(context.Background(), "u", bad), ErrInvalidPreference)
}

func withSession(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), auth.Session{UserID: userID}))
}

func TestHandlerGetPatchReset(t *testing.T) {
	store := NewMemoryStore()
	h := NewHandler(store, logging.New("error"))

	rec := httptest.NewRecorder()
	h.HandleGet(rec, withSession(httptest.NewRequest(http.MethodGet, "/me/preferences", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/me/preferences", strings.NewReader(`{"compression_quality":"maximum","push_notifications":true}`))
	h.HandlePatch(rec, withSession(req, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var got Preferences
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "maximum", got.CompressionQuality)
	assert.True(t, got.PushNotifications)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPatch, "/me/preferences", strings.NewReader(`{"theme":"neon"}`))
	h.HandlePatch(rec, withSession(req, "u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := store.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "maximum", stored.CompressionQuality)

	rec = httptest.NewRecorder()
	h.HandleReset(rec, withSession(httptest.NewRequest(http.MethodDelete, "/me/preferences", nil), "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err = store.Load(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), stored)

	rec = httptest.NewRecorder()
	h.HandleGet(rec, httptest.NewRequest(http.MethodGet, "/me/preferences", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareLoadsIntoContext(t *testing.T) {
	store := NewMemoryStore()
	prefs := Defaults()
	prefs.Language = "de"
	require.NoError(t, store.Save(context.Background(), "u1", prefs))

	var seen Preferences
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})
	Middleware(store, logging.New("error"))(next).ServeHTTP(httptest.NewRecorder(),
		withSession(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
	assert.Equal(t, "de", seen.Language)

	Middleware(store, logging.New("error"))(next).ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, Defaults(), seen, "anonymous requests see defaults")
}
