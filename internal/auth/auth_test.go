package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/tarifmanager/internal/storage"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	st := storage.NewMemory()
	svc, err := NewService(st)
	require.NoError(t, err)
	return svc, st
}

func TestEnforce_DefaultRoles(t *testing.T) {
	svc, _ := newTestService(t)
	cases := []struct {
		role, obj, act string
		want           bool
	}{
		{RoleAdmin, ObjJobs, ActRead, true},
		{RoleAdmin, ObjSchedules, ActWrite, true},
		{RoleEditor, ObjSchedules, ActWrite, true},
		{RoleEditor, ObjLive, ActWrite, true},
		{RoleEditor, ObjJobs, ActRead, false},
		{RoleViewer, ObjSchedules, ActRead, true},
		{RoleViewer, ObjStatus, ActRead, true},
		{RoleViewer, ObjSchedules, ActWrite, false},
		{RoleViewer, ObjLive, ActWrite, false},
	}
	for _, c := range cases {
		got, err := svc.Enforce(c.role, c.obj, c.act)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s %s %s", c.role, c.obj, c.act)
	}
}

func TestRegisterAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice", "s3cret", RoleEditor)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other", RoleViewer)
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = svc.Register(ctx, "bob", "pw", "root")
	assert.ErrorIs(t, err, ErrUnknownRole)

	got, err := svc.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	allowed, err := svc.Enforce(u.ID, ObjSchedules, ActWrite)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestTokens(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	tok, raw, err := svc.CreateToken(ctx, "u1", "ha", RoleViewer, nil)
	require.NoError(t, err)
	assert.NotEqual(t, raw, tok.TokenHash)

	got, err := svc.ValidateToken(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)

	stored, err := st.GetTokenByHash(ctx, tok.TokenHash)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)

	_, err = svc.ValidateToken(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := time.Now().Add(-time.Hour)
	_, expired, err := svc.CreateToken(ctx, "u1", "old", RoleViewer, &past)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMiddleware_RequirePermission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, viewer, err := svc.CreateToken(ctx, "u1", "viewer", RoleViewer, nil)
	require.NoError(t, err)
	_, editor, err := svc.CreateToken(ctx, "u2", "editor", RoleEditor, nil)
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := svc.Middleware(svc.RequirePermission(ObjSchedules, ActWrite, ok))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodPut, "/schedules/default", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer nope"))
	assert.Equal(t, http.StatusForbidden, do("Bearer "+viewer))
	assert.Equal(t, http.StatusNoContent, do("Bearer "+editor))
	assert.Equal(t, http.StatusNoContent, do("bearer "+editor))
}

func TestMiddleware_DeniedResponses(t *testing.T) {
	svc, _ := newTestService(t)
	h := svc.Middleware(svc.RequirePermission(ObjJobs, ActRead, http.NotFoundHandler()))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	_, viewer, err := svc.CreateToken(context.Background(), "u1", "viewer", RoleViewer, nil)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"error":"viewer may not read jobs"}`, rec.Body.String())
}

func TestParseExpiration(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, loc)

	exp, err := ParseExpiration("never", now)
	require.NoError(t, err)
	assert.Nil(t, exp)

	exp, err = ParseExpiration("30d", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*24*time.Hour), *exp)

	exp, err = ParseExpiration("2w", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(14*24*time.Hour), *exp)

	exp, err = ParseExpiration("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), *exp)

	exp, err = ParseExpiration("25/12/2025 14:30", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 25, 14, 30, 0, 0, loc), *exp)

	_, err = ParseExpiration("01/01/2020", now)
	assert.ErrorContains(t, err, "future")
	_, err = ParseExpiration("soon", now)
	assert.Error(t, err)
	_, err = ParseExpiration("0d", now)
	assert.Error(t, err)
}

func TestAdapter_PersistsPolicies(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewGormStorage("sqlite", filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	_, err = NewService(st)
	require.NoError(t, err)
	rules, err := st.LoadCasbinRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(defaultPolicies))

	// A second service loads the stored rules instead of duplicating them.
	svc, err := NewService(st)
	require.NoError(t, err)
	rules, err = st.LoadCasbinRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(defaultPolicies))

	allowed, err := svc.Enforce(RoleViewer, ObjStatus, ActRead)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, NewAdapter(st).RemoveFilteredPolicy("p", "p", 0, RoleViewer))
	rules, err = st.LoadCasbinRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, len(defaultPolicies)-2)
}
