package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/tarifmanager/internal/auth"
	"github.com/bher20/tarifmanager/internal/notification"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/storage"
	"github.com/bher20/tarifmanager/internal/tariff"
)

type fixture struct {
	t     *testing.T
	mux   http.Handler
	store *storage.MemoryStorage
	auth  *auth.Service
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()
	store := storage.NewMemory()
	svc := rates.NewServiceWithStorage(rates.Config{
		Location: time.UTC,
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) },
	}, store, nil)

	f := &fixture{t: t, store: store}
	deps := Deps{Rates: svc, Storage: store, Notify: notification.NewService(store), Logger: zerolog.Nop()}
	if withAuth {
		a, err := auth.NewService(store)
		require.NoError(t, err)
		f.auth, deps.Auth = a, a
	}
	f.mux = NewMux(deps)
	return f
}

// do sends body as JSON unless a Content-Type header is given in hdr
// (name, value pairs).
func (f *fixture) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(role string) string {
	f.t.Helper()
	ctx := context.Background()
	u, err := f.auth.Register(ctx, "user-"+role, "pw-"+role, role)
	require.NoError(f.t, err)
	_, raw, err := f.auth.CreateToken(ctx, u.ID, "test", role, nil)
	require.NoError(f.t, err)
	return raw
}

func nightSchedule() schedule.Config {
	c := schedule.New()
	for s := range c.Lines {
		for d := range c.Lines[s] {
			c.Lines[s][d].OffPeak[0] = schedule.Window{Start: 22 * 60, Duration: 8 * 60}
		}
	}
	return c
}

func putNight(t *testing.T, f *fixture, hdr ...string) {
	t.Helper()
	rec := f.do(http.MethodPut, "/schedules/default", `{"encoded":"`+schedule.Encode(nightSchedule())+`"}`, hdr...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, false)
	for path, want := range map[string]string{"/healthz": "ok", "/livez": "live", "/readyz": "ready"} {
		rec := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, want, rec.Body.String(), path)
	}

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/ui/", rec.Header().Get("Location"))
}

func TestListSchedules(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/schedules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]rates.ScheduleInfo](t, rec)
	assert.Equal(t, []rates.ScheduleInfo{{Key: "default", Name: "Tarification"}}, list)
}

func TestPutSchedule_JSONConfig(t *testing.T) {
	f := newFixture(t, false)
	body, err := json.Marshal(map[string]any{"config": nightSchedule()})
	require.NoError(t, err)

	rec := f.do(http.MethodPut, "/schedules/default", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/schedules/default", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[scheduleResponse](t, rec)
	assert.Len(t, got.Encoded, schedule.EncodedLen)
	assert.Equal(t, 22*60, got.Config.Lines[0][6].OffPeak[0].Start)
	assert.False(t, got.Draft)
}

func TestPutSchedule_TextPlain(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPut, "/schedules/default", schedule.Encode(nightSchedule())+"\n", "Content-Type", "text/plain; charset=utf-8")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPut, "/schedules/default", "too short", "Content-Type", "text/plain")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutSchedule_RejectsBadBodies(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/schedules/default", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/schedules/default", `{"bogus":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/schedules/default", `{"encoded":"xyz"}`).Code)
}

func TestPutSchedule_RejectsOutOfRangeConfig(t *testing.T) {
	f := newFixture(t, false)
	putNight(t, f)

	bad := nightSchedule()
	bad.Lines[1][2].OffPeak[1] = schedule.Window{Start: 60, Duration: 700}
	body, err := json.Marshal(map[string]any{"config": bad})
	require.NoError(t, err)
	rec := f.do(http.MethodPut, "/schedules/default", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "duration=700")

	rec = f.do(http.MethodGet, "/schedules/default", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[scheduleResponse](t, rec)
	assert.Equal(t, schedule.Encode(nightSchedule()), got.Encoded)
}

func TestUnknownScheduleIs404(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/schedules/nope", "/schedules/nope/status", "/schedules/nope/timeline", "/schedules/nope/transitions"} {
		rec := f.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, decodeBody[errorBody](t, rec).Error, "unknown schedule", path)
	}
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/schedules/nope/draft", "").Code)
}

func TestEditDraftCommit(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(http.MethodPost, "/schedules/default/edit", `{"op":"toggle_seasonality"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft := decodeBody[scheduleResponse](t, rec)
	assert.True(t, draft.Draft)
	assert.True(t, draft.Config.Seasonal)

	rec = f.do(http.MethodGet, "/schedules/default", "")
	assert.False(t, decodeBody[scheduleResponse](t, rec).Config.Seasonal, "draft is not persisted")

	rec = f.do(http.MethodPost, "/schedules/default/edit",
		`{"ops":[{"op":"toggle_day_specific"},{"op":"toggle_day","day":"sat"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[scheduleResponse](t, rec).Config.DayMask[5])

	rec = f.do(http.MethodPost, "/schedules/default/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decodeBody[scheduleResponse](t, rec)
	assert.True(t, saved.Config.Seasonal)
	assert.True(t, saved.Config.DaySpecific)

	stored, err := f.store.GetSchedule(context.Background(), "default")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, saved.Encoded, stored.Encoded)
}

func TestEdit_Rejected(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodPost, "/schedules/default/edit", `{"op":"step_slots","scope":"default","delta":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorBody](t, rec).Error, "invalid operation")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/schedules/default/edit", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/schedules/default/edit", `{"op":"toggle_day","day":"someday"}`).Code)
}

func TestDiscardDraft(t *testing.T) {
	f := newFixture(t, false)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/schedules/default/edit", `{"op":"toggle_seasonality"}`).Code)

	rec := f.do(http.MethodDelete, "/schedules/default/draft", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/schedules/default/draft", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[scheduleResponse](t, rec).Config.Seasonal)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, false)
	putNight(t, f)

	rec := f.do(http.MethodGet, "/schedules/default/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[rates.Snapshot](t, rec)
	assert.Equal(t, tariff.Peak, snap.Status)
	require.NotNil(t, snap.Next)
	assert.Equal(t, "22:00", snap.Next.Clock)
	assert.Equal(t, 600, snap.Next.MinutesUntil)

	rec = f.do(http.MethodGet, "/schedules/default/status?at=2025-07-15T23:30:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap = decodeBody[rates.Snapshot](t, rec)
	assert.Equal(t, tariff.OffPeak, snap.Status)
	assert.Equal(t, "06:00", snap.Next.Clock)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/schedules/default/status?at=yesterday", "").Code)
}

func TestTimeline(t *testing.T) {
	f := newFixture(t, false)
	putNight(t, f)

	rec := f.do(http.MethodGet, "/schedules/default/timeline?day=sat", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tl := decodeBody[timelineResponse](t, rec)
	assert.Equal(t, "sat", tl.Day)
	assert.Empty(t, tl.Season)
	require.Len(t, tl.Intervals, 1)
	assert.Equal(t, tariff.Interval{Start: 1320, Duration: 480, Kind: tariff.OffPeak}, tl.Intervals[0])
	assert.Len(t, tl.Segments, 2, "night window is split at midnight")

	rec = f.do(http.MethodGet, "/schedules/default/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tue", decodeBody[timelineResponse](t, rec).Day)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/schedules/default/timeline?season=spring", "").Code)
}

func TestTransitions(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	base := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.RecordTransition(ctx, storage.Transition{
			ScheduleKey: "default", From: "HP", To: "HC", At: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := f.do(http.MethodGet, "/schedules/default/transitions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]storage.Transition](t, rec)
	require.Len(t, list, 2)
	assert.True(t, list[0].At.After(list[1].At), "newest first")

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/schedules/default/transitions?limit=-1", "").Code)
}

func TestLive(t *testing.T) {
	f := newFixture(t, false)
	putNight(t, f)

	rec := f.do(http.MethodPost, "/live", `{"value":"HCJB"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[liveResponse](t, rec)
	assert.True(t, resp.Accepted)
	require.NotNil(t, resp.Live)
	assert.Equal(t, tariff.TempoBleu, resp.Live.Tempo)

	snap := decodeBody[rates.Snapshot](t, f.do(http.MethodGet, "/schedules/default/status", ""))
	assert.Equal(t, tariff.OffPeak, snap.Status)
	assert.Equal(t, tariff.Peak, snap.Computed)

	rec = f.do(http.MethodPost, "/live", "unavailable", "Content-Type", "text/plain")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[liveResponse](t, rec).Accepted)

	snap = decodeBody[rates.Snapshot](t, f.do(http.MethodGet, "/schedules/default/status", ""))
	assert.Equal(t, tariff.Peak, snap.Status)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/live", `{"schedule":"nope","value":"HP.."}`).Code)
}

func TestJobs(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	last := time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.UpdateScheduledJob(ctx, "evaluate", last, time.Second, true, ""))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/jobs/evaluate/interval", `{"interval":"often"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/jobs/evaluate/interval", `{"interval":"0"}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, "/jobs/nope/interval", `{"interval":"30"}`).Code)

	rec := f.do(http.MethodPut, "/jobs/evaluate/interval", `{"interval":"30"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	setting, err := f.store.GetSetting(ctx, "evaluate_interval")
	require.NoError(t, err)
	assert.Equal(t, "30", setting)

	rec = f.do(http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decodeBody[[]jobView](t, rec)
	require.Len(t, jobs, 1)
	assert.Equal(t, "30", jobs[0].Interval)
	require.NotNil(t, jobs[0].NextRun)
	assert.True(t, jobs[0].NextRun.Equal(last.Add(30*time.Second)))
}

func TestEmailSettings_MasksSecrets(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec := f.do(http.MethodPut, "/settings/email",
		`{"provider":"smtp","host":"mail.local","port":587,"password":"s3cret","from_address":"tarif@local","recipients":"a@local","enabled":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/settings/email", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[storage.EmailConfig](t, rec)
	assert.Equal(t, secretMask, got.Password)
	assert.Equal(t, "mail.local", got.Host)

	rec = f.do(http.MethodPut, "/settings/email",
		`{"provider":"smtp","host":"mail2.local","port":587,"password":"********","from_address":"tarif@local","recipients":"a@local","enabled":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := f.store.GetEmailConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "s3cret", stored.Password)
	assert.Equal(t, "mail2.local", stored.Host)
	assert.Equal(t, got.ID, stored.ID)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/settings/email", `{"provider":"pigeon"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/settings/email/test", `{"config":{"provider":"smtp"}}`).Code)
}

func TestAuth_RolesAndTokens(t *testing.T) {
	f := newFixture(t, true)
	viewer := "Bearer " + f.token(auth.RoleViewer)
	editor := "Bearer " + f.token(auth.RoleEditor)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/schedules", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/schedules", "", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/schedules", "", "Authorization", viewer).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	body := `{"encoded":"` + schedule.Encode(nightSchedule()) + `"}`
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPut, "/schedules/default", body, "Authorization", viewer).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPut, "/schedules/default", body, "Authorization", editor).Code)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/jobs", "", "Authorization", editor).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/settings/email", "", "Authorization", editor).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/live", `{"value":"HC.."}`, "Authorization", editor).Code)
}

func TestOpenAPIAndUI(t *testing.T) {
	f := newFixture(t, false)
	rec := f.do(http.MethodGet, "/openapi/openapi.yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/schedules/{key}/status")

	rec = f.do(http.MethodGet, "/openapi/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/openapi/secrets.txt", "").Code)

	rec = f.do(http.MethodGet, "/ui/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tarifmanager")
}
