package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/tarifmanager/internal/calendar"
	"github.com/bher20/tarifmanager/internal/metrics"
	"github.com/bher20/tarifmanager/internal/rates"
	"github.com/bher20/tarifmanager/internal/schedule"
	"github.com/bher20/tarifmanager/internal/tariff"
)

const (
	defaultTransitionLimit = 50
	maxTransitionLimit     = 500
)

type scheduleResponse struct {
	Key     string          `json:"key"`
	Name    string          `json:"name"`
	Draft   bool            `json:"draft,omitempty"`
	Encoded string          `json:"encoded"`
	Config  schedule.Config `json:"config"`
}

func (s *server) scheduleView(key string, cfg schedule.Config, draft bool) scheduleResponse {
	info, _ := s.Rates.Lookup(key)
	return scheduleResponse{Key: key, Name: info.Name, Draft: draft, Encoded: schedule.Encode(cfg), Config: cfg}
}

func (s *server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Rates.Schedules())
}

func (s *server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg, err := s.Rates.Load(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleView(key, cfg, false))
}

type putScheduleRequest struct {
	Encoded string           `json:"encoded,omitempty"`
	Config  *schedule.Config `json:"config,omitempty"`
}

// handlePutSchedule replaces a schedule. The body is either the encoded
// record as text/plain or a JSON object carrying "encoded" or "config".
func (s *server) handlePutSchedule(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var cfg schedule.Config
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/plain" {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if cfg, err = schedule.Decode(strings.TrimSpace(string(raw))); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		var req putScheduleRequest
		if !decode(w, r, &req) {
			return
		}
		switch {
		case req.Encoded != "":
			var err error
			if cfg, err = schedule.Decode(req.Encoded); err != nil {
				s.fail(w, r, err)
				return
			}
		case req.Config != nil:
			if err := req.Config.Validate(); err != nil {
				s.fail(w, r, err)
				return
			}
			cfg = *req.Config
		default:
			writeError(w, http.StatusBadRequest, `body needs "encoded" or "config"`)
			return
		}
	}

	saved, err := s.Rates.Save(r.Context(), key, cfg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleView(key, saved, false))
}

func (s *server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg, err := s.Rates.Draft(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleView(key, cfg, true))
}

func (s *server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := s.Rates.Lookup(key); !ok {
		s.fail(w, r, rates.ErrUnknownSchedule)
		return
	}
	s.Rates.Discard(key)
	w.WriteHeader(http.StatusNoContent)
}

// editRequest accepts either {"ops": [...]} or a single inline op.
type editRequest struct {
	Ops []schedule.Op `json:"ops,omitempty"`
	schedule.Op
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req editRequest
	if !decode(w, r, &req) {
		return
	}
	ops := req.Ops
	if req.Kind != "" {
		ops = append(ops, req.Op)
	}
	if len(ops) == 0 {
		writeError(w, http.StatusBadRequest, "no operation given")
		return
	}

	cfg, err := s.Rates.Edit(r.Context(), key, ops...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleView(key, cfg, true))
}

func (s *server) handleCommit(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg, err := s.Rates.Commit(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduleView(key, cfg, false))
}

// handleStatus evaluates the schedule now, or at the RFC 3339 instant given
// in ?at=.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	at := s.Rates.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at: "+err.Error())
			return
		}
		at = t
	}
	snap, err := s.Rates.Snapshot(r.Context(), key, at)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type timelineResponse struct {
	Day       string             `json:"day"`
	DayLabel  string             `json:"day_label"`
	Season    string             `json:"season,omitempty"`
	Intervals []tariff.Interval  `json:"intervals"`
	Segments  []tariff.Segment   `json:"segments"`
	Labels    []tariff.TimeLabel `json:"labels"`
}

// handleTimeline returns the bar of one day category. Without ?day= it is
// today's; ?season= picks the half of a seasonal schedule.
func (s *server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	cfg, err := s.Rates.Load(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	now := s.Rates.Now()
	day := calendar.Classify(now)
	season := cfg.SeasonFor(now)
	if v := q.Get("day"); v != "" {
		if day, err = calendar.ParseDay(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if v := q.Get("season"); v != "" {
		if season, err = calendar.ParseSeason(v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ivs := cfg.IntervalsFor(season, day)
	if ivs == nil {
		ivs = []tariff.Interval{}
	}
	resp := timelineResponse{
		Day:       day.String(),
		DayLabel:  day.Label(),
		Intervals: ivs,
		Segments:  tariff.Segments(ivs),
		Labels:    tariff.Labels(ivs),
	}
	if cfg.Seasonal {
		resp.Season = season.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, ok := s.Rates.Lookup(key); !ok {
		s.fail(w, r, rates.ErrUnknownSchedule)
		return
	}
	limit := defaultTransitionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxTransitionLimit)
	}
	if s.Storage == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	list, err := s.Storage.ListTransitions(r.Context(), key, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if list == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type liveRequest struct {
	Schedule string `json:"schedule,omitempty"`
	Value    string `json:"value"`
}

type liveResponse struct {
	Accepted bool               `json:"accepted"`
	Live     *tariff.LiveStatus `json:"live,omitempty"`
}

// handleLive records a meter tariff reading. An unrecognized value clears
// the reading so the computed status shows again.
func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	var req liveRequest
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/plain" {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		req.Value = strings.TrimSpace(string(raw))
	} else if !decode(w, r, &req) {
		return
	}
	if req.Schedule != "" {
		if _, ok := s.Rates.Lookup(req.Schedule); !ok {
			s.fail(w, r, rates.ErrUnknownSchedule)
			return
		}
	}

	ls, ok := s.Rates.Live().Set(req.Schedule, req.Value)
	result := "ignored"
	resp := liveResponse{Accepted: ok}
	if ok {
		result = "accepted"
		resp.Live = &ls
	}
	metrics.LiveReadingsTotal.WithLabelValues("http", result).Inc()
	s.log.Debug().Str("value", req.Value).Str("result", result).Msg("live reading")
	writeJSON(w, http.StatusOK, resp)
}
