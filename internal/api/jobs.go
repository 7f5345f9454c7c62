package api

import (
	"net/http"
	"time"

	"github.com/bher20/tarifmanager/internal/cron"
	"github.com/bher20/tarifmanager/internal/storage"
)

// managedJobs are the jobs whose interval may be changed over the API.
var managedJobs = map[string]string{
	cron.EvaluateJobName:  cron.EvaluateSettingKey,
	cron.RetentionJobName: cron.RetentionSettingKey,
}

type jobView struct {
	storage.ScheduledJob
	Interval string     `json:"interval,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.Storage == nil {
		writeJSON(w, http.StatusOK, []jobView{})
		return
	}
	jobs, err := s.Storage.ListScheduledJobs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{ScheduledJob: j}
		if key, ok := managedJobs[j.Name]; ok {
			interval, err := s.Storage.GetSetting(r.Context(), key)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			if interval != "" {
				next := cron.NextRun(interval, j.LastRunAt)
				v.Interval, v.NextRun = interval, &next
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

type intervalRequest struct {
	Interval string `json:"interval"`
}

// handleSetJobInterval overrides the interval of a job with a number of
// seconds or a cron expression. Running workers pick it up on their next
// tick.
func (s *server) handleSetJobInterval(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	key, ok := managedJobs[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown job "+name)
		return
	}
	if s.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "no storage configured")
		return
	}
	var req intervalRequest
	if !decode(w, r, &req) {
		return
	}
	if err := cron.ValidInterval(req.Interval); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Storage.SetSetting(r.Context(), key, req.Interval); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info().Str("job", name).Str("interval", req.Interval).Msg("job interval updated")
	writeJSON(w, http.StatusOK, intervalRequest{Interval: req.Interval})
}
