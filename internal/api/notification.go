package api

import (
	"net/http"

	"github.com/bher20/tarifmanager/internal/storage"
)

// secretMask replaces stored secrets in responses. Sending it back on PUT
// keeps the stored value.
const secretMask = "********"

func (s *server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Notify.GetConfig(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cfg == nil {
		cfg = &storage.EmailConfig{}
	}
	out := *cfg
	if out.Password != "" {
		out.Password = secretMask
	}
	if out.APIKey != "" {
		out.APIKey = secretMask
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handlePutEmail(w http.ResponseWriter, r *http.Request) {
	var req storage.EmailConfig
	if !decode(w, r, &req) {
		return
	}

	current, err := s.Notify.GetConfig(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if current != nil {
		req.ID, req.CreatedAt = current.ID, current.CreatedAt
	}
	unmask(&req, current)

	if err := s.Notify.SaveConfig(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type testEmailRequest struct {
	Config storage.EmailConfig `json:"config"`
	To     string              `json:"to"`
}

func (s *server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, `"to" is required`)
		return
	}
	current, err := s.Notify.GetConfig(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unmask(&req.Config, current)
	if err := s.Notify.TestConfig(r.Context(), req.Config, req.To); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unmask restores secrets the client echoed back masked.
func unmask(cfg, current *storage.EmailConfig) {
	if current == nil {
		return
	}
	if cfg.Password == secretMask {
		cfg.Password = current.Password
	}
	if cfg.APIKey == secretMask {
		cfg.APIKey = current.APIKey
	}
}
