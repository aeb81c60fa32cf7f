package api

import (
	"net/http"
	"time"

	"github.com/pandodao/wallet-core/core"
)

func (s *Server) serviceStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{"running": s.registry.IsRunning()})
}

type startRequest struct {
	Path string `json:"path"`
}

func (s *Server) startService(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 && !bind(w, r, &req) {
		return
	}

	if req.Path == "" {
		req.Path = s.cfg.StoragePath
	}

	if err := s.registry.Start(r.Context(), req.Path); err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"running": true})
}

func (s *Server) stopService(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Stop(r.Context()); err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"running": false})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	var settings core.Settings
	err := s.registry.Read(r.Context(), func(bg core.Background) error {
		settings = bg.Settings()
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, settings)
}

// settingsRequest carries a partial update; omitted fields keep their
// current value.
type settingsRequest struct {
	Theme         *string        `json:"theme"`
	Notifications *bool          `json:"notifications"`
	Locale        *string        `json:"locale"`
	SessionTTL    *time.Duration `json:"session_ttl"`
}

func (req *settingsRequest) apply(settings *core.Settings) {
	if req.Theme != nil {
		settings.Theme = *req.Theme
	}
	if req.Notifications != nil {
		settings.Notifications = *req.Notifications
	}
	if req.Locale != nil {
		settings.Locale = *req.Locale
	}
	if req.SessionTTL != nil {
		settings.SessionTTL = *req.SessionTTL
	}
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !bind(w, r, &req) {
		return
	}

	var settings core.Settings
	err := s.registry.Write(r.Context(), func(bg core.Background) error {
		settings = bg.Settings()
		req.apply(&settings)
		return bg.SetSettings(r.Context(), settings)
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, settings)
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	var providers []*core.Provider
	err := s.registry.Read(r.Context(), func(bg core.Background) error {
		providers = bg.Providers()
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, providers)
}
