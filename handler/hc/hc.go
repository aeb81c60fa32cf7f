package hc

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler reports the build version, uptime and whether the wallet
// service is currently started.
func Handler(version string, running func() bool) http.Handler {
	t := time.Now()
	fn := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version": version,
			"uptime":  time.Since(t).String(),
			"running": running(),
		})
	}

	return http.HandlerFunc(fn)
}
