package engine

import (
	"encoding/json"
	"net/http"

	"memhybrid.app/pkg/middleware"
)

// healthHandler reports the Degradation Controller's current mode so an
// operator curling the endpoint sees the same state sync_status reports.
var healthHandler http.Handler = middleware.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	s, err := currentService()
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "initializing"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"mode":   string(s.degr.Mode()),
	})
}))

// Health is the one raw (non-typed) endpoint this service exposes, wrapped
// in middleware.RequestLogger per its own doc comment - every other engine
// RPC is a typed Encore handler instead.
//
//encore:api public raw method=GET path=/health
func Health(w http.ResponseWriter, req *http.Request) {
	healthHandler.ServeHTTP(w, req)
}
