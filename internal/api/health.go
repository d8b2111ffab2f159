package api

import "net/http"

// handleHealthz reports liveness. It never touches storage: a room
// adapter outage should not make the load balancer pull this instance.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
