package main

import (
	"net/http"

	"spamfightbot/internal/metrics"
	"spamfightbot/internal/service"
	"spamfightbot/internal/tracing"
)

// handleMetrics returns current application metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
			Debug("Serving metrics endpoint")
		s.writeJSON(w, r, metrics.GetSnapshot())
	}
}
