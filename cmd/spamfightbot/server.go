package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"spamfightbot/internal/constants"
	"spamfightbot/internal/middleware"
	"spamfightbot/internal/models"
	"spamfightbot/internal/service"
	"spamfightbot/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// pairStore is the part of the pairing registry the admin API exposes
type pairStore interface {
	List(ctx context.Context) ([]models.Pair, error)
	Unpair(ctx context.Context, groupID int64) error
}

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	config models.ServerConfig
	pairs  pairStore
	server *http.Server
}

func NewServer(config models.ServerConfig, pairs pairStore, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		config: config,
		pairs:  pairs,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/pairs", s.handleListPairs()).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/pairs").Subrouter()
	admin.Use(middleware.RequireToken(s.config.AdminToken, s.logger))
	admin.HandleFunc("/{group:-?[0-9]+}", s.handleUnpair()).Methods(http.MethodDelete)
}

func (s *Server) Start() error {
	s.logger.Infof("Starting admin server on %s", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleListPairs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, err := s.pairs.List(r.Context())
		if err != nil {
			s.logger.WithError(err).WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
				Error("Failed to list pairings")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, r, pairs)
	}
}

func (s *Server) handleUnpair() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := strconv.ParseInt(mux.Vars(r)["group"], 10, 64)
		if err != nil {
			http.Error(w, "Invalid group id", http.StatusBadRequest)
			return
		}

		fields := logrus.Fields{
			service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			service.LogFieldGroupID:   groupID,
		}
		if err := s.pairs.Unpair(r.Context(), groupID); err != nil {
			s.logger.WithError(err).WithFields(fields).Error("Failed to remove pairing")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		s.logger.WithFields(fields).Info("Pairing removed over admin API")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
			service.LogFieldURL:       r.URL.Path,
		}).WithError(err).Error("Failed to encode response")
	}
}
