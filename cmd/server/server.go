package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/campaignrules/campaigns"
	"github.com/liamcoop/campaignrules/evaluation"
	"github.com/liamcoop/campaignrules/internal/app"
	"github.com/liamcoop/campaignrules/internal/logger"
	"github.com/liamcoop/campaignrules/internal/metrics"
	"github.com/liamcoop/campaignrules/rules"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type Server struct {
	store     campaigns.Store
	storeKind string
	service   *evaluation.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	router    *chi.Mux
}

// NewServer wires the HTTP API on top of a store and an evaluation service
func NewServer(store campaigns.Store, storeKind string, service *evaluation.Service, m *metrics.Metrics) *Server {
	s := &Server{
		store:     store,
		storeKind: storeKind,
		service:   service,
		metrics:   m,
		logger:    logger.Logger.With("component", "http"),
	}

	s.setupRoutes()

	return s
}

// NewServerWithDB creates a server over PostgreSQL with the built-in rule chain
func NewServerWithDB(db *sql.DB) (*Server, error) {
	engine, err := app.BuildEngine("")
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	store := campaigns.NewPostgresStore(db)
	service := evaluation.NewService(engine, store, evaluation.WithRecorder(m))

	return NewServer(store, "postgres", service, m), nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/rules", s.handleListRules)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", s.handleListCampaigns)
			r.Post("/", s.handleCreateCampaign)
			r.Post("/evaluate-all", s.handleEvaluateAll)

			r.Route("/{campaignId}", func(r chi.Router) {
				r.Get("/", s.handleGetCampaign)
				r.Patch("/", s.handleUpdateCampaign)
				r.Delete("/", s.handleDeleteCampaign)

				// Schedule management
				r.Get("/schedule", s.handleGetSchedule)
				r.Put("/schedule", s.handleReplaceSchedule)
				r.Delete("/schedule", s.handleDeleteSchedule)

				// Evaluation
				r.Post("/evaluate", s.handleEvaluate)
				r.Get("/evaluation-history", s.handleHistory)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger writes one structured line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Store:  s.storeKind,
		Rules:  len(s.service.Rules()),
		Time:   time.Now().UTC(),
	}

	if err := s.store.Ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: s.service.Rules()})
}

// List campaigns handler
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pagination(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pagination", err)
		return
	}

	filter := campaigns.CampaignFilter{Skip: skip, Limit: limit}
	if filter.IsManaged, err = optionalBool(r, "is_managed"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid is_managed filter", err)
		return
	}
	if filter.NeedsSync, err = optionalBool(r, "needs_sync"); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid needs_sync filter", err)
		return
	}

	list, total, err := s.store.ListCampaigns(r.Context(), filter)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list campaigns", err)
		return
	}

	resp := CampaignsListResponse{
		Campaigns: make([]CampaignResponse, 0, len(list)),
		Total:     total,
		Skip:      skip,
		Limit:     limit,
	}
	for _, c := range list {
		resp.Campaigns = append(resp.Campaigns, newCampaignResponse(c))
	}

	respondJSON(w, http.StatusOK, resp)
}

// Create campaign handler
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	c := req.campaign()
	if err := campaigns.ValidateCampaign(c); err != nil {
		s.respondStoreError(w, "invalid campaign", err)
		return
	}

	if err := s.store.CreateCampaign(r.Context(), c); err != nil {
		s.respondStoreError(w, "failed to create campaign", err)
		return
	}

	respondJSON(w, http.StatusCreated, newCampaignResponse(c))
}

// Get campaign handler
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCampaign(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		s.respondStoreError(w, "failed to get campaign", err)
		return
	}

	respondJSON(w, http.StatusOK, newCampaignResponse(c))
}

// Update campaign handler
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req UpdateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	c, err := s.store.GetCampaign(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		s.respondStoreError(w, "failed to get campaign", err)
		return
	}

	req.apply(c)
	if err := campaigns.ValidateCampaign(c); err != nil {
		s.respondStoreError(w, "invalid campaign", err)
		return
	}

	if err := s.store.UpdateCampaign(r.Context(), c); err != nil {
		s.respondStoreError(w, "failed to update campaign", err)
		return
	}

	respondJSON(w, http.StatusOK, newCampaignResponse(c))
}

// Delete campaign handler
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCampaign(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		s.respondStoreError(w, "failed to delete campaign", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get schedule handler
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCampaign(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		s.respondStoreError(w, "failed to get campaign", err)
		return
	}

	slots, err := s.store.ListSlots(r.Context(), c.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to get schedule", err)
		return
	}

	respondJSON(w, http.StatusOK, newScheduleResponse(c.ID, c.ScheduleEnabled, slots))
}

// Replace schedule handler
func (s *Server) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := campaigns.ValidateSlots(req.Slots); err != nil {
		s.respondStoreError(w, "invalid schedule", err)
		return
	}

	stored, err := s.store.ReplaceSlots(r.Context(), campaignID, req.Slots)
	if err != nil {
		s.respondStoreError(w, "failed to replace schedule", err)
		return
	}

	respondJSON(w, http.StatusOK, newScheduleResponse(campaignID, len(stored) > 0, stored))
}

// Delete schedule handler
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSlots(r.Context(), chi.URLParam(r, "campaignId")); err != nil {
		s.respondStoreError(w, "failed to delete schedule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Evaluate one campaign handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	dryRun, at, err := evaluationParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid evaluation parameters", err)
		return
	}

	outcome, err := s.service.EvaluateCampaign(r.Context(), chi.URLParam(r, "campaignId"), at, dryRun)
	if err != nil {
		s.respondEvaluationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

// Evaluate all managed campaigns handler
func (s *Server) handleEvaluateAll(w http.ResponseWriter, r *http.Request) {
	dryRun, at, err := evaluationParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid evaluation parameters", err)
		return
	}

	batch, err := s.service.EvaluateAll(r.Context(), at, dryRun)
	if err != nil {
		s.respondEvaluationError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, batch)
}

// Evaluation history handler
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")

	skip, limit, err := pagination(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid pagination", err)
		return
	}

	entries, total, err := s.service.History(r.Context(), campaignID, skip, limit)
	if err != nil {
		s.respondEvaluationError(w, err)
		return
	}
	if entries == nil {
		entries = []*campaigns.EvaluationLogEntry{}
	}

	respondJSON(w, http.StatusOK, HistoryResponse{
		CampaignID: campaignID,
		Entries:    entries,
		Total:      total,
		Skip:       skip,
		Limit:      limit,
	})
}

func newScheduleResponse(campaignID string, enabled bool, slots []rules.ScheduleSlot) ScheduleResponse {
	if slots == nil {
		slots = []rules.ScheduleSlot{}
	}
	return ScheduleResponse{
		CampaignID:      campaignID,
		ScheduleEnabled: enabled,
		Slots:           slots,
	}
}

// pagination reads skip (>= 0) and limit (1..1000, default 100)
func pagination(r *http.Request) (skip, limit int, err error) {
	limit = defaultPageLimit

	if v := r.URL.Query().Get("skip"); v != "" {
		skip, err = strconv.Atoi(v)
		if err != nil || skip < 0 {
			return 0, 0, fmt.Errorf("skip must be a non-negative integer, got %q", v)
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d, got %q", maxPageLimit, v)
		}
	}
	return skip, limit, nil
}

func optionalBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return &b, nil
}

// evaluationParams reads dry_run and the optional RFC 3339 evaluation time "at"
func evaluationParams(r *http.Request) (dryRun bool, at time.Time, err error) {
	dry, err := optionalBool(r, "dry_run")
	if err != nil {
		return false, time.Time{}, err
	}
	if dry != nil {
		dryRun = *dry
	}

	if v := r.URL.Query().Get("at"); v != "" {
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("at must be an RFC 3339 timestamp, got %q", v)
		}
	}
	return dryRun, at, nil
}

func (s *Server) respondStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, campaigns.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "campaign not found", err)
	case errors.Is(err, campaigns.ErrValidation):
		s.respondError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, campaigns.ErrConflict):
		s.respondError(w, http.StatusConflict, message, err)
	default:
		s.respondError(w, http.StatusInternalServerError, message, err)
	}
}

func (s *Server) respondEvaluationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, evaluation.ErrCampaignNotFound):
		s.respondError(w, http.StatusNotFound, "campaign not found", err)
	default:
		s.respondError(w, http.StatusInternalServerError, "evaluation failed", err)
	}
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}

	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
		s.logger.Error(message, "status", status, "error", err)
	case status >= 400:
		logger.WarnHttp4xx()
	}

	respondJSON(w, status, response)
}
