package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/captjreacher/pimp-my-brand/internal/access"
	"github.com/captjreacher/pimp-my-brand/internal/audit"
	"github.com/captjreacher/pimp-my-brand/internal/content"
	"github.com/captjreacher/pimp-my-brand/internal/database"
	"github.com/captjreacher/pimp-my-brand/internal/errs"
	"github.com/captjreacher/pimp-my-brand/internal/events"
	"github.com/captjreacher/pimp-my-brand/internal/metrics"
	"github.com/captjreacher/pimp-my-brand/internal/middleware"
	"github.com/captjreacher/pimp-my-brand/internal/modqueue"
	"github.com/captjreacher/pimp-my-brand/internal/notify"
	"github.com/captjreacher/pimp-my-brand/internal/orchestrator"
	"github.com/captjreacher/pimp-my-brand/internal/pipeline"
	"github.com/captjreacher/pimp-my-brand/internal/risk"
	"github.com/captjreacher/pimp-my-brand/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Configure zerolog
	// Set log level from environment (default: info)
	logLevel := os.Getenv("LOG_LEVEL")
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Use pretty console logging in development, JSON in production
	if os.Getenv("LOG_FORMAT") == "json" {
		// Production: JSON logs
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Development: pretty console logs
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	log.Info().Msg("Starting moderation service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing is opt-in: exporting to a collector that isn't there just
	// fills the logs with retry noise.
	if os.Getenv("TRACING_ENABLED") == "true" {
		tp, err := tracing.Init(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Tracer shutdown failed")
			}
		}()
		log.Info().Msg("Tracing initialized")
	}

	// Get port from env or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "18920"
	}

	// Open the persistence backend. DB_BACKEND selects bolt (default) or
	// sqlite; DB_PATH places the database file.
	backend := os.Getenv("DB_BACKEND")
	dbPath := os.Getenv("DB_PATH")

	store, err := database.Open(ctx, backend, dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("backend", backend).Str("path", dbPath).Msg("Failed to open database")
	}
	defer store.Close()

	log.Info().Str("backend", backend).Str("path", dbPath).Msg("Database opened")

	// Core services
	queue := modqueue.NewQueue(store.Queue())
	trail := audit.NewTrail(store.Audit())
	analyzer := risk.NewAnalyzer()

	// Notifications go out by email when SMTP is configured, otherwise to
	// the log.
	var dispatcher notify.Dispatcher = notify.NewLogDispatcher()
	if smtpHost := os.Getenv("SMTP_HOST"); smtpHost != "" {
		smtpPort := queryInt(os.Getenv("SMTP_PORT"))
		if smtpPort == 0 {
			smtpPort = 587
		}
		dispatcher = notify.NewEmailDispatcher(notify.SMTPConfig{
			Host:       smtpHost,
			Port:       smtpPort,
			User:       os.Getenv("SMTP_USER"),
			Pass:       os.Getenv("SMTP_PASS"),
			From:       os.Getenv("SMTP_FROM"),
			AdminEmail: os.Getenv("ADMIN_EMAIL"),
		}, nil)
		log.Info().Str("host", smtpHost).Msg("Email notifications enabled")
	}

	bus := events.NewBus()
	defer bus.Close()
	bus.OnEmit(func(name string) {
		metrics.EventsEmittedTotal.WithLabelValues(name).Inc()
	})
	bus.OnDrop(func(name string) {
		metrics.EventsDroppedTotal.WithLabelValues(name).Inc()
	})

	// Access control is optional: with no roster configured every actor is
	// allowed, which suits single-operator deployments.
	var acl *access.Service
	if rosterPath := os.Getenv("MODERATOR_ROSTER"); rosterPath != "" {
		acl, err = access.NewService(rosterPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", rosterPath).Msg("Failed to load moderator roster")
		}
		log.Info().
			Str("path", rosterPath).
			Int("moderators", len(acl.ListModerators())).
			Msg("Moderator roster loaded")
	} else {
		log.Warn().Msg("MODERATOR_ROSTER not set, permission checks are disabled")
	}

	orch := orchestrator.New(trail, bus, dispatcher, queue, acl)
	orch.RegisterHealthCheck("queue", func(ctx context.Context) error {
		_, err := store.Queue().CountByStatus(ctx)
		return err
	})
	orch.RegisterHealthCheck("audit", func(ctx context.Context) error {
		_, err := store.Audit().ListIncomplete(ctx, time.Hour)
		return err
	})
	orch.RegisterHealthCheck("notify", func(ctx context.Context) error {
		// Reachability only; a probe must never deliver a notification.
		if p, ok := dispatcher.(notify.Pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	})

	pipe := pipeline.New(analyzer, orch, queue, bus)

	// Surface operations that crashed before their audit outcome was
	// recorded. These need manual reconciliation.
	if stale, err := trail.ListIncomplete(ctx, time.Hour); err != nil {
		log.Warn().Err(err).Msg("Failed to scan for incomplete operations")
	} else if len(stale) > 0 {
		log.Warn().Int("count", len(stale)).Msg("Found audit entries with no recorded outcome")
	}

	// Feed the queue gauges in the background. One GetStats call covers
	// every gauge.
	metrics.StartCollector(ctx, func(ctx context.Context) (metrics.QueueSnapshot, error) {
		stats, err := queue.GetStats(ctx)
		if err != nil {
			return metrics.QueueSnapshot{}, err
		}
		snap := metrics.QueueSnapshot{
			CountsByStatus:      make(map[string]int, len(stats.CountsByStatus)),
			HighPriorityPending: stats.HighPriorityPending,
			ProcessedToday:      stats.ProcessedToday,
		}
		for status, n := range stats.CountsByStatus {
			snap.CountsByStatus[string(status)] = n
		}
		return snap, nil
	}, statsInterval)

	api := &apiServer{pipe: pipe, queue: queue, orch: orch, trail: trail, content: store.Content()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", api.handleHealthz)
	mux.HandleFunc("POST /v1/content/scan", api.handleScan)
	mux.HandleFunc("GET /v1/queue", api.handleListQueue)
	mux.HandleFunc("GET /v1/queue/stats", api.handleQueueStats)
	mux.HandleFunc("POST /v1/queue/{id}/moderate", api.handleModerate)
	mux.HandleFunc("POST /v1/queue/{id}/escalate", api.handleEscalate)
	mux.HandleFunc("POST /v1/queue/bulk-moderate", api.handleBulkModerate)
	mux.HandleFunc("GET /v1/audit", api.handleListAudit)

	server := &http.Server{
		Addr:    "0.0.0.0:" + port,
		Handler: middleware.LoggingMiddleware(log.Logger)(mux),
	}

	go func() {
		log.Info().
			Str("address", server.Addr).
			Str("url", "http://localhost:"+port).
			Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
}

// apiServer holds the handler dependencies.
type apiServer struct {
	pipe    *pipeline.Pipeline
	queue   *modqueue.Queue
	orch    *orchestrator.Orchestrator
	trail   *audit.Trail
	content content.Store // nil when the backend hosts no content
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.orch.HealthCheck(r.Context())

	status := http.StatusOK
	if report.State == orchestrator.StateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// scanRequest is the intake payload. Fields carries the free-form content
// bag; history is the caller's snapshot of the author's standing.
type scanRequest struct {
	ContentType string         `json:"content_type"`
	ContentID   string         `json:"content_id"`
	UserID      string         `json:"user_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      map[string]any `json:"fields,omitempty"`
	History     *struct {
		PreviousFlags  int `json:"previous_flags"`
		AccountAgeDays int `json:"account_age_days"`
		ContentCount   int `json:"content_count"`
	} `json:"history,omitempty"`
}

type scanResponse struct {
	Score    risk.Score     `json:"score"`
	Flagged  bool           `json:"flagged"`
	Item     *modqueue.Item `json:"queue_item,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	contentType := content.Type(req.ContentType)
	if !contentType.Valid() {
		writeOpError(w, &errs.ValidationError{Field: "content_type", Message: "unknown content type: " + req.ContentType})
		return
	}

	input := content.AnalysisInput{
		Title:       req.Title,
		Description: req.Description,
		UserID:      req.UserID,
	}
	if len(req.Fields) > 0 {
		input.Data = content.RawContent{ContentType: contentType, Bag: req.Fields}
	}
	if req.History != nil {
		input.History = &content.UserHistory{
			PreviousFlags:  req.History.PreviousFlags,
			AccountAgeDays: req.History.AccountAgeDays,
			ContentCount:   req.History.ContentCount,
		}
	}

	// A request carrying only a content id is a fetch-then-scan: load the
	// record from the content store and analyze what it holds.
	if req.Title == "" && req.Description == "" && len(req.Fields) == 0 {
		if s.content == nil {
			writeError(w, http.StatusBadRequest, "no content provided and no content store configured")
			return
		}
		rec, err := s.content.GetContent(r.Context(), contentType, req.ContentID)
		if err != nil {
			writeOpError(w, err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "content not found")
			return
		}
		input.Title = rec.Title
		input.Description = rec.Description
		if len(rec.Fields) > 0 {
			input.Data = content.RawContent{ContentType: contentType, Bag: rec.Fields}
		}
		if input.UserID == "" {
			input.UserID = rec.UserID
		}
		if input.History == nil && rec.UserID != "" {
			// Best effort; a missing history snapshot only lowers
			// confidence, it never blocks the scan.
			if records, err := s.content.ListContentByUser(r.Context(), rec.UserID); err == nil {
				input.History = &content.UserHistory{ContentCount: len(records)}
			}
		}
	}

	result, err := s.pipe.ProcessContent(r.Context(), contentType, req.ContentID, input)
	if err != nil {
		writeOpError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scanResponse{
		Score:    result.Score,
		Flagged:  result.Flagged(),
		Item:     result.Item,
		Warnings: result.Warnings,
	})
}

func (s *apiServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := modqueue.ListFilter{
		ContentType: content.Type(q.Get("content_type")),
	}
	for _, status := range q["status"] {
		filter.Statuses = append(filter.Statuses, modqueue.Status(status))
	}
	filter.Limit = queryInt(q.Get("limit"))
	filter.Offset = queryInt(q.Get("offset"))

	items, err := s.queue.List(r.Context(), filter)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *apiServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.GetStats(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// moderateRequest carries a moderation decision. ModeratorID comes from the
// body rather than an auth layer; this service sits behind the platform's
// authenticating proxy.
type moderateRequest struct {
	ModeratorID string `json:"moderator_id"`
	Status      string `json:"status"`
	Notes       string `json:"notes,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *apiServer) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.orch.ModerateContent(r.Context(), r.PathValue("id"), req.ModeratorID,
		modqueue.Status(req.Status), req.Notes)
	writeResult(w, result)
}

func (s *apiServer) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.orch.EscalateContent(r.Context(), r.PathValue("id"), req.ModeratorID, req.Reason)
	writeResult(w, result)
}

type bulkModerateRequest struct {
	QueueIDs    []string `json:"queue_ids"`
	ModeratorID string   `json:"moderator_id"`
	Status      string   `json:"status"`
	Notes       string   `json:"notes,omitempty"`
}

func (s *apiServer) handleBulkModerate(w http.ResponseWriter, r *http.Request) {
	var req bulkModerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := s.orch.BulkModerate(r.Context(), req.QueueIDs, req.ModeratorID,
		modqueue.Status(req.Status), req.Notes, orchestrator.DefaultBatchSize)
	writeResult(w, result)
}

func (s *apiServer) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.ListFilter{
		ActorID:    q.Get("actor_id"),
		ActionType: q.Get("action_type"),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
	}
	filter.Limit = queryInt(q.Get("limit"))

	entries, err := s.trail.List(r.Context(), filter)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// writeResult maps an orchestrated operation result onto HTTP. The raw
// error stays in the logs; clients get the sanitized message.
func writeResult(w http.ResponseWriter, result orchestrator.Result) {
	if result.Success {
		writeJSON(w, http.StatusOK, map[string]any{
			"data":     result.Data,
			"warnings": result.Warnings,
			"audit_id": result.AuditID,
		})
		return
	}
	writeError(w, statusForError(result.Err), result.UserError())
}

func writeOpError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), errs.UserMessage(err))
}

func statusForError(err error) int {
	switch {
	case errs.IsValidation(err):
		return http.StatusBadRequest
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsStateConflict(err):
		return http.StatusConflict
	case errs.IsPermissionDenied(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// queryInt parses an optional numeric query parameter. Malformed or
// negative values fall back to zero, meaning "unset".
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
