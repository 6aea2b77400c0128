package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orgdash/internal/app"
	"orgdash/internal/ingest"
	"orgdash/internal/models"
)

// Launcher starts an ingestion run in the background.
type Launcher interface {
	Start(ctx context.Context) (string, error)
}

type Server struct {
	catalog      *ingest.Catalog
	orchestrator *ingest.Orchestrator
	launcher     Launcher
	metrics      http.Handler
	logger       *slog.Logger
}

// NewServer builds the read-side API. launcher and metrics may be nil.
func NewServer(catalog *ingest.Catalog, orchestrator *ingest.Orchestrator, launcher Launcher, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{catalog: catalog, orchestrator: orchestrator, launcher: launcher, metrics: metrics, logger: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/detailed", s.handleDetailed)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type statsSummary struct {
	DocumentCount          int                     `json:"document_count"`
	NewDocumentsThisWeek   int                     `json:"new_documents_this_week"`
	SiteName               string                  `json:"site_name"`
	LastSync               *time.Time              `json:"last_sync"`
	LastUpdated            *time.Time              `json:"last_updated,omitempty"`
	Loading                bool                    `json:"loading"`
	ChunkProcessing        bool                    `json:"chunk_processing"`
	ConsolidationCompleted bool                    `json:"consolidation_completed"`
	Error                  bool                    `json:"error,omitempty"`
	Progress               *progressSummary        `json:"progress"`
	RecentDocuments        []models.DocumentDetail `json:"recent_documents"`
	DocumentsSummary       *models.TypeSummary     `json:"documents_summary,omitempty"`
	Message                string                  `json:"message,omitempty"`
}

type progressSummary struct {
	CompletedChunks int     `json:"completed_chunks"`
	TotalChunks     int     `json:"total_chunks"`
	Percentage      float64 `json:"percentage"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	ctx := r.Context()
	stats, ok, err := s.catalog.BasicStats(ctx)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.startInBackground(ctx)
		writeJSON(w, http.StatusOK, statsSummary{
			SiteName:        "SharePoint (loading)",
			Loading:         true,
			RecentDocuments: []models.DocumentDetail{},
			Message:         "Document ingestion is starting.",
		})
		return
	}

	out := statsSummary{
		DocumentCount:          stats.DocumentCount,
		NewDocumentsThisWeek:   stats.NewDocumentsThisWeek,
		SiteName:               stats.SiteName,
		LastSync:               stats.LastSync,
		LastUpdated:            &stats.LastUpdated,
		Loading:                stats.Loading || (stats.ChunkProcessing && !stats.ConsolidationCompleted),
		ChunkProcessing:        stats.ChunkProcessing,
		ConsolidationCompleted: stats.ConsolidationCompleted,
		Error:                  stats.Error,
		RecentDocuments:        []models.DocumentDetail{},
	}
	if p, ok, err := s.catalog.Progress(ctx); err == nil && ok {
		out.Progress = &progressSummary{
			CompletedChunks: p.CompletedChunks,
			TotalChunks:     p.TotalChunks,
			Percentage:      p.CompletionPercentage,
		}
	}
	if ext, ok, err := s.catalog.ExtendedData(ctx); err == nil && ok {
		out.RecentDocuments = ext.RecentDocuments[:min(3, len(ext.RecentDocuments))]
		out.DocumentsSummary = &ext.DocumentsSummary
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	d, err := s.catalog.Detailed(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.launcher == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("ingestion launcher not configured"))
		return
	}
	ctx := r.Context()
	if err := s.orchestrator.Reset(ctx); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	runID, err := s.launcher.Start(ctx)
	if err != nil {
		if errors.Is(err, app.ErrRunInProgress) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	s.logger.Info("refresh started", "run_id", runID)
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": runID, "status": "started"})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	page, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/")
	ctx := r.Context()
	switch rest {
	case "":
		s.handleDocuments(w, r)
	case "search":
		q := r.URL.Query().Get("q")
		docs, err := s.catalog.Search(ctx, q)
		if err != nil {
			if errors.Is(err, ingest.ErrQueryTooShort) {
				writeErr(w, http.StatusBadRequest, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"query": q, "data": docs, "total": len(docs), "limited_to": ingest.SearchLimit})
	case "stats":
		st, err := s.catalog.Stats(ctx)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	default:
		if strings.Contains(rest, "/") {
			writeErr(w, http.StatusNotFound, fmt.Errorf("unknown route"))
			return
		}
		doc, err := s.catalog.Document(ctx, rest)
		if err != nil {
			if errors.Is(err, ingest.ErrDocumentNotFound) {
				writeErr(w, http.StatusNotFound, err)
				return
			}
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) startInBackground(ctx context.Context) {
	if s.launcher == nil {
		return
	}
	if err := s.orchestrator.PublishLoading(ctx); err != nil {
		s.logger.Warn("publish loading placeholder", "error", err)
	}
	runID, err := s.launcher.Start(context.WithoutCancel(ctx))
	if err != nil {
		if !errors.Is(err, app.ErrRunInProgress) {
			s.logger.Error("start ingestion from stats request", "error", err)
		}
		return
	}
	s.logger.Info("ingestion started for empty stats", "run_id", runID)
}

func parseFilter(r *http.Request) (ingest.DocumentFilter, error) {
	q := r.URL.Query()
	f := ingest.DocumentFilter{
		Type:   strings.TrimSpace(q.Get("type")),
		Folder: strings.TrimSpace(q.Get("folder")),
	}
	var err error
	if f.Page, err = parseInt(q.Get("page"), 1); err != nil {
		return f, fmt.Errorf("invalid page: %w", err)
	}
	if f.PerPage, err = parseInt(q.Get("per_page"), ingest.DefaultPerPage); err != nil {
		return f, fmt.Errorf("invalid per_page: %w", err)
	}
	if f.DateFrom, err = parseDate(q.Get("date_from"), false); err != nil {
		return f, fmt.Errorf("invalid date_from: %w", err)
	}
	if f.DateTo, err = parseDate(q.Get("date_to"), true); err != nil {
		return f, fmt.Errorf("invalid date_to: %w", err)
	}
	if f.MinSize, err = parseSize(q.Get("min_size")); err != nil {
		return f, fmt.Errorf("invalid min_size: %w", err)
	}
	if f.MaxSize, err = parseSize(q.Get("max_size")); err != nil {
		return f, fmt.Errorf("invalid max_size: %w", err)
	}
	return f, nil
}

func parseInt(v string, fallback int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func parseSize(v string) (*int64, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseDate accepts RFC 3339 or a plain date. A plain date_to covers the
// whole day.
func parseDate(v string, endOfDay bool) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
