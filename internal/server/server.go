// Package server exposes the analysis pipeline over HTTP: uploads, report
// history, the active rule catalog, a websocket feed of completed reports
// and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"greenscan/internal/findings"
	"greenscan/internal/orchestrator"
	"greenscan/internal/pipeline"
	"greenscan/internal/report"
	"greenscan/internal/rules"
	"greenscan/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Analyzer runs one submission.
type Analyzer interface {
	Analyze(ctx context.Context, sub pipeline.Submission) (*report.Report, error)
}

// Options configures a Server. Store may be nil, which disables history.
type Options struct {
	Addr           string
	Analyzer       Analyzer
	Catalog        *rules.Catalog
	Store          *store.Store
	Hub            *Hub
	MaxUploadBytes int64
}

// Server is the HTTP front end.
type Server struct {
	opts Options
	mux  *http.ServeMux
}

// ReportEvent is the feed payload sent when a report completes.
type ReportEvent struct {
	JobID       string           `json:"jobId"`
	Project     string           `json:"project,omitempty"`
	Summary     findings.Summary `json:"summary"`
	RunID       string           `json:"runId,omitempty"`
	FailedPhase string           `json:"failedPhase,omitempty"`
}

// New builds the route table.
func New(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)
	s.mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("GET /api/rules/{id}/findings", s.handleRuleFindings)
	s.mux.HandleFunc("GET /ws", opts.Hub.HandleWebSocket)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub returns the feed hub.
func (s *Server) Hub() *Hub {
	return s.opts.Hub
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.opts.Hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.opts.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"file\"")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	name := filepath.Base(hdr.Filename)
	project := strings.TrimSpace(r.FormValue("project"))
	if project == "" {
		project = orchestrator.ClassName(name)
	}
	staticOnly, _ := strconv.ParseBool(r.FormValue("staticOnly"))

	rep, err := s.opts.Analyzer.Analyze(r.Context(), pipeline.Submission{
		Name:    name,
		Content: content,
		Project: findings.Project{
			Name:   project,
			Commit: strings.TrimSpace(r.FormValue("commit")),
		},
		StaticOnly: staticOnly,
	})
	if err != nil {
		log.Error().Err(err).Str("file", name).Msg("Analysis failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.SaveReport(r.Context(), rep); err != nil {
			log.Warn().Err(err).Str("job", rep.JobID()).Msg("Failed to save report")
		}
	}
	s.opts.Hub.Broadcast("reportCompleted", eventOf(rep))
	writeJSON(w, http.StatusOK, rep)
}

func eventOf(rep *report.Report) ReportEvent {
	ev := ReportEvent{JobID: rep.JobID(), FailedPhase: rep.FailedPhase}
	if rep.StaticAnalysis != nil {
		ev.Project = rep.StaticAnalysis.Project.Name
		ev.Summary = rep.StaticAnalysis.Summary
	}
	if rep.DynamicAnalysis != nil {
		ev.RunID = rep.DynamicAnalysis.RunID
	}
	return ev
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := s.opts.Store.ListReports(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	rep, err := s.opts.Store.LoadReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleRuleFindings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is disabled")
		return
	}
	recs, err := s.opts.Store.FindingsByRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []store.FindingRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type catalogView struct {
	Source      string             `json:"source"`
	LoadedAt    time.Time          `json:"loadedAt"`
	Rules       []rules.Rule       `json:"rules"`
	Diagnostics []rules.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	c := s.opts.Catalog
	if c == nil {
		writeError(w, http.StatusServiceUnavailable, "no rule catalog loaded")
		return
	}
	writeJSON(w, http.StatusOK, catalogView{
		Source:      c.Source(),
		LoadedAt:    c.LoadedAt(),
		Rules:       c.Rules(),
		Diagnostics: c.Diagnostics(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "feedClients": s.opts.Hub.ClientCount()}
	if s.opts.Catalog != nil {
		body["rules"] = s.opts.Catalog.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
