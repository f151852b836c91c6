package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ticketlens/internal/pipeline"
	"github.com/kalambet/ticketlens/internal/report"
	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// AppDeps holds what the HTTP API needs.
type AppDeps struct {
	Engine   *ticketstore.Engine
	Analyzer *pipeline.Analyzer
	Token    string
	Version  string
}

// NewAppHandler returns the ticket API. Everything except /health requires
// the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/jobs", handleEnqueueJob(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/tickets", handleListTickets(deps))
		r.Get("/tickets/{id}", handleGetTicket(deps))
		r.Get("/tickets/{id}/report", handleTicketReport(deps))
		r.Delete("/tickets/{id}", handleDeleteTicket(deps))
		r.Post("/tickets/{id}/feedback", handleSubmitFeedback(deps))
		r.Get("/tickets/{id}/feedback", handleTicketFeedback(deps))
		r.Get("/feedback", handleFeedbackSummary(deps))
		r.Post("/feedback/export", handleExportFeedback(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/stats", handleStats(deps))
		r.Get("/timeline", handleTimeline(deps))
		r.Post("/export", handleExport(deps))
		r.Post("/backup", handleBackup(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": deps.Version})
	}
}

// AnalyzeRequest is the body of POST /analyze. Ticket accepts the flat ticket
// shape or a Jira REST issue.
type AnalyzeRequest struct {
	Ticket  json.RawMessage `json:"ticket"`
	Format  string          `json:"format"`
	NoStore bool            `json:"no_store"`
}

// AnalyzeResponse is returned by POST /analyze.
type AnalyzeResponse struct {
	pipeline.Outcome
	Format string `json:"format,omitempty"`
	Report string `json:"report,omitempty"`
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.Ticket) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ticket is required")
			return
		}
		var format report.Format
		if req.Format != "" {
			f, err := report.ParseFormat(req.Format)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			format = f
		}

		t, err := ticket.ParseJSON(req.Ticket)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		out, err := deps.Analyzer.Run(r.Context(), pipeline.Request{Ticket: t, NoStore: req.NoStore})
		if errors.Is(err, ticket.ErrInsufficientData) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ticket needs a title or description")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "analysis failed: %v", err)
			return
		}

		resp := AnalyzeResponse{Outcome: out}
		if format != "" {
			text, err := deps.Engine.Renderer().Render(report.Document{Ticket: out.Ticket, Result: out.Result}, format)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "rendering report: %v", err)
				return
			}
			resp.Format = string(format)
			resp.Report = text
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListTickets(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			tickets []storage.TicketSummary
			err     error
		)
		if days := parseIntParam(r, "days", 0, 3650); days > 0 {
			tickets, err = deps.Engine.Recent(r.Context(), days)
		} else {
			tickets, err = deps.Engine.List(r.Context(), parseIntParam(r, "limit", 20, 100), parseIntParam(r, "offset", 0, 0))
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tickets: %v", err)
			return
		}
		if tickets == nil {
			tickets = []storage.TicketSummary{}
		}
		writeJSON(w, http.StatusOK, tickets)
	}
}

func handleGetTicket(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := deps.Engine.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "ticket not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get ticket: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

var reportContentTypes = map[report.Format]string{
	report.FormatMarkdown: "text/markdown; charset=utf-8",
	report.FormatJSON:     "application/json",
	report.FormatText:     "text/plain; charset=utf-8",
	report.FormatHTML:     "text/html; charset=utf-8",
}

func handleTicketReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := report.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		text, err := deps.Engine.Report(r.Context(), chi.URLParam(r, "id"), format)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "ticket not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to render report: %v", err)
			return
		}

		w.Header().Set("Content-Type", reportContentTypes[format])
		w.Write([]byte(text))
	}
}

func handleDeleteTicket(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Engine.Delete(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "ticket not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete ticket: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := deps.Engine.Search(r.Context(), r.URL.Query().Get("q"), parseIntParam(r, "limit", 0, 100))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if results == nil {
			results = []storage.TicketSummary{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Engine.Statistics(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute statistics: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleTimeline(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := deps.Engine.Timeline(r.Context(), parseIntParam(r, "days", 30, 3650))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build timeline: %v", err)
			return
		}
		if days == nil {
			days = []storage.DayCount{}
		}
		writeJSON(w, http.StatusOK, days)
	}
}

func handleExport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := ticketstore.ParseExportFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		path, err := deps.Engine.Export(r.Context(), format)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "export failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path, "format": string(format)})
	}
}

// backupResponse reports a local archive together with a failed upload.
type backupResponse struct {
	ticketstore.BackupResult
	UploadError string `json:"upload_error,omitempty"`
}

func handleBackup(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Engine.Backup(r.Context())
		if errors.Is(err, ticketstore.ErrUploadFailed) {
			writeJSON(w, http.StatusOK, backupResponse{BackupResult: res, UploadError: err.Error()})
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "backup failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
