package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// FeedbackRequest rates one or more sections of a stored analysis.
type FeedbackRequest struct {
	UserID  string                      `json:"user_id,omitempty"`
	Ratings []ticketstore.FeedbackEntry `json:"ratings"`
}

func handleSubmitFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rows, err := deps.Engine.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Ratings)
		switch {
		case errors.Is(err, ticketstore.ErrInvalidFeedback):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "ticket not found")
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, rows)
	}
}

func handleTicketFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := deps.Engine.TicketFeedback(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	}
}

func handleFeedbackSummary(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Engine.FeedbackSummary(r.Context(), r.URL.Query().Get("section"), parseIntParam(r, "days", 30, 3650))
		if errors.Is(err, ticketstore.ErrInvalidFeedback) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarize feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func handleExportFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format, err := ticketstore.ParseExportFormat(r.URL.Query().Get("format"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		path, err := deps.Engine.ExportFeedback(r.Context(), format)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "feedback export failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": path, "format": string(format)})
	}
}
