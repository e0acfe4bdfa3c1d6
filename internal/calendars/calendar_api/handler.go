package calendar_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"staybook/internal/calendars"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Service  *calendars.Service
	Exporter *calendars.Exporter
	Logger   *logger.Logger
	Validate *validator.Validate
}

func NewHandler(service *calendars.Service, exporter *calendars.Exporter, log *logger.Logger) *Handler {
	return &Handler{
		Service:  service,
		Exporter: exporter,
		Logger:   log,
		Validate: validator.New(),
	}
}

// ExportFeed → GET /calendar.ics
// Pulled by external platforms; served fresh on every request.
func (h *Handler) ExportFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.Exporter.BuildFeed(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ExportFeed: %v", err))
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

// ---------------- ADMIN ----------------

// CreateSource → POST /admin/calendar-sources
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req models.CalendarSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid source request", err))
		return
	}

	source, err := h.Service.CreateSource(r.Context(), &req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateSource: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("calendar source created", source))
}

// ListSources → GET /admin/calendar-sources
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.Service.ListSources(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListSources: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("calendar sources", sources))
}

// GetSource → GET /admin/calendar-sources/{sourceId}
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceId")
	source, err := h.Service.GetSource(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("calendar source", source))
}

// UpdateSource → PUT /admin/calendar-sources/{sourceId}
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceId")

	var req models.CalendarSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid source request", err))
		return
	}

	source, err := h.Service.UpdateSource(r.Context(), id, &req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateSource: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("calendar source updated", source))
}

// DeleteSource → DELETE /admin/calendar-sources/{sourceId}
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceId")
	if err := h.Service.DeleteSource(r.Context(), id); err != nil {
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncSource → POST /admin/calendar-sources/{sourceId}/sync
func (h *Handler) SyncSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sourceId")
	result, err := h.Service.SyncSource(r.Context(), id)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("SyncSource: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("source synced", result))
}

// ---------------- TASKS ----------------

// SyncAll → POST /internal/tasks/sync-calendars
type syncSummary struct {
	SourceID string `json:"source_id"`
	Platform string `json:"platform"`
	Events   int    `json:"events_found"`
	Blocked  int    `json:"blocked"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.SyncAll(r.Context())
	if err != nil {
		h.Logger.Error("TASK", fmt.Sprintf("SyncAll: %v", err))
		utils.WriteError(w, err)
		return
	}

	summaries := make([]syncSummary, 0, len(results))
	for _, res := range results {
		s := syncSummary{
			SourceID: res.SourceID,
			Platform: res.Platform,
			Events:   res.EventsFound,
			Blocked:  res.Blocked,
		}
		if res.Err != nil {
			s.Error = res.Err.Error()
		}
		summaries = append(summaries, s)
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("calendars synced", summaries))
}
