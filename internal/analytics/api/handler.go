package api

import (
	"fmt"
	"net/http"
	"strconv"

	"staybook/internal/analytics"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the analytics endpoints under the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/occupancy", h.Occupancy)
		r.Get("/revenue", h.Revenue)
		r.Get("/upcoming", h.UpcomingCheckIns)
	})
}

func (h *Handler) window(r *http.Request) (models.Date, models.Date, error) {
	from, err := models.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		return models.Date{}, models.Date{}, errs.New(errs.Validation, "from must be YYYY-MM-DD")
	}
	to, err := models.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		return models.Date{}, models.Date{}, errs.New(errs.Validation, "to must be YYYY-MM-DD")
	}
	return from, to, nil
}

// Occupancy → GET /api/admin/analytics/occupancy?from=...&to=...
func (h *Handler) Occupancy(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.window(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	summary, err := h.Service.Occupancy(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Occupancy: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("occupancy summary", summary))
}

// Revenue → GET /api/admin/analytics/revenue?from=...&to=...
func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.window(r)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	summary, err := h.Service.Revenue(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Revenue: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("revenue summary", summary))
}

// UpcomingCheckIns → GET /api/admin/analytics/upcoming?days=7
func (h *Handler) UpcomingCheckIns(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	reservations, err := h.Service.UpcomingCheckIns(r.Context(), days)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpcomingCheckIns: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("upcoming check-ins", reservations))
}
