package availability_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"staybook/internal/availability"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Service  *availability.Service
	Logger   *logger.Logger
	Validate *validator.Validate
}

func NewHandler(service *availability.Service, log *logger.Logger) *Handler {
	return &Handler{
		Service:  service,
		Logger:   log,
		Validate: validator.New(),
	}
}

// CheckAvailability → GET /availability?check_in=YYYY-MM-DD&check_out=YYYY-MM-DD
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	checkIn, err := models.ParseDate(r.URL.Query().Get("check_in"))
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "check_in must be YYYY-MM-DD"))
		return
	}
	checkOut, err := models.ParseDate(r.URL.Query().Get("check_out"))
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "check_out must be YYYY-MM-DD"))
		return
	}

	result, err := h.Service.CheckAvailability(r.Context(), checkIn, checkOut)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckAvailability: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("availability checked", result))
}

// ListBlockedRanges → GET /calendar/blocked
func (h *Handler) ListBlockedRanges(w http.ResponseWriter, r *http.Request) {
	ranges, err := h.Service.ListBlockedRanges(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListBlockedRanges: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("blocked ranges", ranges))
}

// BlockRange → POST /admin/blocks
func (h *Handler) BlockRange(w http.ResponseWriter, r *http.Request) {
	var req models.BlockRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid block request", err))
		return
	}

	from, err := models.ParseDate(req.StartDate)
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "start_date must be YYYY-MM-DD"))
		return
	}
	to, err := models.ParseDate(req.EndDate)
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "end_date must be YYYY-MM-DD"))
		return
	}

	block, err := h.Service.BlockRange(r.Context(), from, to, req.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("BlockRange: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("range blocked", block))
}

// ToggleDay → POST /admin/blocks/toggle
func (h *Handler) ToggleDay(w http.ResponseWriter, r *http.Request) {
	var req models.ToggleDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid toggle request", err))
		return
	}

	day, err := models.ParseDate(req.Date)
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "date must be YYYY-MM-DD"))
		return
	}

	blocked, err := h.Service.ToggleDay(r.Context(), day, req.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ToggleDay: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("day toggled", map[string]interface{}{
		"date":    day,
		"blocked": blocked,
	}))
}

// DeleteBlock → DELETE /admin/blocks/{blockId}
func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	blockID := chi.URLParam(r, "blockId")
	if err := h.Service.DeleteBlock(r.Context(), blockID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteBlock: %v", err))
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
