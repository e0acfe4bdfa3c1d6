package rates_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/rates"
	"staybook/internal/utils"

	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Resolver *rates.Resolver
	Logger   *logger.Logger
	Validate *validator.Validate
}

func NewHandler(resolver *rates.Resolver, log *logger.Logger) *Handler {
	return &Handler{
		Resolver: resolver,
		Logger:   log,
		Validate: validator.New(),
	}
}

// Quote → GET /quote?check_in=YYYY-MM-DD&check_out=YYYY-MM-DD
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
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

	quote, err := h.Resolver.Quote(r.Context(), checkIn, checkOut)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Quote: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("quote computed", quote))
}

// ListOverrides → GET /admin/rates?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	from, err := models.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "from must be YYYY-MM-DD"))
		return
	}
	to, err := models.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "to must be YYYY-MM-DD"))
		return
	}

	overrides, err := h.Resolver.ListOverrides(r.Context(), from, to)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListOverrides: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("rate overrides", overrides))
}

// SetOverrides → PUT /admin/rates
func (h *Handler) SetOverrides(w http.ResponseWriter, r *http.Request) {
	var req models.SetOverridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid override request", err))
		return
	}
	if req.Price == nil && req.MinNights == nil {
		utils.WriteError(w, errs.New(errs.Validation, "at least one of price or min_nights is required"))
		return
	}

	dates, err := parseDates(req.Dates)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if err := h.Resolver.SetOverrides(r.Context(), dates, req.Price, req.MinNights); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SetOverrides: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("overrides saved", map[string]int{"dates": len(dates)}))
}

// ClearOverrides → DELETE /admin/rates
func (h *Handler) ClearOverrides(w http.ResponseWriter, r *http.Request) {
	var req models.ClearOverridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid clear request", err))
		return
	}

	dates, err := parseDates(req.Dates)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if err := h.Resolver.ClearOverrides(r.Context(), dates, models.OverrideField(req.Field)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ClearOverrides: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("overrides cleared", map[string]int{"dates": len(dates)}))
}

func parseDates(raw []string) ([]models.Date, error) {
	dates := make([]models.Date, 0, len(raw))
	for _, s := range raw {
		d, err := models.ParseDate(s)
		if err != nil {
			return nil, errs.Newf(errs.Validation, "invalid date %q, expected YYYY-MM-DD", s)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
