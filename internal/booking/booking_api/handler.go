package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"staybook/internal/auth"
	"staybook/internal/booking"
	"staybook/internal/errs"
	"staybook/internal/logger"
	"staybook/internal/models"
	"staybook/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Service       *booking.Service
	Logger        *logger.Logger
	Validate      *validator.Validate
	WebhookSecret string
}

func NewHandler(service *booking.Service, log *logger.Logger, webhookSecret string) *Handler {
	return &Handler{
		Service:       service,
		Logger:        log,
		Validate:      validator.New(),
		WebhookSecret: webhookSecret,
	}
}

// CreateReservation → POST /reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid reservation request", err))
		return
	}

	reservation, err := h.Service.CreateReservation(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("reservation held", reservation))
}

// GetGuestReservation → GET /reservations/{reservationId}?email=...
// The guest proves ownership with the booking email.
func (h *Handler) GetGuestReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	email := r.URL.Query().Get("email")
	if email == "" {
		utils.WriteError(w, errs.New(errs.Validation, "email query parameter is required"))
		return
	}

	reservation, err := h.Service.GetGuestReservation(r.Context(), id, email)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservation", reservation))
}

// CancelReservation → POST /reservations/{reservationId}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	var req models.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid cancel request", err))
		return
	}

	reservation, err := h.Service.Cancel(r.Context(), id, req.Email, req.Reason, false)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelReservation: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservation cancelled", reservation))
}

// CheckInQR → GET /reservations/{reservationId}/checkin-qr?email=...
func (h *Handler) CheckInQR(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	email := r.URL.Query().Get("email")
	if email == "" {
		utils.WriteError(w, errs.New(errs.Validation, "email query parameter is required"))
		return
	}

	png, err := h.Service.CheckInQR(r.Context(), id, email)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// StripeWebhook → POST /webhook/stripe
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleStripeWebhook(r, h.WebhookSecret); err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("StripeWebhook: %v", err))

		// WebhookError carries its own status code and a public message;
		// signature failures must come back as 400, not 500.
		var webhookErr *booking.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Info("WEBHOOK", fmt.Sprintf("StripeWebhook: category=%s status=%d",
				webhookErr.Category, webhookErr.StatusCode))
			utils.WriteJSON(w, webhookErr.StatusCode, utils.ErrorResponse("webhook rejected", webhookErr.PublicError))
			return
		}

		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ---------------- ADMIN ----------------

// ListReservations → GET /admin/reservations
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.Service.ListReservations(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListReservations: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservations", reservations))
}

// GetReservation → GET /admin/reservations/{reservationId}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	reservation, err := h.Service.GetReservation(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservation", reservation))
}

// AdminCancelReservation → POST /admin/reservations/{reservationId}/cancel
func (h *Handler) AdminCancelReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for owner cancellations.
	_ = json.NewDecoder(r.Body).Decode(&req)

	reservation, err := h.Service.Cancel(r.Context(), id, "", req.Reason, true)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AdminCancelReservation by %s: %v", auth.AdminSubject(r.Context()), err))
		utils.WriteError(w, err)
		return
	}
	h.Logger.LogReservation("CANCEL", id, fmt.Sprintf("Cancelled by admin %s", auth.AdminSubject(r.Context())))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservation cancelled", reservation))
}

// CompleteReservation → POST /admin/reservations/{reservationId}/complete
func (h *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	reservation, err := h.Service.Complete(r.Context(), id)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CompleteReservation: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reservation completed", reservation))
}

// ChargeDamage → POST /admin/reservations/{reservationId}/damages
func (h *Handler) ChargeDamage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")

	var req models.DamageChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, errs.New(errs.Validation, "invalid request body"))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		utils.WriteError(w, errs.Wrap(errs.Validation, "invalid damage charge request", err))
		return
	}

	charge, err := h.Service.ChargeDamage(r.Context(), id, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ChargeDamage: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("damage charged", charge))
}

// ListDamageCharges → GET /admin/reservations/{reservationId}/damages
func (h *Handler) ListDamageCharges(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reservationId")
	charges, err := h.Service.ListDamageCharges(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("damage charges", charges))
}

// ---------------- TASKS ----------------

// ExpireHolds → POST /internal/tasks/expire-holds
// Invoked by the scheduler; idempotent.
func (h *Handler) ExpireHolds(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Service.ExpireStaleHolds(r.Context())
	if err != nil {
		h.Logger.Error("TASK", fmt.Sprintf("ExpireHolds: %v", err))
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("holds expired", map[string]int64{"expired": expired}))
}
