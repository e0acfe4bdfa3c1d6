package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"staybook/internal/config"
	"staybook/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripePayments implements PaymentProvider against the Stripe API.
type StripePayments struct {
	client   *client.API
	currency string
	log      *logger.Logger
}

func NewStripePayments(cfg config.StripeConfig, log *logger.Logger) (*StripePayments, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripePayments{client: sc, currency: cfg.Currency, log: log}, nil
}

// VerifyPaymentSucceeded checks the payment intent's status with Stripe
// rather than trusting the caller's claim.
func (s *StripePayments) VerifyPaymentSucceeded(ctx context.Context, paymentRef string) (bool, error) {
	intent, err := s.client.PaymentIntents.Get(paymentRef, nil)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("failed to retrieve payment intent %s: %v", paymentRef, err))
		return false, err
	}
	return intent.Status == stripe.PaymentIntentStatusSucceeded, nil
}

// IssueRefund refunds the full remaining amount of a payment intent and
// returns the refunded amount in currency units.
func (s *StripePayments) IssueRefund(ctx context.Context, paymentRef string) (float64, error) {
	refund, err := s.client.Refunds.New(&stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
	})
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("refund failed for %s: %v", paymentRef, err))
		return 0, err
	}
	amount := float64(refund.Amount) / 100
	s.log.Info("STRIPE", fmt.Sprintf("refunded %.2f for %s (refund %s)", amount, paymentRef, refund.ID))
	return amount, nil
}

// ChargeSavedMethod charges a customer's default saved payment method
// off-session, for damage charges after a stay.
func (s *StripePayments) ChargeSavedMethod(ctx context.Context, customerRef string, amount float64, description string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(int64(amount * 100)),
		Currency:    stripe.String(s.currency),
		Customer:    stripe.String(customerRef),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
		Description: stripe.String(description),
	}

	intent, err := s.client.PaymentIntents.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("off-session charge failed for customer %s: %v", customerRef, err))
		return "", err
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("charge %s did not succeed: status %s", intent.ID, intent.Status)
	}

	s.log.Info("STRIPE", fmt.Sprintf("charged %.2f to customer %s (%s)", amount, customerRef, intent.ID))
	return intent.ID, nil
}

// WebhookError represents an error that occurred during webhook processing
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int    // HTTP status code
	PublicError   string // Safe to expose to clients
	InternalError string // Detailed error for logs only
	OriginalErr   error  // Underlying error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandleStripeWebhook processes Stripe webhook events. payment_intent
// events carry the reservation ID in their metadata and drive the
// hold → confirmed transition (or record a failed attempt).
func (s *Service) HandleStripeWebhook(r *http.Request, webhookSecret string) error {
	if webhookSecret == "" {
		s.Logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret, opts)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		intent, reservationID, werr := unmarshalIntent(event.Data.Raw)
		if werr != nil {
			s.Logger.Error("WEBHOOK", werr.InternalError)
			return werr
		}

		if err := s.ConfirmPayment(r.Context(), reservationID, intent.ID); err != nil {
			s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to confirm reservation %s: %v", reservationID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("Failed to confirm reservation %s: %v", reservationID, err),
				OriginalErr:   err,
			}
		}
		if intent.Customer != nil {
			s.attachCustomer(r.Context(), reservationID, intent.Customer.ID)
		}
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Successfully processed payment for reservation %s", reservationID))

	case "payment_intent.payment_failed":
		_, reservationID, werr := unmarshalIntent(event.Data.Raw)
		if werr != nil {
			s.Logger.Error("WEBHOOK", werr.InternalError)
			return werr
		}

		if err := s.MarkPaymentFailed(r.Context(), reservationID); err != nil {
			s.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to record payment failure for %s: %v", reservationID, err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to record payment failure",
				InternalError: fmt.Sprintf("Failed to record payment failure for %s: %v", reservationID, err),
				OriginalErr:   err,
			}
		}
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Recorded payment failure for reservation %s", reservationID))

	default:
		s.Logger.Info("WEBHOOK", fmt.Sprintf("Unhandled event type: %s", event.Type))
	}

	return nil
}

func unmarshalIntent(raw json.RawMessage) (*stripe.PaymentIntent, string, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return nil, "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}

	reservationID, exists := intent.Metadata["reservation_id"]
	if !exists {
		return nil, "", &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid payment intent data",
			InternalError: "Payment intent has no reservation_id in metadata",
		}
	}
	return &intent, reservationID, nil
}

// attachCustomer saves the Stripe customer reference so damage charges can
// use the guest's saved payment method later. Best-effort.
func (s *Service) attachCustomer(ctx context.Context, reservationID, customerID string) {
	reservation, err := s.DB.GetByID(ctx, reservationID)
	if err != nil {
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("could not load %s to attach customer: %v", reservationID, err))
		return
	}
	reservation.StripeCustomerID = customerID
	if err := s.DB.Update(ctx, reservation); err != nil {
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("could not attach customer to %s: %v", reservationID, err))
	}
}
