package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"

	"snaptale/internal/app"
)

const maxWebhookBodyBytes = 65536

// StripeWebhook verifies and dispatches Stripe events.
type StripeWebhook struct {
	app           *app.App
	webhookSecret string
}

// NewStripeWebhook creates the webhook handler.
func NewStripeWebhook(a *app.App, webhookSecret string) *StripeWebhook {
	return &StripeWebhook{app: a, webhookSecret: webhookSecret}
}

// Handle verifies the event signature before touching anything, then
// dispatches checkout completions. Unknown event types are acknowledged
// so Stripe stops retrying them.
func (h *StripeWebhook) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		r.Header.Get("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook signature")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			writeError(w, http.StatusBadRequest, "invalid checkout session payload")
			return
		}
		if err := h.app.HandleCheckoutCompleted(r.Context(), session.ID, session.ClientReferenceID); err != nil {
			slog.Error("handle checkout completed", "sessionId", session.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	default:
		// Acknowledged but not handled.
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
