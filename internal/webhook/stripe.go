// Package webhook receives Stripe events and applies payment outcomes to
// bookings.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/booking"
	"eleva-care-api/internal/model"
)

// Stripe caps event payloads well below this.
const maxPayload = 64 << 10

type Settler interface {
	SettlePayment(ctx context.Context, paymentIntentID string, status model.PaymentStatus) (*model.Meeting, error)
}

type Handler struct {
	secret  string
	settler Settler
	log     *slog.Logger
}

func New(secret string, s Settler, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{secret: secret, settler: s, log: log}
}

var statusByEvent = map[string]model.PaymentStatus{
	"payment_intent.succeeded":      model.PaymentSucceeded,
	"payment_intent.payment_failed": model.PaymentFailed,
	"payment_intent.processing":     model.PaymentPending,
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayload))
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	// only data.object.id is read, so any account API version will do
	ev, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		h.log.Warn("stripe webhook rejected", "err", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	status, ok := statusByEvent[string(ev.Type)]
	if !ok {
		h.log.Debug("stripe event ignored", "type", ev.Type, "event_id", ev.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil || pi.ID == "" {
		h.log.Warn("stripe event without payment intent", "event_id", ev.ID, "err", err)
		http.Error(w, "bad event payload", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = audit.WithRequest(ctx, host, r.UserAgent())
	}
	_, err = h.settler.SettlePayment(ctx, pi.ID, status)
	switch {
	case err == nil:
		h.log.Info("stripe event applied", "type", ev.Type, "event_id", ev.ID, "payment_intent_id", pi.ID)
	case errors.Is(err, booking.ErrNotFound):
		// booking not written yet; the success path creates the payout itself
		h.log.Warn("no meeting for payment intent", "type", ev.Type, "payment_intent_id", pi.ID)
	default:
		h.log.Error("stripe event failed", "type", ev.Type, "event_id", ev.ID, "err", err)
		// Stripe retries on 5xx
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
