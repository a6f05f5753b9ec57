// Package notify turns booking and payout events into user-facing
// notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"eleva-care-api/internal/model"
	"eleva-care-api/internal/mq"
)

// Bindings are the routing keys the worker subscribes to.
var Bindings = []string{"meeting.*", "payment.*", "payout.*"}

var errPoison = errors.New("undecodable message")

// Message goes to a guest by Email or to a registered user by UserID, the
// IdP subject the notification provider knows them by.
type Message struct {
	Email   string
	UserID  string
	Subject string
	Body    string
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// LogNotifier writes notifications to the log. It stands in for the email
// provider in development.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, m Message) error {
	n.Log.Info("notification", "email", m.Email, "user_id", m.UserID, "subject", m.Subject, "body", m.Body)
	return nil
}

type Worker struct {
	n   Notifier
	log *slog.Logger
}

func NewWorker(n Notifier, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{n: n, log: log}
}

// Run acks handled deliveries, requeues failed ones and dead-letters
// payloads that cannot be decoded. It returns when ctx is done or the
// channel closes.
func (w *Worker) Run(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			err := w.handle(ctx, d.RoutingKey, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errPoison):
				w.log.Error("dead-lettering message", "key", d.RoutingKey, "message_id", d.MessageId, "err", err)
				_ = d.Nack(false, false)
			default:
				w.log.Warn("notify failed, requeueing", "key", d.RoutingKey, "err", err)
				_ = d.Nack(false, true)
			}
		}
	}
}

func decode[T any](body []byte) (T, error) {
	v, err := mq.Decode[T](body)
	if err != nil {
		return v, fmt.Errorf("%w: %v", errPoison, err)
	}
	return v, nil
}

func (w *Worker) handle(ctx context.Context, key string, body []byte) error {
	switch key {
	case mq.RKMeetingCreated:
		ev, err := decode[mq.MeetingCreated](body)
		if err != nil {
			return err
		}
		return w.n.Notify(ctx, Message{
			Email:   ev.GuestEmail,
			Subject: "Your session is booked",
			Body: fmt.Sprintf("Hi %s, your session on %s is confirmed. Join at %s",
				ev.GuestName, localTime(ev.Start, ev.Timezone), ev.MeetingURL),
		})

	case mq.RKPaymentSucceeded:
		ev, err := decode[mq.PaymentSettled](body)
		if err != nil {
			return err
		}
		return w.n.Notify(ctx, Message{
			Email:   ev.GuestEmail,
			Subject: "Payment received",
			Body:    fmt.Sprintf("We received your payment for meeting %s.", ev.MeetingID),
		})

	case mq.RKPaymentFailed:
		ev, err := decode[mq.PaymentSettled](body)
		if err != nil {
			return err
		}
		return w.n.Notify(ctx, Message{
			Email:   ev.GuestEmail,
			Subject: "Payment failed",
			Body:    fmt.Sprintf("Your payment for meeting %s did not go through. The booking will not be held.", ev.MeetingID),
		})

	case mq.RKPayoutCompleted:
		ev, err := decode[mq.Payout](body)
		if err != nil {
			return err
		}
		return w.n.Notify(ctx, Message{
			UserID:  ev.ExpertUserID,
			Subject: "Payout sent",
			Body:    fmt.Sprintf("%s has been sent to your account (transfer %s).", money(ev.Amount, ev.Currency), ev.TransferID),
		})

	case mq.RKPayoutFailed:
		ev, err := decode[mq.Payout](body)
		if err != nil {
			return err
		}
		if ev.Status == string(model.TransferFailed) {
			return w.n.Notify(ctx, Message{
				UserID:  ev.ExpertUserID,
				Subject: "Payout failed",
				Body: fmt.Sprintf("We could not send %s: %s. Our team has been notified and will contact you.",
					money(ev.Amount, ev.Currency), ev.Reason),
			})
		}
		return w.n.Notify(ctx, Message{
			UserID:  ev.ExpertUserID,
			Subject: "Payout delayed",
			Body:    fmt.Sprintf("We could not send %s yet: %s. We will retry automatically.", money(ev.Amount, ev.Currency), ev.Reason),
		})

	default:
		w.log.Info("skipping unknown key", "key", key)
	}
	return nil
}

func localTime(t time.Time, tz string) string {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		t = t.In(loc)
	}
	return t.Format("Mon 2 Jan 2006 15:04 MST")
}

// zeroDecimal lists the Stripe currencies whose amounts have no minor unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func money(minor int64, currency string) string {
	cur := strings.ToLower(currency)
	if zeroDecimal[cur] {
		return fmt.Sprintf("%d %s", minor, strings.ToUpper(cur))
	}
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(cur)
}
