// Package booking creates meetings for paid events and applies payment
// settlement, including deferred Multibanco confirmations.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/calendar"
	"eleva-care-api/internal/model"
	"eleva-care-api/internal/mq"
	"eleva-care-api/internal/payment"
	"eleva-care-api/internal/store"
)

var (
	ErrInvalid       = errors.New("invalid request")
	ErrEventNotFound = errors.New("event not found")
	ErrSlotTaken     = errors.New("time slot is no longer available")
	ErrNotFound      = errors.New("meeting not found")
)

const webhookActor = "stripe-webhook"

var tracer = otel.Tracer("eleva-care-api/booking")

type Store interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ExpertByUserID(ctx context.Context, userID string) (*model.Expert, error)
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
	MeetingByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Meeting, error)
	HasOverlap(ctx context.Context, expertUserID string, start, end time.Time) (bool, error)
	CreateMeeting(ctx context.Context, m *model.Meeting) error
	UpdateMeetingPayment(ctx context.Context, id string, status model.PaymentStatus) error
	SetMeetingTransfer(ctx context.Context, paymentIntentID string, status model.TransferStatus, transferID string, scheduledAt *time.Time) error
	CreatePaymentTransfer(ctx context.Context, t *model.PaymentTransfer) (bool, error)
}

type Auditor interface {
	Log(ctx context.Context, e model.AuditEntry) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

type Calendar interface {
	CreateEvent(ctx context.Context, r calendar.Request) (string, error)
}

type Options struct {
	FeeRate     decimal.Decimal
	PayoutDelay time.Duration
}

type Service struct {
	store Store
	audit Auditor
	pub   Publisher
	cal   Calendar
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

func New(st Store, a Auditor, pub Publisher, cal Calendar, opts Options, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, audit: a, pub: pub, cal: cal, opts: opts, log: log, now: time.Now}
}

type CreateMeetingInput struct {
	EventID               string
	GuestEmail            string
	GuestName             string
	GuestNotes            string
	StartTime             time.Time
	Timezone              string
	StripePaymentIntentID string
	PaymentStatus         model.PaymentStatus
}

func (in CreateMeetingInput) validate(now time.Time) error {
	switch {
	case in.EventID == "":
		return fmt.Errorf("%w: event id required", ErrInvalid)
	case strings.TrimSpace(in.GuestName) == "":
		return fmt.Errorf("%w: guest name required", ErrInvalid)
	case !strings.Contains(in.GuestEmail, "@"):
		return fmt.Errorf("%w: valid guest email required", ErrInvalid)
	case in.StartTime.IsZero():
		return fmt.Errorf("%w: start time required", ErrInvalid)
	case in.StartTime.Before(now.Add(-5 * time.Minute)):
		return fmt.Errorf("%w: cannot book in the past", ErrInvalid)
	case in.StripePaymentIntentID == "":
		return fmt.Errorf("%w: payment intent required", ErrInvalid)
	case !in.PaymentStatus.Valid():
		return fmt.Errorf("%w: unknown payment status %q", ErrInvalid, in.PaymentStatus)
	}
	if _, err := time.LoadLocation(in.Timezone); err != nil || in.Timezone == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, in.Timezone)
	}
	return nil
}

// CreateMeeting books a meeting for a paid (or pending) payment intent. A
// second call for the same payment intent returns the existing meeting.
func (s *Service) CreateMeeting(ctx context.Context, in CreateMeetingInput) (*model.Meeting, error) {
	ctx, span := tracer.Start(ctx, "booking.CreateMeeting")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.payment_intent_id", in.StripePaymentIntentID))

	if err := in.validate(s.now()); err != nil {
		return nil, err
	}

	if m, err := s.store.MeetingByPaymentIntent(ctx, in.StripePaymentIntentID); err == nil {
		s.log.Info("meeting already booked for payment intent",
			"meeting_id", m.ID, "payment_intent_id", in.StripePaymentIntentID)
		// an earlier attempt may have stored the meeting but not its payout
		if m.PaymentStatus == model.PaymentSucceeded {
			ev, err := s.store.GetEvent(ctx, m.EventID)
			if err != nil {
				return nil, fmt.Errorf("load event: %w", err)
			}
			if err := s.ensureTransfer(ctx, m, ev); err != nil {
				return nil, err
			}
		}
		return m, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup meeting: %w", err)
	}

	ev, err := s.store.GetEvent(ctx, in.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEventNotFound
	} else if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if !ev.Active {
		return nil, ErrEventNotFound
	}

	start := in.StartTime.UTC()
	end := start.Add(time.Duration(ev.DurationMinutes) * time.Minute)

	if taken, err := s.store.HasOverlap(ctx, ev.ExpertUserID, start, end); err != nil {
		return nil, fmt.Errorf("overlap check: %w", err)
	} else if taken {
		return nil, ErrSlotTaken
	}

	m := &model.Meeting{
		ID:                    uuid.New().String(),
		EventID:               ev.ID,
		ExpertUserID:          ev.ExpertUserID,
		GuestEmail:            strings.ToLower(strings.TrimSpace(in.GuestEmail)),
		GuestName:             strings.TrimSpace(in.GuestName),
		GuestNotes:            in.GuestNotes,
		StartTime:             start,
		EndTime:               end,
		Timezone:              in.Timezone,
		StripePaymentIntentID: in.StripePaymentIntentID,
		PaymentStatus:         in.PaymentStatus,
		TransferStatus:        model.TransferPending,
	}
	if m.PaymentStatus == model.PaymentSucceeded {
		at := s.scheduledTransferTime(m)
		m.TransferScheduledAt = &at
	}

	link, err := s.cal.CreateEvent(ctx, calendar.Request{
		MeetingID:    m.ID,
		ExpertUserID: m.ExpertUserID,
		GuestEmail:   m.GuestEmail,
		GuestName:    m.GuestName,
		Summary:      ev.Name,
		Start:        start,
		End:          end,
		Timezone:     m.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar event: %w", err)
	}
	m.MeetingURL = link

	if err := s.store.CreateMeeting(ctx, m); errors.Is(err, store.ErrConflict) {
		// a concurrent request for the same payment intent won
		return nil, ErrSlotTaken
	} else if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	if m.PaymentStatus == model.PaymentSucceeded {
		if err := s.ensureTransfer(ctx, m, ev); err != nil {
			return nil, err
		}
	}

	s.record(ctx, model.AuditEntry{
		UserID:       m.ExpertUserID,
		Action:       audit.ActionMeetingCreated,
		ResourceType: audit.ResourceMeeting,
		ResourceID:   m.ID,
		NewValues: map[string]any{
			"event_id":          m.EventID,
			"guest_email":       m.GuestEmail,
			"start_time":        m.StartTime,
			"payment_intent_id": m.StripePaymentIntentID,
			"payment_status":    string(m.PaymentStatus),
		},
	})
	s.publish(ctx, mq.RKMeetingCreated, mq.MeetingCreated{
		MeetingID:    m.ID,
		EventID:      m.EventID,
		ExpertUserID: m.ExpertUserID,
		GuestEmail:   m.GuestEmail,
		GuestName:    m.GuestName,
		Start:        m.StartTime,
		End:          m.EndTime,
		Timezone:     m.Timezone,
		MeetingURL:   m.MeetingURL,
		Payment:      string(m.PaymentStatus),
	})

	s.log.Info("meeting created", "meeting_id", m.ID, "event_id", m.EventID, "payment_status", m.PaymentStatus)
	return m, nil
}

func (s *Service) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	m, err := s.store.GetMeeting(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

// SettlePayment applies the final outcome of a payment intent. Redelivered
// events are no-ops, except that a succeeded payment always ends with a
// payout obligation.
func (s *Service) SettlePayment(ctx context.Context, paymentIntentID string, status model.PaymentStatus) (*model.Meeting, error) {
	ctx, span := tracer.Start(ctx, "booking.SettlePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.payment_intent_id", paymentIntentID),
		attribute.String("payment.status", string(status)),
	)

	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalid, status)
	}
	m, err := s.store.MeetingByPaymentIntent(ctx, paymentIntentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("lookup meeting: %w", err)
	}

	prev := m.PaymentStatus
	if prev == model.PaymentSucceeded && status != model.PaymentSucceeded {
		s.log.Warn("ignoring payment downgrade", "meeting_id", m.ID, "from", prev, "to", status)
		return m, nil
	}

	if prev != status {
		if err := s.store.UpdateMeetingPayment(ctx, m.ID, status); err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
		m.PaymentStatus = status
	}

	switch status {
	case model.PaymentSucceeded:
		ev, err := s.store.GetEvent(ctx, m.EventID)
		if err != nil {
			return nil, fmt.Errorf("load event: %w", err)
		}
		if err := s.ensureTransfer(ctx, m, ev); err != nil {
			return nil, err
		}
	case model.PaymentFailed:
		if prev != status {
			if err := s.store.SetMeetingTransfer(ctx, paymentIntentID, model.TransferFailed, "", nil); err != nil {
				return nil, fmt.Errorf("mark transfer failed: %w", err)
			}
			m.TransferStatus = model.TransferFailed
		}
	}

	if prev == status {
		return m, nil
	}

	s.record(ctx, model.AuditEntry{
		UserID:       webhookActor,
		Action:       audit.ActionPaymentSettled,
		ResourceType: audit.ResourceMeeting,
		ResourceID:   m.ID,
		OldValues:    map[string]any{"payment_status": string(prev)},
		NewValues:    map[string]any{"payment_status": string(status)},
	})
	key := mq.RKPaymentSucceeded
	if status == model.PaymentFailed {
		key = mq.RKPaymentFailed
	}
	if status != model.PaymentPending {
		s.publish(ctx, key, mq.PaymentSettled{
			MeetingID:       m.ID,
			PaymentIntentID: paymentIntentID,
			GuestEmail:      m.GuestEmail,
			Status:          string(status),
		})
	}
	s.log.Info("payment settled", "meeting_id", m.ID, "from", prev, "to", status)
	return m, nil
}

// ensureTransfer records the expert payout owed for m. It is safe to repeat.
func (s *Service) ensureTransfer(ctx context.Context, m *model.Meeting, ev *model.Event) error {
	expert, err := s.store.ExpertByUserID(ctx, m.ExpertUserID)
	if err != nil {
		return fmt.Errorf("load expert %s: %w", m.ExpertUserID, err)
	}
	amount, fee := payment.SplitFee(ev.PriceCents, s.opts.FeeRate)
	at := s.scheduledTransferTime(m)

	t := &model.PaymentTransfer{
		ID:                    uuid.New().String(),
		PaymentIntentID:       m.StripePaymentIntentID,
		MeetingID:             m.ID,
		EventID:               ev.ID,
		ExpertUserID:          m.ExpertUserID,
		ExpertConnectAccount:  expert.StripeConnectAccountID,
		Amount:                amount,
		PlatformFee:           fee,
		Currency:              ev.Currency,
		SessionStartTime:      m.StartTime,
		ScheduledTransferTime: at,
		Status:                model.TransferPending,
	}
	created, err := s.store.CreatePaymentTransfer(ctx, t)
	if err != nil {
		return fmt.Errorf("create payment transfer: %w", err)
	}
	if !created {
		return nil
	}
	if err := s.store.SetMeetingTransfer(ctx, m.StripePaymentIntentID, model.TransferPending, "", &at); err != nil {
		return fmt.Errorf("schedule transfer: %w", err)
	}
	m.TransferScheduledAt = &at
	s.log.Info("payout scheduled",
		"meeting_id", m.ID, "payment_transfer_id", t.ID, "amount", amount, "fee", fee, "at", at)
	return nil
}

func (s *Service) scheduledTransferTime(m *model.Meeting) time.Time {
	return m.EndTime.Add(s.opts.PayoutDelay)
}

func (s *Service) record(ctx context.Context, e model.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, e); err != nil {
		s.log.Error("audit log failed", "action", e.Action, "resource_id", e.ResourceID, "err", err)
	}
}

func (s *Service) publish(ctx context.Context, key string, v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, key, v); err != nil {
		s.log.Error("publish failed", "key", key, "err", err)
	}
}
