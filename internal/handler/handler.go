package handler

import (
	"context"
	"log/slog"
	"time"

	"eleva-care-api/internal/booking"
	"eleva-care-api/internal/model"
	"eleva-care-api/internal/payout"
	"eleva-care-api/internal/reconcile"
	"eleva-care-api/internal/wire"
)

type Booking interface {
	CreateMeeting(ctx context.Context, in booking.CreateMeetingInput) (*model.Meeting, error)
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
}

type Reconciler interface {
	CheckExistingTransfer(ctx context.Context, chargeID string, rec reconcile.Record) (reconcile.Result, error)
}

type Payouts interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (payout.Summary, error)
}

// Handler implements wire.BookingServiceServer.
type Handler struct {
	booking Booking
	rec     Reconciler
	payouts Payouts
	log     *slog.Logger
	now     func() time.Time
}

var _ wire.BookingServiceServer = (*Handler)(nil)

func New(b Booking, rec Reconciler, p Payouts, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{booking: b, rec: rec, payouts: p, log: log, now: time.Now}
}
