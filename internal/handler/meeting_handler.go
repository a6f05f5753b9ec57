package handler

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"eleva-care-api/internal/auth"
	"eleva-care-api/internal/booking"
	"eleva-care-api/internal/middleware"
	"eleva-care-api/internal/model"
	"eleva-care-api/internal/wire"
)

func (h *Handler) CreateMeeting(ctx context.Context, req *wire.CreateMeetingRequest) (*wire.MeetingResponse, error) {
	if req.EventID == "" {
		return nil, status.Error(codes.InvalidArgument, "event id required")
	}
	if req.StartTime.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "start time required")
	}

	m, err := h.booking.CreateMeeting(ctx, booking.CreateMeetingInput{
		EventID:               req.EventID,
		GuestEmail:            req.GuestEmail,
		GuestName:             req.GuestName,
		GuestNotes:            req.GuestNotes,
		StartTime:             req.StartTime,
		Timezone:              req.Timezone,
		StripePaymentIntentID: req.StripePaymentIntentID,
		PaymentStatus:         model.PaymentStatus(req.PaymentStatus),
	})
	if err != nil {
		return nil, h.statusFor("create meeting", err)
	}
	return &wire.MeetingResponse{Meeting: toWire(m)}, nil
}

func (h *Handler) GetMeeting(ctx context.Context, req *wire.GetMeetingRequest) (*wire.MeetingResponse, error) {
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	m, err := h.booking.GetMeeting(ctx, req.ID)
	if err != nil {
		return nil, h.statusFor("get meeting", err)
	}
	// don't leak existence of other experts' meetings
	if m.ExpertUserID != middleware.UserID(ctx) && middleware.Role(ctx) != auth.RoleAdmin {
		return nil, status.Error(codes.NotFound, "meeting not found")
	}
	return &wire.MeetingResponse{Meeting: toWire(m)}, nil
}

// statusFor maps service errors onto gRPC codes. Unexpected errors are logged
// and reported as Internal.
func (h *Handler) statusFor(op string, err error) error {
	switch {
	case errors.Is(err, booking.ErrInvalid):
		return status.Error(codes.InvalidArgument, strings.TrimPrefix(err.Error(), booking.ErrInvalid.Error()+": "))
	case errors.Is(err, booking.ErrEventNotFound), errors.Is(err, booking.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	h.log.Error(op, "err", err)
	return status.Error(codes.Internal, "internal error")
}

func toWire(m *model.Meeting) *wire.Meeting {
	out := &wire.Meeting{
		ID:                    m.ID,
		EventID:               m.EventID,
		ExpertUserID:          m.ExpertUserID,
		GuestEmail:            m.GuestEmail,
		GuestName:             m.GuestName,
		StartTime:             m.StartTime,
		EndTime:               m.EndTime,
		Timezone:              m.Timezone,
		MeetingURL:            m.MeetingURL,
		StripePaymentIntentID: m.StripePaymentIntentID,
		PaymentStatus:         string(m.PaymentStatus),
		TransferStatus:        string(m.TransferStatus),
		TransferID:            m.TransferID,
		CreatedAt:             m.CreatedAt,
	}
	if m.TransferScheduledAt != nil {
		out.TransferScheduledAt = *m.TransferScheduledAt
	}
	return out
}
