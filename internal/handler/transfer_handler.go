package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"eleva-care-api/internal/reconcile"
	"eleva-care-api/internal/wire"
)

const maxDueBatch = 500

func (h *Handler) CheckExistingTransfer(ctx context.Context, req *wire.CheckExistingTransferRequest) (*wire.CheckExistingTransferResponse, error) {
	if req.ChargeID == "" || req.PaymentTransferID == "" {
		return nil, status.Error(codes.InvalidArgument, "charge id and payment transfer id required")
	}
	res, err := h.rec.CheckExistingTransfer(ctx, req.ChargeID, reconcile.Record{
		ID:              req.PaymentTransferID,
		PaymentIntentID: req.PaymentIntentID,
	})
	if err != nil {
		h.log.Error("check existing transfer", "charge_id", req.ChargeID, "err", err)
		return nil, status.Error(codes.Internal, "transfer lookup failed")
	}
	return &wire.CheckExistingTransferResponse{
		ExistingTransferID:   res.ExistingTransferID,
		ShouldCreateTransfer: res.ShouldCreateTransfer,
	}, nil
}

func (h *Handler) ProcessDueTransfers(ctx context.Context, req *wire.ProcessDueTransfersRequest) (*wire.ProcessDueTransfersResponse, error) {
	if req.Limit < 0 || req.Limit > maxDueBatch {
		return nil, status.Errorf(codes.InvalidArgument, "limit must be between 0 and %d", maxDueBatch)
	}
	sum, err := h.payouts.ProcessDue(ctx, h.now(), int(req.Limit))
	if err != nil {
		h.log.Error("process due transfers", "err", err)
		return nil, status.Error(codes.Internal, "payout run failed")
	}
	return &wire.ProcessDueTransfersResponse{
		Processed:  int64(sum.Processed),
		Reconciled: int64(sum.Reconciled),
		Created:    int64(sum.Created),
		Skipped:    int64(sum.Skipped),
		Failed:     int64(sum.Failed),
	}, nil
}
