// Package reconcile decides whether a Stripe transfer already exists for a
// charge before an expert payout is issued.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"eleva-care-api/internal/payment"
)

const (
	metaPaymentTransferID = "paymentTransferId"
	metaPaymentIntentID   = "paymentIntentId"
)

var tracer = otel.Tracer("eleva-care-api/reconcile")

type Stripe interface {
	ChargeWithTransfer(ctx context.Context, chargeID string) (payment.Charge, error)
	ListTransfersBySource(ctx context.Context, chargeID string, limit int) ([]payment.Transfer, error)
}

type Store interface {
	CompletePaymentTransfer(ctx context.Context, id, transferID string, at time.Time) error
}

// Record identifies the local payout obligation being reconciled.
type Record struct {
	ID              string
	PaymentIntentID string
}

type Result struct {
	// ExistingTransferID is empty when Stripe has no transfer for the charge.
	ExistingTransferID   string
	ShouldCreateTransfer bool
}

type Reconciler struct {
	stripe Stripe
	store  Store
	log    *slog.Logger
	now    func() time.Time
}

func New(s Stripe, st Store, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{stripe: s, store: st, log: log, now: time.Now}
}

// CheckExistingTransfer looks for a transfer already tied to chargeID, first on
// the charge itself and then among transfers sourced from it. When one is found
// the local record is marked completed. Stripe and store errors are returned as is.
func (r *Reconciler) CheckExistingTransfer(ctx context.Context, chargeID string, rec Record) (Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.CheckExistingTransfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("stripe.charge_id", chargeID),
		attribute.String("payment_transfer.id", rec.ID),
	)

	ch, err := r.stripe.ChargeWithTransfer(ctx, chargeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieve charge")
		return Result{}, err
	}

	if ch.Transfer.Present() {
		r.log.Info("transfer attached to charge",
			"charge_id", chargeID, "transfer_id", ch.Transfer.ID, "expanded", ch.Transfer.Kind == payment.TransferExpanded)
		return r.complete(ctx, rec, ch.Transfer.ID)
	}

	// charge and transfer created separately: no transfer_data link on the charge
	trs, err := r.stripe.ListTransfersBySource(ctx, chargeID, payment.TransferListLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list transfers")
		return Result{}, err
	}

	var found string
	matches := 0
	for _, tr := range trs {
		if !matchesRecord(tr.Metadata, rec) {
			continue
		}
		matches++
		if found == "" {
			found = tr.ID
		}
	}
	if matches > 1 {
		// first match in list order wins; flag it so payouts can be audited
		r.log.Warn("multiple transfers match payment transfer",
			"charge_id", chargeID, "payment_transfer_id", rec.ID, "matches", matches, "chosen", found)
	}
	if found == "" {
		span.SetAttributes(attribute.Bool("reconcile.should_create", true))
		return Result{ShouldCreateTransfer: true}, nil
	}
	return r.complete(ctx, rec, found)
}

func (r *Reconciler) complete(ctx context.Context, rec Record, transferID string) (Result, error) {
	if err := r.store.CompletePaymentTransfer(ctx, rec.ID, transferID, r.now()); err != nil {
		return Result{}, err
	}
	return Result{ExistingTransferID: transferID, ShouldCreateTransfer: false}, nil
}

func matchesRecord(md map[string]string, rec Record) bool {
	if len(md) == 0 {
		return false
	}
	if v := md[metaPaymentTransferID]; v != "" && v == rec.ID {
		return true
	}
	if v := md[metaPaymentIntentID]; v != "" && v == rec.PaymentIntentID {
		return true
	}
	return false
}
