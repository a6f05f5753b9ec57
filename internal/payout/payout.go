// Package payout releases expert transfers once their scheduled time has
// passed, reconciling with Stripe first so a transfer is never issued twice.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/lock"
	"eleva-care-api/internal/model"
	"eleva-care-api/internal/mq"
	"eleva-care-api/internal/payment"
	"eleva-care-api/internal/reconcile"
	"eleva-care-api/internal/retry"
)

const schedulerActor = "payout-scheduler"

var tracer = otel.Tracer("eleva-care-api/payout")

type Store interface {
	DuePaymentTransfers(ctx context.Context, now time.Time, limit int) ([]model.PaymentTransfer, error)
	CompletePaymentTransfer(ctx context.Context, id, transferID string, at time.Time) error
	FailPaymentTransfer(ctx context.Context, id, code, msg string, maxRetries int, at time.Time) (model.TransferStatus, error)
	SetMeetingTransfer(ctx context.Context, paymentIntentID string, status model.TransferStatus, transferID string, scheduledAt *time.Time) error
}

type Stripe interface {
	LatestChargeID(ctx context.Context, paymentIntentID string) (string, error)
	CreateTransfer(ctx context.Context, in payment.TransferInput) (payment.Transfer, error)
}

type Reconciler interface {
	CheckExistingTransfer(ctx context.Context, chargeID string, rec reconcile.Record) (reconcile.Result, error)
}

// Locker returns lock.ErrHeld when another worker owns key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

type Auditor interface {
	Log(ctx context.Context, e model.AuditEntry) error
}

type Options struct {
	MaxRetries int
	LockTTL    time.Duration
	BatchSize  int
	Retry      retry.Policy
}

type Summary struct {
	Processed  int
	Reconciled int
	Created    int
	Skipped    int
	Failed     int
}

type Service struct {
	store  Store
	stripe Stripe
	rec    Reconciler
	locker Locker
	pub    Publisher
	audit  Auditor
	opts   Options
	log    *slog.Logger
	now    func() time.Time
}

func New(st Store, s Stripe, rec Reconciler, l Locker, pub Publisher, a Auditor, opts Options, log *slog.Logger) *Service {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = retry.Default
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = payment.Retryable
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, stripe: s, rec: rec, locker: l, pub: pub, audit: a, opts: opts, log: log, now: time.Now}
}

// ProcessDue handles up to limit payouts due at now, one at a time. A failure
// on one record is recorded and the batch continues. A limit below 1 uses the
// configured batch size.
func (s *Service) ProcessDue(ctx context.Context, now time.Time, limit int) (Summary, error) {
	ctx, span := tracer.Start(ctx, "payout.ProcessDue")
	defer span.End()

	if limit < 1 {
		limit = s.opts.BatchSize
	}
	due, err := s.store.DuePaymentTransfers(ctx, now, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("list due transfers: %w", err)
	}

	var sum Summary
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		sum.Processed++
		switch s.processOne(ctx, &due[i]) {
		case outcomeReconciled:
			sum.Reconciled++
		case outcomeCreated:
			sum.Created++
		case outcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
	}
	span.SetAttributes(
		attribute.Int("payout.processed", sum.Processed),
		attribute.Int("payout.failed", sum.Failed),
	)
	s.log.Info("payout batch done", "processed", sum.Processed, "reconciled", sum.Reconciled,
		"created", sum.Created, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, ctx.Err()
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeReconciled
	outcomeCreated
	outcomeSkipped
)

func (s *Service) processOne(ctx context.Context, pt *model.PaymentTransfer) outcome {
	log := s.log.With("payment_transfer_id", pt.ID, "payment_intent_id", pt.PaymentIntentID)

	unlock, err := s.locker.Acquire(ctx, "payout:"+pt.PaymentIntentID, s.opts.LockTTL)
	if errors.Is(err, lock.ErrHeld) {
		log.Info("payout locked by another worker")
		return outcomeSkipped
	} else if err != nil {
		log.Error("acquire payout lock", "err", err)
		return outcomeSkipped
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			log.Warn("release payout lock", "err", err)
		}
	}()

	chargeID, err := s.stripe.LatestChargeID(ctx, pt.PaymentIntentID)
	if err != nil {
		return s.fail(ctx, pt, err)
	}

	res, err := s.rec.CheckExistingTransfer(ctx, chargeID, reconcile.Record{ID: pt.ID, PaymentIntentID: pt.PaymentIntentID})
	if err != nil {
		return s.fail(ctx, pt, err)
	}
	if !res.ShouldCreateTransfer {
		s.finish(ctx, pt, res.ExistingTransferID)
		log.Info("payout reconciled with existing transfer", "transfer_id", res.ExistingTransferID)
		return outcomeReconciled
	}

	var tr payment.Transfer
	err = retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		var err error
		tr, err = s.stripe.CreateTransfer(ctx, payment.TransferInput{
			Amount:            pt.Amount,
			Currency:          pt.Currency,
			Destination:       pt.ExpertConnectAccount,
			SourceTransaction: chargeID,
			IdempotencyKey:    "payout-" + pt.ID,
			Metadata: map[string]string{
				"paymentTransferId": pt.ID,
				"paymentIntentId":   pt.PaymentIntentID,
				"meetingId":         pt.MeetingID,
			},
		})
		return err
	})
	if err != nil {
		return s.fail(ctx, pt, err)
	}
	if err := s.store.CompletePaymentTransfer(ctx, pt.ID, tr.ID, s.now()); err != nil {
		// the transfer exists at Stripe; the next run reconciles it
		log.Error("complete payment transfer", "transfer_id", tr.ID, "err", err)
		return outcomeFailed
	}
	s.finish(ctx, pt, tr.ID)
	log.Info("payout transfer created", "transfer_id", tr.ID, "amount", pt.Amount, "currency", pt.Currency)
	return outcomeCreated
}

// finish mirrors a completed payout onto the meeting and announces it.
func (s *Service) finish(ctx context.Context, pt *model.PaymentTransfer, transferID string) {
	if err := s.store.SetMeetingTransfer(ctx, pt.PaymentIntentID, model.TransferCompleted, transferID, nil); err != nil {
		s.log.Error("mirror meeting transfer", "payment_intent_id", pt.PaymentIntentID, "err", err)
	}
	s.record(ctx, model.AuditEntry{
		UserID:       schedulerActor,
		Action:       audit.ActionPayoutCompleted,
		ResourceType: audit.ResourcePaymentTransfer,
		ResourceID:   pt.ID,
		OldValues:    map[string]any{"status": string(pt.Status)},
		NewValues:    map[string]any{"status": string(model.TransferCompleted), "transfer_id": transferID},
	})
	s.publish(ctx, mq.RKPayoutCompleted, mq.Payout{
		PaymentTransferID: pt.ID,
		PaymentIntentID:   pt.PaymentIntentID,
		ExpertUserID:      pt.ExpertUserID,
		TransferID:        transferID,
		Amount:            pt.Amount,
		Currency:          pt.Currency,
		Status:            string(model.TransferCompleted),
	})
}

func (s *Service) fail(ctx context.Context, pt *model.PaymentTransfer, cause error) outcome {
	code, msg := payment.ErrorDetails(cause)
	st, err := s.store.FailPaymentTransfer(ctx, pt.ID, code, msg, s.opts.MaxRetries, s.now())
	if err != nil {
		s.log.Error("record payout failure", "payment_transfer_id", pt.ID, "cause", cause, "err", err)
		return outcomeFailed
	}
	s.log.Warn("payout attempt failed",
		"payment_transfer_id", pt.ID, "code", code, "err", cause, "status", st, "attempt", pt.RetryCount+1)

	if st == model.TransferFailed {
		if err := s.store.SetMeetingTransfer(ctx, pt.PaymentIntentID, model.TransferFailed, "", nil); err != nil {
			s.log.Error("mirror meeting transfer", "payment_intent_id", pt.PaymentIntentID, "err", err)
		}
	}
	s.record(ctx, model.AuditEntry{
		UserID:       schedulerActor,
		Action:       audit.ActionPayoutFailed,
		ResourceType: audit.ResourcePaymentTransfer,
		ResourceID:   pt.ID,
		NewValues:    map[string]any{"status": string(st), "error_code": code, "error_message": msg},
	})
	s.publish(ctx, mq.RKPayoutFailed, mq.Payout{
		PaymentTransferID: pt.ID,
		PaymentIntentID:   pt.PaymentIntentID,
		ExpertUserID:      pt.ExpertUserID,
		Amount:            pt.Amount,
		Currency:          pt.Currency,
		Status:            string(st),
		Reason:            msg,
	})
	return outcomeFailed
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
