package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"eleva-care-api/internal/model"
)

const transferColumns = `id, payment_intent_id, meeting_id, event_id, expert_user_id,
	expert_connect_account_id, amount, platform_fee, currency, session_start_time,
	scheduled_transfer_time, status::text, COALESCE(transfer_id, ''),
	COALESCE(stripe_error_code, ''), COALESCE(stripe_error_message, ''), retry_count,
	created, updated`

func scanTransfer(row pgx.Row) (model.PaymentTransfer, error) {
	var t model.PaymentTransfer
	var st string
	err := row.Scan(&t.ID, &t.PaymentIntentID, &t.MeetingID, &t.EventID, &t.ExpertUserID,
		&t.ExpertConnectAccount, &t.Amount, &t.PlatformFee, &t.Currency, &t.SessionStartTime,
		&t.ScheduledTransferTime, &st, &t.TransferID,
		&t.StripeErrorCode, &t.StripeErrorMessage, &t.RetryCount,
		&t.Created, &t.Updated)
	t.Status = model.TransferStatus(st)
	return t, err
}

// CreatePaymentTransfer inserts the payout obligation. It reports false when a
// record for the same payment intent already exists.
func (s *Store) CreatePaymentTransfer(ctx context.Context, t *model.PaymentTransfer) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO payment_transfers (id, payment_intent_id, meeting_id, event_id, expert_user_id,
		                                expert_connect_account_id, amount, platform_fee, currency,
		                                session_start_time, scheduled_transfer_time, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::transfer_status)
		 ON CONFLICT (payment_intent_id) DO NOTHING`,
		t.ID, t.PaymentIntentID, t.MeetingID, t.EventID, t.ExpertUserID,
		t.ExpertConnectAccount, t.Amount, t.PlatformFee, t.Currency,
		t.SessionStartTime, t.ScheduledTransferTime, string(t.Status),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) PaymentTransferByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.PaymentTransfer, error) {
	t, err := scanTransfer(s.pool.QueryRow(ctx,
		`SELECT `+transferColumns+` FROM payment_transfers WHERE payment_intent_id = $1`, paymentIntentID))
	if err != nil {
		return nil, normalize(err)
	}
	return &t, nil
}

// CompletePaymentTransfer is the single write issued when a Stripe transfer is
// confirmed for the record.
func (s *Store) CompletePaymentTransfer(ctx context.Context, id, transferID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE payment_transfers SET status = 'completed', transfer_id = $1, updated = $2 WHERE id = $3`,
		transferID, at, id,
	)
	return err
}

// FailPaymentTransfer records a failed payout attempt. The record stays pending
// until maxRetries attempts have failed.
func (s *Store) FailPaymentTransfer(ctx context.Context, id, code, msg string, maxRetries int, at time.Time) (model.TransferStatus, error) {
	var st string
	err := s.pool.QueryRow(ctx,
		`UPDATE payment_transfers
		 SET retry_count = retry_count + 1,
		     stripe_error_code = NULLIF($1, ''),
		     stripe_error_message = NULLIF($2, ''),
		     status = CASE WHEN retry_count + 1 >= $3 THEN 'failed'::transfer_status ELSE status END,
		     updated = $4
		 WHERE id = $5
		 RETURNING status::text`,
		code, msg, maxRetries, at, id,
	).Scan(&st)
	if err != nil {
		return "", normalize(err)
	}
	return model.TransferStatus(st), nil
}

// DuePaymentTransfers lists pending transfers whose scheduled time has passed, oldest first.
func (s *Store) DuePaymentTransfers(ctx context.Context, now time.Time, limit int) ([]model.PaymentTransfer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transferColumns+`
		 FROM payment_transfers
		 WHERE status = 'pending' AND scheduled_transfer_time <= $1
		 ORDER BY scheduled_transfer_time
		 LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PaymentTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
