package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"eleva-care-api/internal/model"
)

const meetingColumns = `id, event_id, expert_user_id, guest_email, guest_name, guest_notes,
	start_time, end_time, timezone, COALESCE(meeting_url, ''), stripe_payment_intent_id,
	payment_status::text, COALESCE(transfer_id, ''), transfer_status::text,
	transfer_scheduled_at, created_at, updated_at`

func scanMeeting(row pgx.Row) (*model.Meeting, error) {
	m := &model.Meeting{}
	var payStatus, trStatus string
	err := row.Scan(&m.ID, &m.EventID, &m.ExpertUserID, &m.GuestEmail, &m.GuestName, &m.GuestNotes,
		&m.StartTime, &m.EndTime, &m.Timezone, &m.MeetingURL, &m.StripePaymentIntentID,
		&payStatus, &m.TransferID, &trStatus,
		&m.TransferScheduledAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, normalize(err)
	}
	m.PaymentStatus = model.PaymentStatus(payStatus)
	m.TransferStatus = model.TransferStatus(trStatus)
	return m, nil
}

func (s *Store) CreateMeeting(ctx context.Context, m *model.Meeting) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO meetings (id, event_id, expert_user_id, guest_email, guest_name, guest_notes,
		                       start_time, end_time, timezone, meeting_url, stripe_payment_intent_id,
		                       payment_status, transfer_status, transfer_scheduled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),$11,$12::payment_status,$13::transfer_status,$14)
		 RETURNING created_at, updated_at`,
		m.ID, m.EventID, m.ExpertUserID, m.GuestEmail, m.GuestName, m.GuestNotes,
		m.StartTime, m.EndTime, m.Timezone, m.MeetingURL, m.StripePaymentIntentID,
		string(m.PaymentStatus), string(m.TransferStatus), m.TransferScheduledAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	return normalize(err)
}

func (s *Store) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	return scanMeeting(s.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
}

func (s *Store) MeetingByPaymentIntent(ctx context.Context, paymentIntentID string) (*model.Meeting, error) {
	return scanMeeting(s.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE stripe_payment_intent_id = $1`, paymentIntentID))
}

// HasOverlap reports whether the expert already has a live meeting in [start, end).
func (s *Store) HasOverlap(ctx context.Context, expertUserID string, start, end time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM meetings
			WHERE expert_user_id = $1
			  AND payment_status <> 'failed'
			  AND start_time < $3
			  AND end_time > $2)`,
		expertUserID, start, end,
	).Scan(&exists)
	return exists, err
}

func (s *Store) UpdateMeetingPayment(ctx context.Context, id string, status model.PaymentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meetings SET payment_status = $1::payment_status, updated_at = NOW() WHERE id = $2`,
		string(status), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMeetingTransfer mirrors payout state onto the meeting row.
func (s *Store) SetMeetingTransfer(ctx context.Context, paymentIntentID string, status model.TransferStatus, transferID string, scheduledAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE meetings
		 SET transfer_status = $1::transfer_status,
		     transfer_id = COALESCE(NULLIF($2, ''), transfer_id),
		     transfer_scheduled_at = COALESCE($3, transfer_scheduled_at),
		     updated_at = NOW()
		 WHERE stripe_payment_intent_id = $4`,
		string(status), transferID, scheduledAt, paymentIntentID,
	)
	return err
}
