package store

import (
	"context"

	"eleva-care-api/internal/model"
)

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e := &model.Event{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, expert_user_id, name, slug, duration_minutes, price_cents,
		        currency, is_active, created_at, updated_at
		 FROM events WHERE id = $1`, id,
	).Scan(&e.ID, &e.ExpertUserID, &e.Name, &e.Slug, &e.DurationMinutes, &e.PriceCents,
		&e.Currency, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, normalize(err)
	}
	return e, nil
}

func (s *Store) ExpertByUserID(ctx context.Context, userID string) (*model.Expert, error) {
	x := &model.Expert{}
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, stripe_connect_account_id FROM experts WHERE user_id = $1`, userID,
	).Scan(&x.UserID, &x.StripeConnectAccountID)
	if err != nil {
		return nil, normalize(err)
	}
	return x, nil
}
