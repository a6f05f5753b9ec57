package mq

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	RKMeetingCreated   = "meeting.created"
	RKPaymentSucceeded = "payment.succeeded"
	RKPaymentFailed    = "payment.failed"
	RKPayoutCompleted  = "payout.completed"
	RKPayoutFailed     = "payout.failed"
)

type MeetingCreated struct {
	MeetingID    string    `json:"meeting_id"`
	EventID      string    `json:"event_id"`
	ExpertUserID string    `json:"expert_user_id"`
	GuestEmail   string    `json:"guest_email"`
	GuestName    string    `json:"guest_name"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Timezone     string    `json:"timezone"`
	MeetingURL   string    `json:"meeting_url,omitempty"`
	Payment      string    `json:"payment_status"`
}

type PaymentSettled struct {
	MeetingID       string `json:"meeting_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	GuestEmail      string `json:"guest_email"`
	Status          string `json:"status"`
}

type Payout struct {
	PaymentTransferID string `json:"payment_transfer_id"`
	PaymentIntentID   string `json:"payment_intent_id"`
	ExpertUserID      string `json:"expert_user_id"`
	TransferID        string `json:"transfer_id,omitempty"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	Reason            string `json:"reason,omitempty"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
