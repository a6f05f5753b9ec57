package model

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSucceeded, PaymentFailed:
		return true
	}
	return false
}

type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Event is a bookable service owned by an expert.
type Event struct {
	ID              string
	ExpertUserID    string
	Name            string
	Slug            string
	DurationMinutes int
	PriceCents      int64
	Currency        string
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Expert struct {
	UserID                 string
	StripeConnectAccountID string
}

type Meeting struct {
	ID                    string
	EventID               string
	ExpertUserID          string
	GuestEmail            string
	GuestName             string
	GuestNotes            string
	StartTime             time.Time
	EndTime               time.Time
	Timezone              string
	MeetingURL            string
	StripePaymentIntentID string
	PaymentStatus         PaymentStatus
	TransferID            string
	TransferStatus        TransferStatus
	TransferScheduledAt   *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// PaymentTransfer is the obligation to pay an expert for one paid meeting.
// At most one exists per payment intent.
type PaymentTransfer struct {
	ID                    string
	PaymentIntentID       string
	MeetingID             string
	EventID               string
	ExpertUserID          string
	ExpertConnectAccount  string
	Amount                int64
	PlatformFee           int64
	Currency              string
	SessionStartTime      time.Time
	ScheduledTransferTime time.Time
	Status                TransferStatus
	TransferID            string
	StripeErrorCode       string
	StripeErrorMessage    string
	RetryCount            int
	Created               time.Time
	Updated               time.Time
}

type AuditEntry struct {
	ID           string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	OldValues    map[string]any
	NewValues    map[string]any
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}
