package wire

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

type CreateMeetingRequest struct {
	EventID               string
	GuestEmail            string
	GuestName             string
	GuestNotes            string
	StartTime             time.Time
	Timezone              string
	StripePaymentIntentID string
	PaymentStatus         string
}

func (m *CreateMeetingRequest) Marshal() ([]byte, error) {
	var out []byte
	out = appendString(out, 1, m.EventID)
	out = appendString(out, 2, m.GuestEmail)
	out = appendString(out, 3, m.GuestName)
	out = appendString(out, 4, m.GuestNotes)
	out = appendTime(out, 5, m.StartTime)
	out = appendString(out, 6, m.Timezone)
	out = appendString(out, 7, m.StripePaymentIntentID)
	out = appendString(out, 8, m.PaymentStatus)
	return out, nil
}

func (m *CreateMeetingRequest) Unmarshal(b []byte) error {
	*m = CreateMeetingRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(&m.EventID, typ, b)
		case 2:
			return consumeString(&m.GuestEmail, typ, b)
		case 3:
			return consumeString(&m.GuestName, typ, b)
		case 4:
			return consumeString(&m.GuestNotes, typ, b)
		case 5:
			return consumeTime(&m.StartTime, typ, b)
		case 6:
			return consumeString(&m.Timezone, typ, b)
		case 7:
			return consumeString(&m.StripePaymentIntentID, typ, b)
		case 8:
			return consumeString(&m.PaymentStatus, typ, b)
		}
		return 0
	})
}

type Meeting struct {
	ID                    string
	EventID               string
	ExpertUserID          string
	GuestEmail            string
	GuestName             string
	StartTime             time.Time
	EndTime               time.Time
	Timezone              string
	MeetingURL            string
	StripePaymentIntentID string
	PaymentStatus         string
	TransferStatus        string
	TransferID            string
	TransferScheduledAt   time.Time
	CreatedAt             time.Time
}

func (m *Meeting) Marshal() ([]byte, error) {
	var out []byte
	out = appendString(out, 1, m.ID)
	out = appendString(out, 2, m.EventID)
	out = appendString(out, 3, m.ExpertUserID)
	out = appendString(out, 4, m.GuestEmail)
	out = appendString(out, 5, m.GuestName)
	out = appendTime(out, 6, m.StartTime)
	out = appendTime(out, 7, m.EndTime)
	out = appendString(out, 8, m.Timezone)
	out = appendString(out, 9, m.MeetingURL)
	out = appendString(out, 10, m.StripePaymentIntentID)
	out = appendString(out, 11, m.PaymentStatus)
	out = appendString(out, 12, m.TransferStatus)
	out = appendString(out, 13, m.TransferID)
	out = appendTime(out, 14, m.TransferScheduledAt)
	out = appendTime(out, 15, m.CreatedAt)
	return out, nil
}

func (m *Meeting) Unmarshal(b []byte) error {
	*m = Meeting{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(&m.ID, typ, b)
		case 2:
			return consumeString(&m.EventID, typ, b)
		case 3:
			return consumeString(&m.ExpertUserID, typ, b)
		case 4:
			return consumeString(&m.GuestEmail, typ, b)
		case 5:
			return consumeString(&m.GuestName, typ, b)
		case 6:
			return consumeTime(&m.StartTime, typ, b)
		case 7:
			return consumeTime(&m.EndTime, typ, b)
		case 8:
			return consumeString(&m.Timezone, typ, b)
		case 9:
			return consumeString(&m.MeetingURL, typ, b)
		case 10:
			return consumeString(&m.StripePaymentIntentID, typ, b)
		case 11:
			return consumeString(&m.PaymentStatus, typ, b)
		case 12:
			return consumeString(&m.TransferStatus, typ, b)
		case 13:
			return consumeString(&m.TransferID, typ, b)
		case 14:
			return consumeTime(&m.TransferScheduledAt, typ, b)
		case 15:
			return consumeTime(&m.CreatedAt, typ, b)
		}
		return 0
	})
}

// MeetingResponse answers CreateMeeting and GetMeeting.
type MeetingResponse struct {
	Meeting *Meeting
}

func (m *MeetingResponse) Marshal() ([]byte, error) {
	if m.Meeting == nil {
		return nil, nil
	}
	return appendMessage(nil, 1, m.Meeting), nil
}

func (m *MeetingResponse) Unmarshal(b []byte) error {
	*m = MeetingResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			m.Meeting = &Meeting{}
			return consumeMessage(m.Meeting, typ, b)
		}
		return 0
	})
}

type GetMeetingRequest struct {
	ID string
}

func (m *GetMeetingRequest) Marshal() ([]byte, error) {
	return appendString(nil, 1, m.ID), nil
}

func (m *GetMeetingRequest) Unmarshal(b []byte) error {
	*m = GetMeetingRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeString(&m.ID, typ, b)
		}
		return 0
	})
}

type CheckExistingTransferRequest struct {
	ChargeID          string
	PaymentTransferID string
	PaymentIntentID   string
}

func (m *CheckExistingTransferRequest) Marshal() ([]byte, error) {
	var out []byte
	out = appendString(out, 1, m.ChargeID)
	out = appendString(out, 2, m.PaymentTransferID)
	out = appendString(out, 3, m.PaymentIntentID)
	return out, nil
}

func (m *CheckExistingTransferRequest) Unmarshal(b []byte) error {
	*m = CheckExistingTransferRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(&m.ChargeID, typ, b)
		case 2:
			return consumeString(&m.PaymentTransferID, typ, b)
		case 3:
			return consumeString(&m.PaymentIntentID, typ, b)
		}
		return 0
	})
}

type CheckExistingTransferResponse struct {
	ExistingTransferID   string
	ShouldCreateTransfer bool
}

func (m *CheckExistingTransferResponse) Marshal() ([]byte, error) {
	var out []byte
	out = appendString(out, 1, m.ExistingTransferID)
	out = appendBool(out, 2, m.ShouldCreateTransfer)
	return out, nil
}

func (m *CheckExistingTransferResponse) Unmarshal(b []byte) error {
	*m = CheckExistingTransferResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(&m.ExistingTransferID, typ, b)
		case 2:
			return consumeBool(&m.ShouldCreateTransfer, typ, b)
		}
		return 0
	})
}

type ProcessDueTransfersRequest struct {
	Limit int64
}

func (m *ProcessDueTransfersRequest) Marshal() ([]byte, error) {
	return appendInt(nil, 1, m.Limit), nil
}

func (m *ProcessDueTransfersRequest) Unmarshal(b []byte) error {
	*m = ProcessDueTransfersRequest{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num == 1 {
			return consumeInt(&m.Limit, typ, b)
		}
		return 0
	})
}

type ProcessDueTransfersResponse struct {
	Processed  int64
	Reconciled int64
	Created    int64
	Skipped    int64
	Failed     int64
}

func (m *ProcessDueTransfersResponse) Marshal() ([]byte, error) {
	var out []byte
	out = appendInt(out, 1, m.Processed)
	out = appendInt(out, 2, m.Reconciled)
	out = appendInt(out, 3, m.Created)
	out = appendInt(out, 4, m.Skipped)
	out = appendInt(out, 5, m.Failed)
	return out, nil
}

func (m *ProcessDueTransfersResponse) Unmarshal(b []byte) error {
	*m = ProcessDueTransfersResponse{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeInt(&m.Processed, typ, b)
		case 2:
			return consumeInt(&m.Reconciled, typ, b)
		case 3:
			return consumeInt(&m.Created, typ, b)
		case 4:
			return consumeInt(&m.Skipped, typ, b)
		case 5:
			return consumeInt(&m.Failed, typ, b)
		}
		return 0
	})
}
