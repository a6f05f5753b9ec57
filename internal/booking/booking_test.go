package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"eleva-care-api/internal/calendar"
	"eleva-care-api/internal/model"
	"eleva-care-api/internal/store"
)

// memStore keeps meetings and transfers in maps, mirroring the SQL semantics
// the service relies on.
type memStore struct {
	mu        sync.Mutex
	events    map[string]*model.Event
	experts   map[string]*model.Expert
	meetings  map[string]*model.Meeting
	transfers map[string]*model.PaymentTransfer // by payment intent
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		events: map[string]*model.Event{
			"ev-1": {ID: "ev-1", ExpertUserID: "user_expert", Name: "Consultation", DurationMinutes: 45,
				PriceCents: 5000, Currency: "eur", Active: true},
			"ev-off": {ID: "ev-off", ExpertUserID: "user_expert", DurationMinutes: 30, Active: false},
		},
		experts:   map[string]*model.Expert{"user_expert": {UserID: "user_expert", StripeConnectAccountID: "acct_expert"}},
		meetings:  map[string]*model.Meeting{},
		transfers: map[string]*model.PaymentTransfer{},
	}
}

func (m *memStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		return e, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ExpertByUserID(_ context.Context, id string) (*model.Expert, error) {
	if x, ok := m.experts[id]; ok {
		return x, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetMeeting(_ context.Context, id string) (*model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt, ok := m.meetings[id]; ok {
		cp := *mt
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) MeetingByPaymentIntent(_ context.Context, pi string) (*model.Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range m.meetings {
		if mt.StripePaymentIntentID == pi {
			cp := *mt
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) HasOverlap(_ context.Context, expert string, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range m.meetings {
		if mt.ExpertUserID == expert && mt.PaymentStatus != model.PaymentFailed &&
			mt.StartTime.Before(end) && mt.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateMeeting(_ context.Context, mt *model.Meeting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *mt
	m.meetings[mt.ID] = &cp
	return nil
}

func (m *memStore) UpdateMeetingPayment(_ context.Context, id string, st model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return store.ErrNotFound
	}
	mt.PaymentStatus = st
	return nil
}

func (m *memStore) SetMeetingTransfer(_ context.Context, pi string, st model.TransferStatus, trID string, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mt := range m.meetings {
		if mt.StripePaymentIntentID == pi {
			mt.TransferStatus = st
			if trID != "" {
				mt.TransferID = trID
			}
			if at != nil {
				mt.TransferScheduledAt = at
			}
		}
	}
	return nil
}

func (m *memStore) CreatePaymentTransfer(_ context.Context, t *model.PaymentTransfer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transfers[t.PaymentIntentID]; ok {
		return false, nil
	}
	cp := *t
	m.transfers[t.PaymentIntentID] = &cp
	return true, nil
}

type recorder struct {
	mu       sync.Mutex
	audits   []model.AuditEntry
	keys     []string
	auditErr error
}

func (r *recorder) Log(_ context.Context, e model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audits = append(r.audits, e)
	return r.auditErr
}

func (r *recorder) Publish(_ context.Context, key string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

type fakeCalendar struct{ err error }

func (f fakeCalendar) CreateEvent(_ context.Context, r calendar.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://meet.test/" + r.MeetingID, nil
}

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newService(st *memStore, rec *recorder) *Service {
	s := New(st, rec, rec, fakeCalendar{}, Options{
		FeeRate:     decimal.RequireFromString("0.15"),
		PayoutDelay: 24 * time.Hour,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return s
}

func validInput() CreateMeetingInput {
	return CreateMeetingInput{
		EventID:               "ev-1",
		GuestEmail:            "Guest@Example.com",
		GuestName:             "Ana Guest",
		StartTime:             now.Add(48 * time.Hour),
		Timezone:              "Europe/Lisbon",
		StripePaymentIntentID: "pi_1",
		PaymentStatus:         model.PaymentSucceeded,
	}
}

func TestCreateMeetingValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*CreateMeetingInput)
	}{
		{"missing event", func(in *CreateMeetingInput) { in.EventID = "" }},
		{"missing name", func(in *CreateMeetingInput) { in.GuestName = " " }},
		{"bad email", func(in *CreateMeetingInput) { in.GuestEmail = "nope" }},
		{"missing start", func(in *CreateMeetingInput) { in.StartTime = time.Time{} }},
		{"past booking", func(in *CreateMeetingInput) { in.StartTime = now.Add(-time.Hour) }},
		{"missing payment intent", func(in *CreateMeetingInput) { in.StripePaymentIntentID = "" }},
		{"unknown payment status", func(in *CreateMeetingInput) { in.PaymentStatus = "refunded" }},
		{"empty timezone", func(in *CreateMeetingInput) { in.Timezone = "" }},
		{"bad timezone", func(in *CreateMeetingInput) { in.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mod(&in)
			_, err := newService(newMemStore(), &recorder{}).CreateMeeting(context.Background(), in)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCreateMeetingSucceededSchedulesPayout(t *testing.T) {
	st := newMemStore()
	rec := &recorder{}
	m, err := newService(st, rec).CreateMeeting(context.Background(), validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.GuestEmail != "guest@example.com" {
		t.Errorf("email not normalized: %s", m.GuestEmail)
	}
	if !m.EndTime.Equal(m.StartTime.Add(45 * time.Minute)) {
		t.Errorf("end time: %v", m.EndTime)
	}
	if m.MeetingURL != "https://meet.test/"+m.ID {
		t.Errorf("meeting url: %s", m.MeetingURL)
	}

	tr, ok := st.transfers["pi_1"]
	if !ok {
		t.Fatal("expected payment transfer")
	}
	if tr.Amount != 4250 || tr.PlatformFee != 750 {
		t.Errorf("split: %d/%d", tr.Amount, tr.PlatformFee)
	}
	if tr.ExpertConnectAccount != "acct_expert" || tr.Status != model.TransferPending {
		t.Errorf("transfer: %+v", tr)
	}
	if want := m.EndTime.Add(24 * time.Hour); !tr.ScheduledTransferTime.Equal(want) {
		t.Errorf("scheduled at %v, want %v", tr.ScheduledTransferTime, want)
	}
	if len(rec.audits) != 1 || rec.audits[0].Action != "meeting.created" {
		t.Errorf("audits: %+v", rec.audits)
	}
	if len(rec.keys) != 1 || rec.keys[0] != "meeting.created" {
		t.Errorf("published: %v", rec.keys)
	}
}

func TestCreateMeetingPendingHasNoPayout(t *testing.T) {
	st := newMemStore()
	in := validInput()
	in.PaymentStatus = model.PaymentPending
	m, err := newService(st, &recorder{}).CreateMeeting(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(st.transfers) != 0 {
		t.Error("pending payment must not schedule a payout")
	}
	if m.TransferScheduledAt != nil {
		t.Error("transfer should not be scheduled yet")
	}
}

func TestCreateMeetingIdempotentByPaymentIntent(t *testing.T) {
	st := newMemStore()
	rec := &recorder{}
	svc := newService(st, rec)

	first, err := svc.CreateMeeting(context.Background(), validInput())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.CreateMeeting(context.Background(), validInput())
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected same meeting, got %s and %s", first.ID, second.ID)
	}
	if len(st.meetings) != 1 || len(st.transfers) != 1 {
		t.Errorf("expected one meeting and one transfer, got %d/%d", len(st.meetings), len(st.transfers))
	}
}

func TestCreateMeetingRetryCompletesPayout(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recorder{})
	expert := st.experts["user_expert"]
	delete(st.experts, "user_expert")

	if _, err := svc.CreateMeeting(context.Background(), validInput()); err == nil {
		t.Fatal("expected error without an expert account")
	}
	if len(st.meetings) != 1 || len(st.transfers) != 0 {
		t.Fatalf("after failure: %d meetings, %d transfers", len(st.meetings), len(st.transfers))
	}

	st.experts["user_expert"] = expert
	m, err := svc.CreateMeeting(context.Background(), validInput())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	tr, ok := st.transfers["pi_1"]
	if !ok {
		t.Fatal("retry must create the payment transfer")
	}
	if tr.MeetingID != m.ID || tr.Amount != 4250 {
		t.Errorf("transfer: %+v", tr)
	}
	if len(st.meetings) != 1 {
		t.Errorf("expected one meeting, got %d", len(st.meetings))
	}
}

func TestCreateMeetingRetryPendingSkipsPayout(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recorder{})
	in := validInput()
	in.PaymentStatus = model.PaymentPending
	for i := 0; i < 2; i++ {
		if _, err := svc.CreateMeeting(context.Background(), in); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	if len(st.transfers) != 0 {
		t.Error("pending payment must not schedule a payout on retry")
	}
}

func TestCreateMeetingConflicts(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recorder{})
	if _, err := svc.CreateMeeting(context.Background(), validInput()); err != nil {
		t.Fatalf("first: %v", err)
	}

	overlap := validInput()
	overlap.StripePaymentIntentID = "pi_2"
	overlap.StartTime = overlap.StartTime.Add(30 * time.Minute)
	if _, err := svc.CreateMeeting(context.Background(), overlap); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected ErrSlotTaken for overlap, got %v", err)
	}

	adjacent := validInput()
	adjacent.StripePaymentIntentID = "pi_3"
	adjacent.StartTime = adjacent.StartTime.Add(45 * time.Minute)
	if _, err := svc.CreateMeeting(context.Background(), adjacent); err != nil {
		t.Errorf("adjacent slot should be free: %v", err)
	}
}

func TestCreateMeetingEventChecks(t *testing.T) {
	svc := newService(newMemStore(), &recorder{})
	for _, id := range []string{"ev-missing", "ev-off"} {
		in := validInput()
		in.EventID = id
		if _, err := svc.CreateMeeting(context.Background(), in); !errors.Is(err, ErrEventNotFound) {
			t.Errorf("%s: expected ErrEventNotFound, got %v", id, err)
		}
	}
}

func TestCreateMeetingRaceReturnsSlotTaken(t *testing.T) {
	st := newMemStore()
	st.createErr = store.ErrConflict
	_, err := newService(st, &recorder{}).CreateMeeting(context.Background(), validInput())
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestCreateMeetingCalendarFailure(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recorder{})
	svc.cal = fakeCalendar{err: errors.New("calendar down")}
	if _, err := svc.CreateMeeting(context.Background(), validInput()); err == nil {
		t.Fatal("expected calendar error")
	}
	if len(st.meetings) != 0 {
		t.Error("meeting must not be stored when the calendar fails")
	}
}

func TestCreateMeetingAuditFailureIsNotFatal(t *testing.T) {
	rec := &recorder{auditErr: errors.New("audit db down")}
	if _, err := newService(newMemStore(), rec).CreateMeeting(context.Background(), validInput()); err != nil {
		t.Fatalf("audit failure should be logged only: %v", err)
	}
}

func TestSettlePaymentMultibanco(t *testing.T) {
	st := newMemStore()
	rec := &recorder{}
	svc := newService(st, rec)

	in := validInput()
	in.PaymentStatus = model.PaymentPending
	m, err := svc.CreateMeeting(context.Background(), in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.SettlePayment(context.Background(), "pi_1", model.PaymentSucceeded)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got.PaymentStatus != model.PaymentSucceeded || got.TransferScheduledAt == nil {
		t.Errorf("meeting after settle: %+v", got)
	}
	if st.meetings[m.ID].PaymentStatus != model.PaymentSucceeded {
		t.Error("status not persisted")
	}
	if _, ok := st.transfers["pi_1"]; !ok {
		t.Fatal("expected payout obligation")
	}

	// redelivery is a no-op
	audits, keys := len(rec.audits), len(rec.keys)
	if _, err := svc.SettlePayment(context.Background(), "pi_1", model.PaymentSucceeded); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(st.transfers) != 1 || len(rec.audits) != audits || len(rec.keys) != keys {
		t.Error("redelivered event must not duplicate side effects")
	}
}

func TestSettlePaymentFailed(t *testing.T) {
	st := newMemStore()
	rec := &recorder{}
	svc := newService(st, rec)
	in := validInput()
	in.PaymentStatus = model.PaymentPending
	m, _ := svc.CreateMeeting(context.Background(), in)

	got, err := svc.SettlePayment(context.Background(), "pi_1", model.PaymentFailed)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got.PaymentStatus != model.PaymentFailed || st.meetings[m.ID].TransferStatus != model.TransferFailed {
		t.Errorf("meeting: %+v", st.meetings[m.ID])
	}
	if len(st.transfers) != 0 {
		t.Error("failed payment must not create payout")
	}
	if rec.keys[len(rec.keys)-1] != "payment.failed" {
		t.Errorf("published: %v", rec.keys)
	}
}

func TestSettlePaymentIgnoresDowngrade(t *testing.T) {
	st := newMemStore()
	svc := newService(st, &recorder{})
	m, _ := svc.CreateMeeting(context.Background(), validInput())

	got, err := svc.SettlePayment(context.Background(), "pi_1", model.PaymentFailed)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got.PaymentStatus != model.PaymentSucceeded || st.meetings[m.ID].PaymentStatus != model.PaymentSucceeded {
		t.Error("succeeded payment must not be downgraded")
	}
}

func TestSettlePaymentUnknownIntent(t *testing.T) {
	_, err := newService(newMemStore(), &recorder{}).SettlePayment(context.Background(), "pi_unknown", model.PaymentSucceeded)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
