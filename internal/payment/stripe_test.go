package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v74"
)

func newTestGateway(t *testing.T, h http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewGateway("sk_test_123", &stripe.Backends{API: b, Connect: b, Uploads: b})
}

func TestTransferRefOf(t *testing.T) {
	tests := []struct {
		name string
		body string
		want TransferRef
	}{
		{"null", `{"id":"ch_123","object":"charge","transfer":null}`, TransferRef{Kind: TransferNone}},
		{"missing", `{"id":"ch_123","object":"charge"}`, TransferRef{Kind: TransferNone}},
		{"id string", `{"id":"ch_123","object":"charge","transfer":"tr_existing123"}`,
			TransferRef{Kind: TransferByID, ID: "tr_existing123"}},
		{"expanded", `{"id":"ch_123","object":"charge","transfer":{"id":"tr_obj","object":"transfer"}}`,
			TransferRef{Kind: TransferExpanded, ID: "tr_obj"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ch stripe.Charge
			if err := json.Unmarshal([]byte(tt.body), &ch); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got := chargeFromStripe(&ch).Transfer
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Present() != (tt.want.Kind != TransferNone) {
				t.Errorf("Present() = %v", got.Present())
			}
		})
	}
}

func TestChargeWithTransferExpands(t *testing.T) {
	var gotPath, gotQuery string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery, _ = url.QueryUnescape(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"ch_123","object":"charge","amount":5000,"currency":"eur",
			"payment_intent":"pi_1","transfer":{"id":"tr_obj","object":"transfer"}}`))
	})

	ch, err := g.ChargeWithTransfer(context.Background(), "ch_123")
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if gotPath != "/v1/charges/ch_123" {
		t.Errorf("path: %s", gotPath)
	}
	if !strings.Contains(gotQuery, "expand") || !strings.Contains(gotQuery, "transfer") {
		t.Errorf("expected transfer expansion, query=%q", gotQuery)
	}
	if ch.Transfer.Kind != TransferExpanded || ch.Transfer.ID != "tr_obj" {
		t.Errorf("transfer: %+v", ch.Transfer)
	}
	if ch.PaymentIntentID != "pi_1" {
		t.Errorf("payment intent: %s", ch.PaymentIntentID)
	}
}

func TestListTransfersBySource(t *testing.T) {
	var q url.Values
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			http.NotFound(w, r)
			return
		}
		q = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","url":"/v1/transfers","has_more":true,"data":[
			{"id":"tr_1","object":"transfer","amount":4250,"currency":"eur","destination":"acct_1",
			 "metadata":{"paymentTransferId":"pt_1"}},
			{"id":"tr_2","object":"transfer","amount":100,"currency":"eur"}]}`))
	})

	trs, err := g.ListTransfersBySource(context.Background(), "ch_separate123", TransferListLimit)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if q.Get("source_transaction") != "ch_separate123" {
		t.Errorf("source_transaction: %q", q.Get("source_transaction"))
	}
	if q.Get("limit") != "10" {
		t.Errorf("limit: %q", q.Get("limit"))
	}
	// has_more is ignored: only one page is read
	if len(trs) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(trs))
	}
	if trs[0].Metadata["paymentTransferId"] != "pt_1" || trs[0].Destination != "acct_1" {
		t.Errorf("first transfer: %+v", trs[0])
	}
	if trs[1].Metadata != nil && len(trs[1].Metadata) != 0 {
		t.Errorf("expected empty metadata, got %v", trs[1].Metadata)
	}
}

func TestCreateTransferSendsIdempotencyKey(t *testing.T) {
	var key string
	var form url.Values
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("Idempotency-Key")
		r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tr_new","object":"transfer","amount":4250,"currency":"eur"}`))
	})

	tr, err := g.CreateTransfer(context.Background(), TransferInput{
		Amount:            4250,
		Currency:          "eur",
		Destination:       "acct_1",
		SourceTransaction: "ch_1",
		IdempotencyKey:    "payout-pt_1",
		Metadata:          map[string]string{"paymentTransferId": "pt_1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tr.ID != "tr_new" {
		t.Errorf("id: %s", tr.ID)
	}
	if key != "payout-pt_1" {
		t.Errorf("idempotency key: %q", key)
	}
	if form.Get("source_transaction") != "ch_1" || form.Get("destination") != "acct_1" {
		t.Errorf("form: %v", form)
	}
	if form.Get("metadata[paymentTransferId]") != "pt_1" {
		t.Errorf("metadata not sent: %v", form)
	}
}

func TestChargeErrorPropagates(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such charge: 'ch_bad'"}}`))
	})

	_, err := g.ChargeWithTransfer(context.Background(), "ch_bad")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		t.Fatalf("expected *stripe.Error, got %T", err)
	}
	code, msg := ErrorDetails(err)
	if code != "resource_missing" || !strings.Contains(msg, "ch_bad") {
		t.Errorf("details: %s / %s", code, msg)
	}
	if Retryable(err) {
		t.Error("404 should not be retryable")
	}
}

func TestLatestChargeIDMissing(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"processing","latest_charge":null}`))
	})

	_, err := g.LatestChargeID(context.Background(), "pi_1")
	if !errors.Is(err, ErrNoCharge) {
		t.Fatalf("expected ErrNoCharge, got %v", err)
	}
}
