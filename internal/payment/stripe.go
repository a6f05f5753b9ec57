package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// TransferListLimit is the page size used when looking up transfers by source charge.
const TransferListLimit = 10

var ErrNoCharge = errors.New("payment intent has no charge")

// TransferRefKind tags how a charge referenced its transfer in the API response.
type TransferRefKind int

const (
	TransferNone TransferRefKind = iota
	TransferByID
	TransferExpanded
)

// TransferRef is the charge's transfer field after decoding. Callers switch on
// Kind instead of sniffing the raw payload.
type TransferRef struct {
	Kind TransferRefKind
	ID   string
}

func (r TransferRef) Present() bool { return r.Kind != TransferNone }

type Charge struct {
	ID              string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Transfer        TransferRef
}

type Transfer struct {
	ID          string
	Amount      int64
	Currency    string
	Destination string
	Metadata    map[string]string
}

type PaymentIntent struct {
	ID             string
	Status         string
	Amount         int64
	Currency       string
	LatestChargeID string
	Metadata       map[string]string
}

type TransferInput struct {
	Amount            int64
	Currency          string
	Destination       string
	SourceTransaction string
	IdempotencyKey    string
	Metadata          map[string]string
}

// Gateway is the Stripe API surface the service uses.
type Gateway struct {
	api *client.API
}

func NewGateway(secretKey string, backends *stripe.Backends) *Gateway {
	return &Gateway{api: client.New(secretKey, backends)}
}

// ChargeWithTransfer retrieves a charge with its transfer expanded.
func (g *Gateway) ChargeWithTransfer(ctx context.Context, chargeID string) (Charge, error) {
	params := &stripe.ChargeParams{}
	params.Context = ctx
	params.AddExpand("transfer")
	ch, err := g.api.Charges.Get(chargeID, params)
	if err != nil {
		return Charge{}, err
	}
	return chargeFromStripe(ch), nil
}

// ListTransfersBySource returns a single page of transfers created from chargeID.
func (g *Gateway) ListTransfersBySource(ctx context.Context, chargeID string, limit int) ([]Transfer, error) {
	params := &stripe.TransferListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true
	params.Filters.AddFilter("source_transaction", "", chargeID)

	var out []Transfer
	it := g.api.Transfers.List(params)
	for it.Next() {
		out = append(out, transferFromStripe(it.Transfer()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) CreateTransfer(ctx context.Context, in TransferInput) (Transfer, error) {
	params := &stripe.TransferParams{
		Amount:            stripe.Int64(in.Amount),
		Currency:          stripe.String(in.Currency),
		Destination:       stripe.String(in.Destination),
		SourceTransaction: stripe.String(in.SourceTransaction),
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(in.IdempotencyKey)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return Transfer{}, err
	}
	return transferFromStripe(tr), nil
}

func (g *Gateway) PaymentIntent(ctx context.Context, id string) (PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return PaymentIntent{}, err
	}
	out := PaymentIntent{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out, nil
}

// LatestChargeID resolves the charge backing a payment intent.
func (g *Gateway) LatestChargeID(ctx context.Context, paymentIntentID string) (string, error) {
	pi, err := g.PaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return "", err
	}
	if pi.LatestChargeID == "" {
		return "", fmt.Errorf("%s: %w", paymentIntentID, ErrNoCharge)
	}
	return pi.LatestChargeID, nil
}

func chargeFromStripe(ch *stripe.Charge) Charge {
	c := Charge{
		ID:       ch.ID,
		Amount:   ch.Amount,
		Currency: string(ch.Currency),
		Transfer: transferRefOf(ch.Transfer),
	}
	if ch.PaymentIntent != nil {
		c.PaymentIntentID = ch.PaymentIntent.ID
	}
	return c
}

// transferRefOf classifies stripe-go's decoded transfer field. An unexpanded
// reference decodes to a Transfer carrying only its ID.
func transferRefOf(t *stripe.Transfer) TransferRef {
	switch {
	case t == nil || t.ID == "":
		return TransferRef{Kind: TransferNone}
	case t.Object == "":
		return TransferRef{Kind: TransferByID, ID: t.ID}
	default:
		return TransferRef{Kind: TransferExpanded, ID: t.ID}
	}
}

func transferFromStripe(t *stripe.Transfer) Transfer {
	out := Transfer{
		ID:       t.ID,
		Amount:   t.Amount,
		Currency: string(t.Currency),
		Metadata: t.Metadata,
	}
	if t.Destination != nil {
		out.Destination = t.Destination.ID
	}
	return out
}

// ErrorDetails extracts the Stripe error code and message for persistence.
func ErrorDetails(err error) (code, msg string) {
	var se *stripe.Error
	if errors.As(err, &se) {
		code = string(se.Code)
		if code == "" {
			code = string(se.Type)
		}
		if se.HTTPStatusCode != 0 && code == "" {
			code = strconv.Itoa(se.HTTPStatusCode)
		}
		return code, se.Msg
	}
	return "", err.Error()
}

// Retryable reports whether a Stripe error is worth another attempt.
func Retryable(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return true
	}
	if se.Type == stripe.ErrorTypeAPI || se.Code == stripe.ErrorCodeRateLimit {
		return true
	}
	return se.HTTPStatusCode == 429 || se.HTTPStatusCode >= 500
}
