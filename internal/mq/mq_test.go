package mq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDecode(t *testing.T) {
	p, err := Decode[Payout]([]byte(`{"payment_transfer_id":"pt_1","amount":4250,"currency":"eur"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.PaymentTransferID != "pt_1" || p.Amount != 4250 {
		t.Errorf("payout: %+v", p)
	}
	if _, err := Decode[Payout]([]byte(`{`)); err == nil {
		t.Error("expected error")
	}
}

func TestPublishConsume(t *testing.T) {
	url := os.Getenv("RABBIT_URL")
	if url == "" {
		t.Skip("RABBIT_URL not set")
	}
	exchange := "test.events." + uuid.New().String()[:8]
	queue := "test.q." + uuid.New().String()[:8]

	c, err := NewConsumer(ConsumerConfig{URL: url, Exchange: exchange, Queue: queue, Bindings: []string{"payout.*"}})
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	defer c.Close()
	p, err := NewPublisher(url, exchange)
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := c.Deliveries(ctx, "test")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := p.Publish(ctx, RKMeetingCreated, MeetingCreated{MeetingID: "m_skip"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(ctx, RKPayoutCompleted, Payout{PaymentTransferID: "pt_1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case d := <-msgs:
		if d.RoutingKey != RKPayoutCompleted || d.ContentType != "application/json" {
			t.Errorf("delivery: %s %s", d.RoutingKey, d.ContentType)
		}
		got, err := Decode[Payout](d.Body)
		if err != nil || got.PaymentTransferID != "pt_1" {
			t.Errorf("body: %+v %v", got, err)
		}
		_ = d.Ack(false)
	case <-ctx.Done():
		t.Fatal("no delivery")
	}
}
