package audit_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/model"
)

func setup(t *testing.T) *audit.Logger {
	t.Helper()
	_ = godotenv.Load("../../.env")
	dbURL := os.Getenv("AUDIT_DATABASE_URL")
	if dbURL == "" {
		t.Skip("AUDIT_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(pool.Close)
	return audit.New(pool)
}

func TestLogAndRead(t *testing.T) {
	l := setup(t)
	ctx := context.Background()
	id := uuid.New().String()

	err := l.Log(ctx, model.AuditEntry{
		UserID:       "user_expert",
		Action:       audit.ActionMeetingCreated,
		ResourceType: audit.ResourceMeeting,
		ResourceID:   id,
		NewValues:    map[string]any{"payment_status": "pending"},
	})
	if err != nil {
		t.Fatalf("log: %v", err)
	}

	entries, err := l.Entries(ctx, audit.ResourceMeeting, id)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].NewValues["payment_status"] != "pending" {
		t.Errorf("new values: %v", entries[0].NewValues)
	}
}
