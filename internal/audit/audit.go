// Package audit writes compliance audit entries to their own database.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"eleva-care-api/internal/model"
)

const (
	ActionMeetingCreated    = "meeting.created"
	ActionPaymentSettled    = "payment.settled"
	ActionPayoutCompleted   = "payout.completed"
	ActionPayoutFailed      = "payout.failed"
	ResourceMeeting         = "meeting"
	ResourcePaymentTransfer = "payment_transfer"
)

type requestKey struct{}

type request struct {
	ip, userAgent string
}

// WithRequest attaches the caller address and user agent that Log records
// on entries which do not set their own.
func WithRequest(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestKey{}, request{ip: ip, userAgent: userAgent})
}

func withRequestInfo(ctx context.Context, e model.AuditEntry) model.AuditEntry {
	r, ok := ctx.Value(requestKey{}).(request)
	if !ok {
		return e
	}
	if e.IPAddress == "" {
		e.IPAddress = r.ip
	}
	if e.UserAgent == "" {
		e.UserAgent = r.userAgent
	}
	return e
}

type Logger struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

func (l *Logger) Log(ctx context.Context, e model.AuditEntry) error {
	e = withRequestInfo(ctx, e)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id,
		                         old_values, new_values, ip_address, user_agent, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID,
		e.OldValues, e.NewValues, e.IPAddress, e.UserAgent, e.CreatedAt,
	)
	return err
}

func (l *Logger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Entries returns the audit trail for one resource, newest first.
func (l *Logger) Entries(ctx context.Context, resourceType, resourceID string) ([]model.AuditEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, user_id, action, resource_type, resource_id,
		        old_values, new_values, ip_address, user_agent, created_at
		 FROM audit_logs
		 WHERE resource_type = $1 AND resource_id = $2
		 ORDER BY created_at DESC`, resourceType, resourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.OldValues, &e.NewValues, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
