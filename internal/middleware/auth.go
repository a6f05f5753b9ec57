package middleware

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"eleva-care-api/internal/auth"
	"eleva-care-api/internal/wire"
)

type ctxKey string

const (
	UserIDKey ctxKey = "uid"
	RoleKey   ctxKey = "role"
)

// guests book without an account
var open = map[string]bool{
	wire.MethodCreateMeeting: true,
}

// callable by the payout scheduler with its API key, or by an admin
var scheduler = map[string]bool{
	wire.MethodCheckExistingTransfer: true,
	wire.MethodProcessDueTransfers:   true,
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func Role(ctx context.Context) string {
	v, _ := ctx.Value(RoleKey).(string)
	return v
}

func Auth(secret, apiKeyHash string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		if scheduler[info.FullMethod] {
			if keys := md.Get("x-api-key"); len(keys) > 0 && auth.CheckAPIKey(apiKeyHash, keys[0]) {
				ctx = context.WithValue(ctx, UserIDKey, auth.RoleScheduler)
				ctx = context.WithValue(ctx, RoleKey, auth.RoleScheduler)
				return next(ctx, req)
			}
		}

		// token from Authorization: Bearer <jwt>
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = strings.TrimPrefix(vals[0], "Bearer ")
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		claims, err := auth.ParseToken(raw, secret)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}
		if scheduler[info.FullMethod] && claims.Role != auth.RoleAdmin {
			return nil, status.Error(codes.PermissionDenied, "scheduler access required")
		}

		ctx = context.WithValue(ctx, UserIDKey, claims.UserID())
		ctx = context.WithValue(ctx, RoleKey, claims.Role)
		return next(ctx, req)
	}
}
