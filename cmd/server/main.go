package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v74"
	"google.golang.org/grpc"

	"eleva-care-api/internal/audit"
	"eleva-care-api/internal/booking"
	"eleva-care-api/internal/calendar"
	"eleva-care-api/internal/config"
	gweb "eleva-care-api/internal/grpcweb"
	"eleva-care-api/internal/handler"
	"eleva-care-api/internal/lock"
	"eleva-care-api/internal/logging"
	"eleva-care-api/internal/middleware"
	"eleva-care-api/internal/mq"
	"eleva-care-api/internal/obs"
	"eleva-care-api/internal/payment"
	"eleva-care-api/internal/payout"
	"eleva-care-api/internal/reconcile"
	"eleva-care-api/internal/store"
	"eleva-care-api/internal/webhook"
	"eleva-care-api/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracer, err := obs.InitTracer(ctx, "eleva-care-api", cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	// databases
	pool, err := openDB(ctx, cfg.DatabaseURL, "db/migrations/001_init.sql", log)
	if err != nil {
		return err
	}
	defer pool.Close()
	auditPool := pool
	if cfg.AuditDatabaseURL != cfg.DatabaseURL {
		if auditPool, err = openDB(ctx, cfg.AuditDatabaseURL, "db/audit/001_init.sql", log); err != nil {
			return err
		}
		defer auditPool.Close()
	} else {
		migrate(ctx, pool, "db/audit/001_init.sql", log)
	}

	rdb, err := lock.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	log.Info("connected to redis")

	pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.EventsExchange)
	if err != nil {
		return err
	}
	defer pub.Close()
	log.Info("connected to rabbitmq", "exchange", cfg.EventsExchange)

	feeRate, err := cfg.FeeRate()
	if err != nil {
		return err
	}
	cal, err := calendar.NewLinkProvider(cfg.MeetingBaseURL, log)
	if err != nil {
		return err
	}

	st := store.New(pool)
	auditLog := audit.New(auditPool)
	locker := lock.New(rdb, "eleva:")
	gw := payment.NewGateway(cfg.StripeSecretKey, &stripe.Backends{
		API:     stripe.GetBackend(stripe.APIBackend),
		Connect: stripe.GetBackend(stripe.ConnectBackend),
		Uploads: stripe.GetBackend(stripe.UploadsBackend),
	})

	rec := reconcile.New(gw, st, log)
	payouts := payout.New(st, gw, rec, locker, pub, auditLog, payout.Options{
		MaxRetries: cfg.PayoutMaxRetries,
		LockTTL:    cfg.PayoutLockTTL,
		BatchSize:  cfg.PayoutBatchSize,
	}, log)
	bookings := booking.New(st, auditLog, pub, cal, booking.Options{
		FeeRate:     feeRate,
		PayoutDelay: cfg.PayoutDelay,
	}, log)
	h := handler.New(bookings, rec, payouts, log)

	// grpc server
	rl := middleware.NewRateLimiter(ctx, cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	srv := grpc.NewServer(
		grpc.ForceServerCodec(wire.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.RequestInfo(),
			middleware.RateLimit(rl),
			middleware.Auth(cfg.JWTSecret, cfg.SchedulerAPIKeyHash),
		),
	)
	wire.RegisterBookingServiceServer(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}
	errc := make(chan error, 2)
	go func() {
		log.Info("grpc listening", "port", cfg.Port)
		errc <- srv.Serve(lis)
	}()

	// grpc-web bridge -> forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.Port, log)
	if err != nil {
		return err
	}
	defer bridge.Close()

	mux := http.NewServeMux()
	mux.Handle("/webhooks/stripe", webhook.New(cfg.StripeWebhookSecret, bookings, log))
	mux.Handle("/healthz", handler.Health(map[string]handler.Pinger{
		"db":    st,
		"audit": auditLog,
		"redis": locker,
	}))
	mux.Handle("/", bridge.Handler())

	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http listening", "port", cfg.WebPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	runErr := waitForStop(ctx, errc, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.GracefulStop()
	return runErr
}

// waitForStop blocks until shutdown is requested or a listener fails. Only
// the failure is returned, so the process exits non-zero for it.
func waitForStop(ctx context.Context, errc <-chan error, log *slog.Logger) error {
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errc:
		log.Error("listener failed", "err", err)
		return fmt.Errorf("listener: %w", err)
	}
}

func openDB(ctx context.Context, url, migration string, log *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("connected to postgres", "migration", migration)
	migrate(ctx, pool, migration, log)
	return pool, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, path string, log *slog.Logger) {
	sql, err := os.ReadFile(path)
	if err != nil {
		log.Warn("migration file not found, skipping", "path", path, "err", err)
		return
	}
	if _, err := pool.Exec(ctx, string(sql)); err != nil {
		log.Warn("migration warning", "path", path, "err", err)
		return
	}
	log.Info("migration applied", "path", path)
}
