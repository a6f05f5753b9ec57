package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eleva-care-api/internal/config"
	"eleva-care-api/internal/logging"
	"eleva-care-api/internal/mq"
	"eleva-care-api/internal/notify"
)

func main() {
	cfg, err := config.LoadNotifier()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := notify.NewWorker(notify.LogNotifier{Log: log}, log)
	for ctx.Err() == nil {
		if err := consume(ctx, cfg, w); err != nil {
			log.Warn("consumer stopped, reconnecting in 2s", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
	}
	log.Info("notifier stopped")
}

func consume(ctx context.Context, cfg config.Notifier, w *notify.Worker) error {
	c, err := mq.NewConsumer(mq.ConsumerConfig{
		URL:      cfg.RabbitURL,
		Exchange: cfg.EventsExchange,
		Queue:    cfg.Queue,
		Bindings: notify.Bindings,
		Prefetch: cfg.Prefetch,
		DLX:      cfg.DLX,
		DLXQueue: cfg.DLQ,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	msgs, err := c.Deliveries(ctx, "eleva-notifier")
	if err != nil {
		return err
	}
	return w.Run(ctx, msgs)
}
