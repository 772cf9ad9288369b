// kasku-audit tails the chart audit stream and writes one structured
// log line per chart data request, giving operators a trail of who
// queried what and which raw templates were rejected.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kasku/internal/amqp"
	"kasku/internal/config"
	applog "kasku/internal/log"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.ComponentAudit, applog.Config{Level: slog.LevelInfo})
	applog.SetDefault(logger)

	cfg := config.Load()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the audit consumer")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Audit consumer started", "queue", cfg.AMQPQueue)

	err = client.ConsumeChartQueries(ctx, func(msg *amqp.ChartQueryMessage) error {
		if msg.Rejected {
			logger.Warn("Chart query rejected",
				applog.FieldChartID, msg.ChartID,
				applog.FieldUserID, msg.UserID,
				applog.FieldChartMode, msg.Mode,
				applog.FieldReason, msg.Reason,
				"at", msg.Timestamp)
			return nil
		}
		logger.Info("Chart query served",
			applog.FieldChartID, msg.ChartID,
			applog.FieldUserID, msg.UserID,
			applog.FieldChartMode, msg.Mode,
			"at", msg.Timestamp)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Consumer stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("Audit consumer stopped gracefully")
}
