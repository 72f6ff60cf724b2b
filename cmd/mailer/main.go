// Command mailer drains the email.requested queue into logs/mail.log.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/storefront-auth/internal/config"
	"github.com/iliyamo/storefront-auth/internal/queue"
)

func main() {
	_ = godotenv.Load()

	url := config.BrokerURL()
	dir := os.Getenv("MAIL_LOG_DIR")
	if dir == "" {
		dir = "logs"
	}

	logger := log.New("mailer")
	logger.SetLevel(log.INFO)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.EmailConsumer{URL: url, Dir: dir, Log: logger}
	logger.Infof("consuming %s into %s", queue.EmailQueueName, dir)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("consumer: %v", err)
	}
}
