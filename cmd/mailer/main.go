package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/broker"
	"github.com/ReilBleem13/HelloChat/internal/config"
	"github.com/ReilBleem13/HelloChat/internal/logger"
	"github.com/ReilBleem13/HelloChat/internal/mail"
	"github.com/ReilBleem13/HelloChat/internal/server"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Mailer stopped", "error", err)
		os.Exit(1)
	}
}

func amqpURL(cfg config.RabbitMQ) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/",
	}
	return u.String()
}

// dial connects to RabbitMQ with exponential backoff; the broker often
// starts after the mailer in compose setups.
func dial(ctx context.Context, cfg config.RabbitMQ, log *slog.Logger) (*amqp.Connection, error) {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(10*time.Second, b)
	if cfg.DialRetry > 0 {
		b = retry.WithMaxRetries(cfg.DialRetry, b)
	}

	var conn *amqp.Connection
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		c, err := amqp.Dial(amqpURL(cfg))
		if err != nil {
			log.Warn("Failed to connect to RabbitMQ, retrying", "host", cfg.Host, "error", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}

func run() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, using process environment")
	}

	cfg, err := config.LoadMailer()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := dial(ctx, cfg.RabbitMQ, log)
	if err != nil {
		return err
	}

	// Separate channels so publishes from HTTP never block on consumer flow control.
	consumeCh, err := conn.Channel()
	if err != nil {
		return multierr.Append(fmt.Errorf("open channel: %w", err), conn.Close())
	}
	publishCh, err := conn.Channel()
	if err != nil {
		return multierr.Append(fmt.Errorf("open channel: %w", err), conn.Close())
	}

	topo := broker.NewTopology(cfg.RabbitMQ.Queue)
	if err := topo.Declare(consumeCh); err != nil {
		return multierr.Append(err, conn.Close())
	}
	log.Info("RabbitMQ connected and queues asserted", "queue", topo.Primary)

	sender, err := mail.NewSMTPSender(cfg.SMTP)
	if err != nil {
		return multierr.Append(err, conn.Close())
	}
	otp := mail.NewOTPHandler(sender, log)

	consumer := broker.NewRetryConsumer(consumeCh, topo, otp.Handle, broker.ConsumerConfig{
		Prefetch: cfg.RabbitMQ.Prefetch,
		MaxRetry: cfg.RabbitMQ.MaxRetry,
		Tag:      "mailer",
	}, log)

	srv := server.NewServer(
		server.WithLogger(log),
		server.WithMailRoutes(server.NewMailHandler(broker.NewPublisher(publishCh, topo))),
	)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Run(gctx)
	})

	g.Go(func() error {
		return srv.Run(gctx, ":"+cfg.App.Port)
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("rabbitmq connection closed")
			}
			return fmt.Errorf("rabbitmq connection lost: %w", amqpErr)
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if !conn.IsClosed() {
		err = multierr.Combine(err, publishCh.Close(), consumeCh.Close(), conn.Close())
	}
	return err
}
