package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ReilBleem13/HelloChat/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

const DefaultMaxRetry = 3

// ErrMalformed marks a body that can never succeed. Such messages go to the
// dead-letter queue on the first attempt.
var ErrMalformed = errors.New("malformed message")

// Envelope is one delivery as seen by a Handler.
type Envelope struct {
	Body       []byte
	RetryCount int
}

type Handler func(ctx context.Context, env Envelope) error

type ConsumerConfig struct {
	Prefetch int
	MaxRetry int
	Tag      string
}

type RetryConsumer struct {
	ch      Channel
	topo    Topology
	handler Handler
	cfg     ConsumerConfig
	log     *slog.Logger
}

func NewRetryConsumer(ch Channel, topo Topology, handler Handler, cfg ConsumerConfig, log *slog.Logger) *RetryConsumer {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryConsumer{
		ch:      ch,
		topo:    topo,
		handler: handler,
		cfg:     cfg,
		log:     log,
	}
}

// Run consumes the primary queue until ctx is done or the broker closes
// the delivery channel.
func (c *RetryConsumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.ch.Consume(c.topo.Primary, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topo.Primary, err)
	}

	c.log.Info("Consumer started, listening for messages", "queue", c.topo.Primary)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle runs the handler for one delivery and settles it: ack on success,
// republish to the retry queue below the ceiling, dead-letter at it.
func (c *RetryConsumer) Handle(ctx context.Context, d amqp.Delivery) {
	retry := RetryCount(d.Headers)

	err := c.handler(ctx, Envelope{Body: d.Body, RetryCount: retry})
	if err == nil {
		if err := d.Ack(false); err != nil {
			c.log.Error("Failed to ack message", "error", err)
		}
		metrics.MailDeliveries.WithLabelValues(metrics.OutcomeSent).Inc()
		return
	}

	retry++
	if errors.Is(err, ErrMalformed) || retry >= c.cfg.MaxRetry {
		c.log.Error("Max retries reached for message, sending to DLQ",
			"retry", retry,
			"error", err,
		)
		if err := d.Nack(false, false); err != nil {
			c.log.Error("Failed to nack message", "error", err)
		}
		metrics.MailDeliveries.WithLabelValues(metrics.OutcomeDeadLetter).Inc()
		return
	}

	c.log.Warn("Retrying message", "retry", retry, "error", err)

	pubErr := c.ch.PublishWithContext(ctx, "", c.topo.Retry, false, false, amqp.Publishing{
		Headers:      amqp.Table{RetryHeader: int64(retry)},
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
	})
	if pubErr != nil {
		// Leave the original with the broker rather than lose it.
		c.log.Error("Failed to republish to retry queue", "queue", c.topo.Retry, "error", pubErr)
		if err := d.Nack(false, true); err != nil {
			c.log.Error("Failed to requeue message", "error", err)
		}
		metrics.MailDeliveries.WithLabelValues(metrics.OutcomeFailed).Inc()
		return
	}

	if err := d.Ack(false); err != nil {
		c.log.Error("Failed to ack message", "error", err)
	}
	metrics.MailDeliveries.WithLabelValues(metrics.OutcomeRetried).Inc()
}

// RetryCount reads the x-retry header. Missing or unparsable values count
// as zero.
func RetryCount(h amqp.Table) int {
	v, ok := h[RetryHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return clampCount(uint64(n))
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return clampCount(uint64(n))
	case uint64:
		return clampCount(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	case []byte:
		i, err := strconv.Atoi(strings.TrimSpace(string(n)))
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

// clampCount keeps huge unsigned counts from wrapping negative, which would
// otherwise retry forever.
func clampCount(n uint64) int {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
