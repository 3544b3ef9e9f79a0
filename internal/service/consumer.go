package service

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/domain"
	"github.com/ReilBleem13/HelloChat/internal/metrics"
)

type ConsumerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
}

// Consumer polls the job source and hands jobs to a fixed pool of workers.
// Jobs of one chat always land on the same worker, so they are delivered in
// the order they were dequeued.
type Consumer struct {
	source    JobSource
	deliverer *Deliverer
	cfg       ConsumerConfig
	log       *slog.Logger
}

func NewConsumer(source JobSource, deliverer *Deliverer, cfg ConsumerConfig, log *slog.Logger) *Consumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		source:    source,
		deliverer: deliverer,
		cfg:       cfg,
		log:       log,
	}
}

// Run blocks until ctx is cancelled. Jobs already handed to workers are
// finished before it returns.
func (c *Consumer) Run(ctx context.Context) error {
	// Jobs were removed from the queue, so workers finish them even while
	// shutting down.
	workCtx := context.WithoutCancel(ctx)

	shards := make([]chan domain.DeliveryJob, c.cfg.Workers)
	var wg sync.WaitGroup
	for i := range shards {
		shards[i] = make(chan domain.DeliveryJob, c.cfg.BatchSize)
		wg.Add(1)
		go func(jobs <-chan domain.DeliveryJob) {
			defer wg.Done()
			for job := range jobs {
				c.process(workCtx, job)
			}
		}(shards[i])
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	c.log.Info("Delivery consumer started",
		"poll_interval", c.cfg.PollInterval,
		"batch", c.cfg.BatchSize,
		"workers", c.cfg.Workers,
	)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Delivery consumer stopping")
			return nil
		case <-ticker.C:
		case <-c.source.Ready():
		}

		if err := c.drain(ctx, shards); err != nil {
			return nil
		}
	}
}

func (c *Consumer) drain(ctx context.Context, shards []chan domain.DeliveryJob) error {
	for i := 0; i < c.cfg.BatchSize; i++ {
		job, ok, err := c.source.Dequeue(ctx)
		if err != nil {
			c.log.Warn("Dequeue failed", "error", err)
			return nil
		}
		if !ok {
			return nil
		}

		select {
		case shards[shardFor(job.ChatID, len(shards))] <- job:
		case <-ctx.Done():
			// Still hand the job over so it is not lost on shutdown.
			shards[shardFor(job.ChatID, len(shards))] <- job
			return ctx.Err()
		}
	}
	return nil
}

func shardFor(chatID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(n))
}

func (c *Consumer) process(ctx context.Context, job domain.DeliveryJob) {
	msg, err := c.deliverer.Deliver(ctx, job)
	switch {
	case err == nil:
		metrics.DeliveryJobs.WithLabelValues(metrics.OutcomeDelivered).Inc()
		c.log.Debug("Message delivered", "chat_id", job.ChatID, "message_id", msg.ID)
	case errors.Is(err, ErrDiscarded):
		metrics.DeliveryJobs.WithLabelValues(metrics.OutcomeDiscarded).Inc()
		c.log.Warn("Delivery job discarded", "chat_id", job.ChatID, "sender", job.Sender, "reason", err)
	default:
		metrics.DeliveryJobs.WithLabelValues(metrics.OutcomeFailed).Inc()
		c.log.Error("Delivery job failed", "chat_id", job.ChatID, "sender", job.Sender, "error", err)
	}
}
