// Package broker carries transactional jobs over RabbitMQ with a bounded
// retry loop and a dead-letter queue.
package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultQueue = "hello-send-otp"

	// RetryHeader counts failed attempts of one message.
	RetryHeader = "x-retry"
)

// Topology names the three queues of one pipeline.
//
//	N        primary, dead-letters to N-dlq
//	N-retry  parks failed messages for RetryDelay, then dead-letters back to N
//	N-dlq    keeps exhausted messages for DeadLetterTTL
type Topology struct {
	Primary    string
	Retry      string
	DeadLetter string

	RetryDelay        time.Duration
	DeadLetterTTL     time.Duration
	DeadLetterExpires time.Duration
}

func NewTopology(name string) Topology {
	if name == "" {
		name = DefaultQueue
	}
	return Topology{
		Primary:           name,
		Retry:             name + "-retry",
		DeadLetter:        name + "-dlq",
		RetryDelay:        10 * time.Second,
		DeadLetterTTL:     24 * time.Hour,
		DeadLetterExpires: 30 * 24 * time.Hour,
	}
}

type Declarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

func (t Topology) PrimaryArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DeadLetter,
	}
}

func (t Topology) RetryArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Primary,
		"x-message-ttl":             t.RetryDelay.Milliseconds(),
	}
}

func (t Topology) DeadLetterArgs() amqp.Table {
	return amqp.Table{
		"x-message-ttl": t.DeadLetterTTL.Milliseconds(),
		"x-expires":     t.DeadLetterExpires.Milliseconds(),
	}
}

// Declare asserts dlq, retry and primary in that order, so every
// dead-letter target exists before the queue pointing at it.
func (t Topology) Declare(ch Declarer) error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{t.DeadLetter, t.DeadLetterArgs()},
		{t.Retry, t.RetryArgs()},
		{t.Primary, t.PrimaryArgs()},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}
