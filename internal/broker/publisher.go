package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Channel interface {
	Declarer
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
}

type Publisher struct {
	ch   Channel
	topo Topology
}

func NewPublisher(ch Channel, topo Topology) *Publisher {
	return &Publisher{ch: ch, topo: topo}
}

// Publish sends v as persistent JSON to the primary queue. The queue is
// asserted with the consumer's arguments first.
func (p *Publisher) Publish(ctx context.Context, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if _, err := p.ch.QueueDeclare(p.topo.Primary, true, false, false, false, p.topo.PrimaryArgs()); err != nil {
		return fmt.Errorf("declare queue %s: %w", p.topo.Primary, err)
	}

	err = p.ch.PublishWithContext(ctx, "", p.topo.Primary, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topo.Primary, err)
	}
	return nil
}
