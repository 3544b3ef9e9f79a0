package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ReilBleem13/HelloChat/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key string
	msg amqp.Publishing
}

type declared struct {
	name string
	args amqp.Table
}

type fakeChannel struct {
	mu         sync.Mutex
	declared   []declared
	published  []published
	publishErr error
	deliveries chan amqp.Delivery
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, declared{name: name, args: args})
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Qos(int, int, bool) error { return nil }

func (f *fakeChannel) lastPublished() published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

type fakeAck struct {
	acks     int
	nacks    int
	requeued int
}

func (a *fakeAck) Ack(uint64, bool) error { a.acks++; return nil }

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.requeued++
		return nil
	}
	a.nacks++
	return nil
}

func (a *fakeAck) Reject(uint64, bool) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// redeliver emulates the retry queue's TTL expiring: the republished copy
// comes back on the primary queue with its headers.
func redeliver(p published, ack amqp.Acknowledger) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		Headers:      p.msg.Headers,
		Body:         p.msg.Body,
	}
}

func TestTopology_Declare(t *testing.T) {
	ch := &fakeChannel{}
	topo := NewTopology("")

	require.NoError(t, topo.Declare(ch))
	require.Len(t, ch.declared, 3)

	assert.Equal(t, "hello-send-otp-dlq", ch.declared[0].name)
	assert.Equal(t, int64(86400000), ch.declared[0].args["x-message-ttl"])
	assert.Equal(t, int64(2592000000), ch.declared[0].args["x-expires"])

	assert.Equal(t, "hello-send-otp-retry", ch.declared[1].name)
	assert.Equal(t, int64(10000), ch.declared[1].args["x-message-ttl"])
	assert.Equal(t, "hello-send-otp", ch.declared[1].args["x-dead-letter-routing-key"])

	assert.Equal(t, "hello-send-otp", ch.declared[2].name)
	assert.Equal(t, "hello-send-otp-dlq", ch.declared[2].args["x-dead-letter-routing-key"])
}

func TestPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, NewTopology("otp"))

	require.NoError(t, p.Publish(context.Background(), map[string]string{"to": "a@b.c"}))

	got := ch.lastPublished()
	assert.Equal(t, "otp", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.JSONEq(t, `{"to":"a@b.c"}`, string(got.msg.Body))
	require.Len(t, ch.declared, 1)
	assert.Equal(t, "otp-dlq", ch.declared[0].args["x-dead-letter-routing-key"])
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(nil))
	assert.Equal(t, 2, RetryCount(amqp.Table{RetryHeader: int32(2)}))
	assert.Equal(t, 1, RetryCount(amqp.Table{RetryHeader: int64(1)}))
	assert.Equal(t, 2, RetryCount(amqp.Table{RetryHeader: "2"}))
	assert.Equal(t, 0, RetryCount(amqp.Table{RetryHeader: "x"}))
}

func TestRetryCount_UnsignedHeaders(t *testing.T) {
	for _, v := range []any{uint(3), uint8(3), uint16(3), uint32(3), uint64(3)} {
		assert.Equal(t, 3, RetryCount(amqp.Table{RetryHeader: v}), "%T", v)
	}
	assert.Equal(t, math.MaxInt32, RetryCount(amqp.Table{RetryHeader: uint64(math.MaxUint64)}))
}

func TestRetryConsumer_DeadLettersOnUnsignedCount(t *testing.T) {
	ch := &fakeChannel{}
	c := NewRetryConsumer(ch, NewTopology(""), func(context.Context, Envelope) error {
		return errors.New("smtp down")
	}, ConsumerConfig{}, discardLogger())

	ack := &fakeAck{}
	c.Handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{}`),
		Headers:      amqp.Table{RetryHeader: uint32(DefaultMaxRetry - 1)},
	})

	assert.Equal(t, 1, ack.nacks)
	assert.Empty(t, ch.published)
}

func TestRetryConsumer_DeadLettersAfterThreeFailures(t *testing.T) {
	ch := &fakeChannel{}
	calls := 0
	c := NewRetryConsumer(ch, NewTopology(""), func(context.Context, Envelope) error {
		calls++
		return errors.New("smtp down")
	}, ConsumerConfig{}, discardLogger())

	before := testutil.ToFloat64(metrics.MailDeliveries.WithLabelValues(metrics.OutcomeDeadLetter))

	ack := &fakeAck{}
	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{}`)})
	for ack.nacks == 0 {
		require.Less(t, calls, 10, "message never dead-lettered")
		c.Handle(context.Background(), redeliver(ch.lastPublished(), ack))
	}

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, ack.acks)
	assert.Equal(t, 1, ack.nacks)
	assert.Len(t, ch.published, 2)
	assert.Equal(t, int64(2), ch.lastPublished().msg.Headers[RetryHeader])
	assert.Equal(t, "hello-send-otp-retry", ch.lastPublished().key)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.MailDeliveries.WithLabelValues(metrics.OutcomeDeadLetter)))
}

func TestRetryConsumer_FailFailSucceed(t *testing.T) {
	ch := &fakeChannel{}
	results := []error{errors.New("timeout"), errors.New("timeout"), nil}
	var seen []int
	c := NewRetryConsumer(ch, NewTopology(""), func(_ context.Context, env Envelope) error {
		seen = append(seen, env.RetryCount)
		err := results[0]
		results = results[1:]
		return err
	}, ConsumerConfig{}, discardLogger())

	ack := &fakeAck{}
	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`{}`)})
	c.Handle(context.Background(), redeliver(ch.lastPublished(), ack))
	c.Handle(context.Background(), redeliver(ch.lastPublished(), ack))

	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, 3, ack.acks)
	assert.Zero(t, ack.nacks)
	assert.Len(t, ch.published, 2)
}

func TestRetryConsumer_MalformedGoesStraightToDLQ(t *testing.T) {
	ch := &fakeChannel{}
	c := NewRetryConsumer(ch, NewTopology(""), func(context.Context, Envelope) error {
		return ErrMalformed
	}, ConsumerConfig{}, discardLogger())

	ack := &fakeAck{}
	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte(`nope`)})

	assert.Equal(t, 1, ack.nacks)
	assert.Empty(t, ch.published)
}

func TestRetryConsumer_RequeuesWhenRetryPublishFails(t *testing.T) {
	ch := &fakeChannel{publishErr: errors.New("channel closed")}
	c := NewRetryConsumer(ch, NewTopology(""), func(context.Context, Envelope) error {
		return errors.New("smtp down")
	}, ConsumerConfig{}, discardLogger())

	ack := &fakeAck{}
	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack})

	assert.Equal(t, 1, ack.requeued)
	assert.Zero(t, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestRetryConsumer_Run(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	handled := make(chan struct{})
	c := NewRetryConsumer(ch, NewTopology(""), func(context.Context, Envelope) error {
		close(handled)
		return nil
	}, ConsumerConfig{Prefetch: 10}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	ack := &fakeAck{}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("delivery not handled")
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(ch.deliveries)
	err := c.Run(context.Background())
	assert.Error(t, err)
}
