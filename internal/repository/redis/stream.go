package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
)

const (
	fieldPayload    = "payload"
	fieldOriginID   = "origin_id"
	fieldDeliveries = "deliveries"
)

// Backoff is a bounded multiplicative delay policy.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
}

// Delay returns the wait before the next delivery of a message that has
// already been delivered deliveries times.
func (b Backoff) Delay(deliveries int64) time.Duration {
	if deliveries < 1 {
		deliveries = 1
	}
	d := float64(b.Min) * math.Pow(b.Multiplier, float64(deliveries-1))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

type streamPublisher struct {
	client  *redis.Client
	stream  string
	timeout time.Duration
}

var _ domain.EventPublisher = (*streamPublisher)(nil)

func NewStreamPublisher(client *redis.Client, stream string, timeout time.Duration) *streamPublisher {
	return &streamPublisher{
		client:  client,
		stream:  stream,
		timeout: timeout,
	}
}

func (p *streamPublisher) Publish(ctx context.Context, ev domain.LikeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: []string{fieldPayload, string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w: %w", p.stream, domain.ErrBrokerUnavailable, err)
	}
	return nil
}

type StreamOptions struct {
	Stream   string
	Group    string
	Consumer string
	// DeadLetterStream may be empty for a consumer that never dead-letters.
	DeadLetterStream  string
	BatchSize         int64
	BatchTimeout      time.Duration
	MaxRedeliver      int64
	NackBackoff       Backoff
	AckTimeoutBackoff Backoff
}

// streamConsumer is an at-least-once batch consumer over a Redis Stream
// consumer group. Unacked entries stay in the group's pending list and are
// claimed back once their nack or ack-timeout backoff has elapsed.
type streamConsumer struct {
	client *redis.Client
	opts   StreamOptions

	mu     sync.Mutex
	nacked map[string]time.Time
	now    func() time.Time
}

var _ domain.EventConsumer = (*streamConsumer)(nil)

func NewStreamConsumer(client *redis.Client, opts StreamOptions) *streamConsumer {
	return &streamConsumer{
		client: client,
		opts:   opts,
		nacked: make(map[string]time.Time),
		now:    time.Now,
	}
}

// EnsureGroup creates the stream and the consumer group if missing.
func (c *streamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w: %w", c.opts.Group, c.opts.Stream, domain.ErrBrokerUnavailable, err)
	}
	return nil
}

func (c *streamConsumer) brokerErr(op string, err error) error {
	return fmt.Errorf("%s on %s: %w: %w", op, c.opts.Stream, domain.ErrBrokerUnavailable, err)
}

func (c *streamConsumer) Receive(ctx context.Context) ([]domain.Message, error) {
	msgs, err := c.redeliveries(ctx)
	if err != nil {
		return nil, err
	}

	remaining := c.opts.BatchSize - int64(len(msgs))
	if remaining <= 0 {
		return msgs, nil
	}

	block := c.opts.BatchTimeout
	if len(msgs) > 0 {
		block = -1
	}
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		Streams:  []string{c.opts.Stream, ">"},
		Count:    remaining,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return msgs, nil
	}
	if err != nil {
		if len(msgs) > 0 {
			logrus.Warnf("read new messages from %s: %v", c.opts.Stream, err)
			return msgs, nil
		}
		return nil, c.brokerErr("read group", err)
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			msgs = append(msgs, decode(m, 1))
		}
	}
	return msgs, nil
}

// redeliveries claims pending entries whose backoff has elapsed. Entries that
// have used up their deliveries are dead-lettered instead.
func (c *streamConsumer) redeliveries(ctx context.Context) ([]domain.Message, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.opts.Stream,
		Group:  c.opts.Group,
		Start:  "-",
		End:    "+",
		Count:  c.opts.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, c.brokerErr("pending", err)
	}

	now := c.now()
	var due, exhausted []redis.XPendingExt
	c.mu.Lock()
	for _, p := range pending {
		at, nacked := c.nacked[p.ID]
		switch {
		case nacked && now.Before(at):
			continue
		case !nacked && p.Idle < c.opts.AckTimeoutBackoff.Delay(p.RetryCount):
			continue
		}
		delete(c.nacked, p.ID)
		if p.RetryCount > c.opts.MaxRedeliver && c.opts.DeadLetterStream != "" {
			exhausted = append(exhausted, p)
		} else {
			due = append(due, p)
		}
	}
	c.mu.Unlock()

	if len(exhausted) > 0 {
		if err := c.deadLetterPending(ctx, exhausted); err != nil {
			logrus.Errorf("dead-letter exhausted messages: %v", err)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	ids := make([]string, len(due))
	retries := make(map[string]int64, len(due))
	for i, p := range due {
		ids[i] = p.ID
		retries[p.ID] = p.RetryCount
	}
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		MinIdle:  0,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, c.brokerErr("claim", err)
	}

	msgs := make([]domain.Message, 0, len(claimed))
	for _, m := range claimed {
		msgs = append(msgs, decode(m, retries[m.ID]+1))
	}
	return msgs, nil
}

func (c *streamConsumer) deadLetterPending(ctx context.Context, pending []redis.XPendingExt) error {
	msgs := make([]domain.Message, 0, len(pending))
	for _, p := range pending {
		entries, err := c.client.XRange(ctx, c.opts.Stream, p.ID, p.ID).Result()
		if err != nil {
			return c.brokerErr("range", err)
		}
		if len(entries) == 0 {
			// trimmed from the stream, nothing left to move
			msgs = append(msgs, domain.Message{ID: p.ID, Deliveries: p.RetryCount})
			continue
		}
		m := decode(entries[0], p.RetryCount)
		msgs = append(msgs, m)
	}
	return c.DeadLetter(ctx, msgs...)
}

func decode(m redis.XMessage, deliveries int64) domain.Message {
	msg := domain.Message{ID: m.ID, Deliveries: deliveries}
	payload, _ := m.Values[fieldPayload].(string)
	msg.Payload = payload

	var ev domain.LikeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logrus.Warnf("undecodable message %s: %v", m.ID, err)
		return msg
	}
	msg.Event = &ev
	return msg
}

func ids(msgs []domain.Message) []string {
	res := make([]string, len(msgs))
	for i, m := range msgs {
		res[i] = m.ID
	}
	return res
}

func (c *streamConsumer) Ack(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	c.mu.Lock()
	for _, m := range msgs {
		delete(c.nacked, m.ID)
	}
	c.mu.Unlock()

	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, ids(msgs)...).Err(); err != nil {
		return c.brokerErr("ack", err)
	}
	return nil
}

func (c *streamConsumer) Nack(_ context.Context, msgs ...domain.Message) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.nacked[m.ID] = now.Add(c.opts.NackBackoff.Delay(m.Deliveries))
	}
	return nil
}

func (c *streamConsumer) DeadLetter(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if c.opts.DeadLetterStream == "" {
		return c.Ack(ctx, msgs...)
	}

	pipe := c.client.TxPipeline()
	for _, m := range msgs {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.opts.DeadLetterStream,
			Values: []string{
				fieldPayload, m.Payload,
				fieldOriginID, m.ID,
				fieldDeliveries, strconv.FormatInt(m.Deliveries, 10),
			},
		})
	}
	pipe.XAck(ctx, c.opts.Stream, c.opts.Group, ids(msgs)...)
	if _, err := pipe.Exec(ctx); err != nil {
		return c.brokerErr("dead-letter", err)
	}

	c.mu.Lock()
	for _, m := range msgs {
		delete(c.nacked, m.ID)
	}
	c.mu.Unlock()
	return nil
}
