package eventsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/attendly/core"
	"github.com/trezcool/attendly/core/audit"
)

const DefaultAuditQueue = "attendly.audit"

// ErrMalformedEntry marks a delivery that can never be stored.
var ErrMalformedEntry = errors.New("malformed audit entry")

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true /* durable */, false, false, false, nil)
	return err
}

// AuditPublisher sends audit entries to the audit queue. When the broker cannot be
// reached, entries go to the fallback recorder instead of being lost.
type AuditPublisher struct {
	url      string
	queue    string
	fallback audit.Recorder
	logger   core.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ audit.Recorder = (*AuditPublisher)(nil)

func NewAuditPublisher(conf *core.Config, fallback audit.Recorder, logger core.Logger) *AuditPublisher {
	queue := conf.AMQP.AuditQueue
	if queue == "" {
		queue = DefaultAuditQueue
	}
	return &AuditPublisher{url: conf.AMQP.URL, queue: queue, fallback: fallback, logger: logger}
}

// channel returns the open channel, dialing the broker when needed. Callers hold mu.
func (p *AuditPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, errors.Wrap(err, "dialing broker")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	if err := declare(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declaring audit queue")
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AuditPublisher) Record(ctx context.Context, e audit.Entry) error {
	audit.Stamp(&e)
	body, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshalling audit entry")
	}

	if err := p.publish(ctx, body); err != nil {
		p.logger.Warn(fmt.Sprintf("publishing audit entry %s, recording it directly: %v", e.ID, err))
		return p.fallback.Record(ctx, e)
	}
	return nil
}

func (p *AuditPublisher) publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.closeLocked()
		return errors.Wrap(err, "publishing")
	}
	return nil
}

func (p *AuditPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AuditPublisher) Close() {
	p.mu.Lock()
	p.closeLocked()
	p.mu.Unlock()
}

// DecodeAuditEntry parses a delivery body.
func DecodeAuditEntry(body []byte) (audit.Entry, error) {
	var e audit.Entry
	if err := json.Unmarshal(body, &e); err != nil {
		return audit.Entry{}, errors.Wrap(ErrMalformedEntry, err.Error())
	}
	if e.ID == "" || e.SchoolID == "" || e.Action == "" {
		return audit.Entry{}, errors.Wrap(ErrMalformedEntry, "missing id, school or action")
	}
	return e, nil
}

// AuditConsumer stores the entries of the audit queue.
type AuditConsumer struct {
	url        string
	queue      string
	recorder   audit.Recorder
	logger     core.Logger
	maxBackoff time.Duration
	retryDelay time.Duration // before a delivery that failed to store goes back to the queue
}

func NewAuditConsumer(conf *core.Config, recorder audit.Recorder, logger core.Logger) *AuditConsumer {
	queue := conf.AMQP.AuditQueue
	if queue == "" {
		queue = DefaultAuditQueue
	}
	return &AuditConsumer{url: conf.AMQP.URL, queue: queue, recorder: recorder, logger: logger, maxBackoff: 30 * time.Second, retryDelay: time.Second}
}

// Run consumes until ctx is done, reconnecting with exponential backoff.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			backoff = time.Second
			err = c.consume(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
		}
		c.logger.Warn(fmt.Sprintf("audit consumer: %v; retrying in %s", err, backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < c.maxBackoff {
			backoff *= 2
		}
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "opening channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		return errors.Wrap(err, "setting QoS")
	}
	if err := declare(ch, c.queue); err != nil {
		return errors.Wrap(err, "declaring audit queue")
	}
	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consuming")
	}

	for d := range deliveries {
		c.settle(ctx, d, d.Body)
	}
	return errors.New("deliveries channel closed")
}

// acknowledger is the part of amqp.Delivery settling a message.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle stores a delivery and acks it. Malformed entries are dropped; entries the store
// failed on are requeued after retryDelay.
func (c *AuditConsumer) settle(ctx context.Context, d acknowledger, body []byte) {
	err := c.Handle(ctx, body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrMalformedEntry):
		c.logger.Error(fmt.Sprintf("audit consumer: dropping delivery: %v", err), err)
		_ = d.Nack(false, false)
	default:
		c.logger.Warn(fmt.Sprintf("audit consumer: requeueing delivery: %v", err))
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
		_ = d.Nack(false, true)
	}
}

// Handle stores one delivery body.
func (c *AuditConsumer) Handle(ctx context.Context, body []byte) error {
	e, err := DecodeAuditEntry(body)
	if err != nil {
		return err
	}
	return c.recorder.Record(ctx, e)
}
