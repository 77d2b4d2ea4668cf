package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Client publishes ledger events and import jobs to a direct exchange and
// consumes import jobs. The connection is re-established lazily after a
// failure; repeated publish failures open a circuit breaker so callers on the
// request path fail fast while the broker is down.
type Client struct {
	url          string
	exchangeName string
	eventsQueue  string
	importQueue  string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  int64 // unix nanoseconds
}

func NewClient(url, exchangeName, eventsQueue, importQueue string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		eventsQueue:  eventsQueue,
		importQueue:  importQueue,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{c.eventsQueue, c.importQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		// routing key is the queue name
		if err := ch.QueueBind(queue, queue, c.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// channelFor returns a live channel, reconnecting when the previous one was
// closed.
func (c *Client) channelFor() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	slog.Info("AMQP connection re-established", "exchange", c.exchangeName)
	return c.channel, nil
}

// PublishLedgerEvent publishes a ledger change notification.
func (c *Client) PublishLedgerEvent(ctx context.Context, ev *LedgerEvent) error {
	body, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	if err := c.publish(ctx, c.eventsQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published ledger event",
		"event_id", ev.ID,
		"account_id", ev.AccountID,
		"action", ev.Action,
		"queue", c.eventsQueue)
	return nil
}

// PublishImportJob enqueues a spreadsheet import.
func (c *Client) PublishImportJob(ctx context.Context, job *ImportJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	body, err := job.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal import job: %w", err)
	}
	if err := c.publish(ctx, c.importQueue, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published import job",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"source", job.Source,
		"queue", c.importQueue)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: circuit breaker is open", routingKey)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := c.channelFor()
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeImportJobs delivers import jobs to handler until ctx is cancelled.
// Successful jobs are acked, failed ones retried up to MaxImportAttempts,
// malformed ones rejected.
// A lost connection is re-dialed with exponential backoff.
func (c *Client) ConsumeImportJobs(ctx context.Context, handler func(context.Context, *ImportJob) error) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler, func() { attempt = 0 })
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping import job consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "Import job consumer lost connection, retrying",
			"error", err,
			"attempt", attempt,
			"backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler func(context.Context, *ImportJob) error, connected func()) error {
	ch, err := c.channelFor()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		c.importQueue, // queue
		"",            // consumer
		false,         // auto-ack (manual ack below)
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	slog.InfoContext(ctx, "Started consuming import jobs", "queue", c.importQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed: %w", amqp091.ErrClosed)
			}

			c.processDelivery(ctx, delivery, handler, c.PublishImportJob)
		}
	}
}

// processDelivery settles one import job delivery. A failed job is published
// again with its attempt count raised; after MaxImportAttempts it is rejected
// without requeue.
func (c *Client) processDelivery(ctx context.Context, delivery amqp091.Delivery, handler func(context.Context, *ImportJob) error, republish func(context.Context, *ImportJob) error) {
	job, err := ImportJobFromJSON(delivery.Body)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		slog.ErrorContext(ctx, "Rejecting malformed import job", "error", err)
		delivery.Nack(false, false)
		return
	}

	slog.InfoContext(ctx, "Processing import job",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"source", job.Source,
		"attempt", job.Attempts+1)

	if err := handler(ctx, job); err != nil {
		job.Attempts++
		if job.Attempts >= MaxImportAttempts {
			slog.ErrorContext(ctx, "Giving up on import job",
				"error", err,
				"job_id", job.ID,
				"attempts", job.Attempts)
			delivery.Nack(false, false)
			return
		}
		slog.ErrorContext(ctx, "Failed to handle import job, retrying",
			"error", err,
			"job_id", job.ID,
			"attempts", job.Attempts)
		if err := republish(ctx, job); err != nil {
			slog.WarnContext(ctx, "Republish failed, requeueing delivery", "job_id", job.ID, "error", err)
			delivery.Nack(false, true)
			return
		}
		delivery.Ack(false)
		return
	}

	delivery.Ack(false)
	slog.InfoContext(ctx, "Import job done", "job_id", job.ID)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	if time.Since(time.Unix(0, atomic.LoadInt64(&c.lastFailure))) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	atomic.StoreInt64(&c.lastFailure, time.Now().UnixNano())
	n := atomic.AddInt64(&c.failureCount, 1)
	// a failed trial publish in half-open reopens immediately
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}
