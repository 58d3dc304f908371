// Package amqp carries the step-delta stream into the daemon and goal
// events out of it over a RabbitMQ broker.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"stepledger/internal/core"
	"stepledger/internal/sensor"
)

// Circuit breaker states for the publish path.
const (
	StateClosed int32 = iota
	StateHalfOpen
	StateOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
)

type Client struct {
	url          string
	exchangeName string
	deltaQueue   string
	eventQueue   string

	// connMu guards conn and channel: reconnect swaps them on the
	// subscribe goroutine while the ledger publishes concurrently.
	connMu  sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	// Circuit breaker state for publishes, so a dead broker cannot
	// stall the ledger's record path.
	failureCount int64
	state        int32
	mu           sync.Mutex
	lastFailure  time.Time
}

func NewClient(url, exchangeName, deltaQueue, eventQueue string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		deltaQueue:   deltaQueue,
		eventQueue:   eventQueue,
		conn:         conn,
		channel:      channel,
	}

	if err := client.setup(channel); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queues: %w", err)
	}

	return client, nil
}

func (c *Client) setup(channel *amqp091.Channel) error {
	err := channel.ExchangeDeclare(
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

	for _, queue := range []string{c.deltaQueue, c.eventQueue} {
		_, err = channel.QueueDeclare(
			queue, // name
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		// Routing key matches the queue name on the direct exchange.
		err = channel.QueueBind(queue, queue, c.exchangeName, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// PublishGoalReached publishes a goal event. The circuit breaker opens
// after repeated broker failures and rejects publishes until the open
// timeout passes.
func (c *Client) PublishGoalReached(ctx context.Context, msg *GoalReachedMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.isCircuitOpen() {
		return fmt.Errorf("publish goal event: circuit breaker is open")
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.eventQueue, body); err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return err
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published goal reached event",
		"date", msg.Date,
		"steps", msg.Steps,
		"goal", msg.Goal,
		"queue", c.eventQueue)
	return nil
}

// NotifyGoalReached satisfies the ledger's notifier port.
func (c *Client) NotifyGoalReached(ctx context.Context, date core.DayKey, steps, goal int64) error {
	return c.PublishGoalReached(ctx, NewGoalReachedMessage(date, steps, goal))
}

// PublishStepDelta publishes a pedometer report to the delta queue.
// Used by device bridges and the step simulator.
func (c *Client) PublishStepDelta(ctx context.Context, msg *StepDeltaMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.isCircuitOpen() {
		return fmt.Errorf("publish step delta: circuit breaker is open")
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := c.publish(ctx, c.deltaQueue, body); err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return err
	}

	c.recordSuccess()
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := c.currentChannel().PublishWithContext(
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
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// ConsumeStepDeltas consumes pedometer reports with manual ack. A
// payload that does not parse is rejected without requeue; a handler
// error requeues the delivery.
func (c *Client) ConsumeStepDeltas(ctx context.Context, handler func(*StepDeltaMessage) error) error {
	msgs, err := c.currentChannel().Consume(
		c.deltaQueue, // queue
		"",           // consumer
		false,        // auto-ack (we want manual ack)
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming step deltas", "queue", c.deltaQueue)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping delta consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := StepDeltaMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal step delta", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle step delta",
					"error", err, "steps", msg.Steps)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

// Available implements sensor.Source: the pedometer stream is available
// while the broker connection is up.
func (c *Client) Available(ctx context.Context) (bool, error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil || conn.IsClosed() {
		return false, nil
	}
	return true, nil
}

// currentChannel reads the channel pointer under connMu. The returned
// channel may be mid-replacement; operations on a closed one fail with a
// connection error and feed the usual retry paths.
func (c *Client) currentChannel() *amqp091.Channel {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.channel
}

// Subscribe implements sensor.Source by running the consume loop in a
// goroutine and forwarding each report's step count to the handler. A
// dropped broker connection is retried with exponential backoff until
// the subscription is released.
func (c *Client) Subscribe(ctx context.Context, handler sensor.DeltaHandler) (sensor.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	forward := func(msg *StepDeltaMessage) error {
		if msg.Steps < 0 {
			// Bad report from a bridge; drop it rather than requeue.
			slog.WarnContext(subCtx, "Dropping negative step delta", "steps", msg.Steps)
			return nil
		}
		handler(msg.Steps)
		return nil
	}

	go func() {
		attempt := 0
		for {
			err := c.ConsumeStepDeltas(subCtx, forward)
			if subCtx.Err() != nil {
				return
			}

			delay := exponentialBackoff(attempt)
			attempt++
			slog.ErrorContext(subCtx, "Step delta consumption stopped, retrying",
				"error", err, "retry_in", delay.String())

			select {
			case <-subCtx.Done():
				return
			case <-time.After(delay):
			}

			if isConnectionError(err) {
				if rerr := c.reconnect(); rerr != nil {
					slog.ErrorContext(subCtx, "Broker reconnect failed", "error", rerr)
					continue
				}
				attempt = 0
			}
		}
	}()

	return &amqpSubscription{cancel: cancel}, nil
}

// reconnect re-dials the broker and redeclares the topology after a
// dropped connection. The swap happens under connMu only once the new
// topology is in place, so publishers never observe a half-built client.
func (c *Client) reconnect() error {
	c.Close()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("redial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("reopen channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("redeclare topology: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.channel = channel
	c.connMu.Unlock()

	c.recordSuccess()
	return nil
}

type amqpSubscription struct {
	cancel context.CancelFunc
	once   sync.Once
}

func (s *amqpSubscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

func (c *Client) Close() error {
	c.connMu.Lock()
	channel, conn := c.channel, c.conn
	c.connMu.Unlock()

	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// isCircuitOpen reports whether publishes should be rejected. An open
// circuit transitions to half-open once the open timeout has passed.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}

	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	failures := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	if failures >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns the reconnect delay for the given attempt,
// capped at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// isConnectionError distinguishes broker connectivity failures from
// application errors; only the former count against the circuit breaker.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"connection refused",
		"connection closed",
		"unexpected EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
