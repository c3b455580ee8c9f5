package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	amqpDialAttempts = 10
	amqpDialBackoff  = 2 * time.Second
	controlQueue     = "Session_Control"
	eventQueuePrefix = "Session_Events_"
)

// AMQPOpener consumes a session's event stream from a per-session queue.
// Used for asynchronous batch runs, where the engine publishes results to
// the broker instead of holding a socket open. A subscribe notice is
// published on open and an unsubscribe notice on close so the engine knows
// when to start and stop routing events for the session.
type AMQPOpener struct {
	URI string
	Log zerolog.Logger
}

// Open connects to the broker, declares the session's event queue, and
// starts consuming.
func (o *AMQPOpener) Open(ctx context.Context, sessionID string) (Channel, error) {
	var conn *amqp091.Connection
	var err error
	for i := 0; i < amqpDialAttempts; i++ {
		conn, err = amqp091.Dial(o.URI)
		if err == nil {
			break
		}
		o.Log.Warn().Err(err).Int("attempt", i+1).Msg("broker connection failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(amqpDialBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to broker after %d attempts: %w", amqpDialAttempts, err)
	}

	amqpCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}

	queueName := eventQueuePrefix + sessionID
	if _, err := amqpCh.QueueDeclare(queueName, true, true, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if _, err := amqpCh.QueueDeclare(controlQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", controlQueue, err)
	}

	deliveries, err := amqpCh.Consume(queueName, "", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("consume queue %s: %w", queueName, err)
	}

	ch := &amqpChannel{
		conn:      conn,
		amqpCh:    amqpCh,
		sessionID: sessionID,
		frames:    make(chan []byte, 256),
		log:       o.Log.With().Str("session", sessionID).Logger(),
	}

	if err := ch.publishNotice(ctx, "subscribe"); err != nil {
		conn.Close()
		return nil, err
	}

	go ch.relay(deliveries)
	return ch, nil
}

type amqpChannel struct {
	conn      *amqp091.Connection
	amqpCh    *amqp091.Channel
	sessionID string
	frames    chan []byte
	log       zerolog.Logger

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	err       error
}

func (c *amqpChannel) Frames() <-chan []byte { return c.frames }

// relay forwards delivery bodies until the broker channel closes.
func (c *amqpChannel) relay(deliveries <-chan amqp091.Delivery) {
	defer close(c.frames)
	for d := range deliveries {
		c.frames <- d.Body
	}
	c.mu.Lock()
	if !c.closed {
		c.err = fmt.Errorf("broker closed session queue %s", eventQueuePrefix+c.sessionID)
		c.log.Warn().Msg("broker closed session queue")
	}
	c.mu.Unlock()
}

func (c *amqpChannel) publishNotice(ctx context.Context, action string) error {
	body, _ := json.Marshal(map[string]string{"action": action, "sessionId": c.sessionID})
	err := c.amqpCh.PublishWithContext(ctx, "", controlQueue, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish %s notice: %w", action, err)
	}
	return nil
}

// Close tells the engine to stop routing and tears the connection down.
func (c *amqpChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.publishNotice(ctx, "unsubscribe"); err != nil {
			c.log.Warn().Err(err).Msg("unsubscribe notice failed")
		}
		c.amqpCh.Close()
		c.conn.Close()
	})
	return nil
}

func (c *amqpChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
