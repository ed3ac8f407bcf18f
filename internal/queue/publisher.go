// Package queue exports saved snapshot batches to an AMQP queue for
// downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"statuspage/internal/models"
)

// Message is the JSON body of every published batch.
type Message struct {
	CollectedAt time.Time
	Snapshots   []models.HealthSnapshot
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CollectedAt string                  `json:"collectedAt"`
		Snapshots   []models.HealthSnapshot `json:"snapshots"`
	}{models.FormatTimestamp(m.CollectedAt), m.Snapshots})
}

// Encode builds the message body for batch.
func Encode(batch []models.HealthSnapshot) ([]byte, error) {
	msg := Message{Snapshots: batch}
	if msg.Snapshots == nil {
		msg.Snapshots = []models.HealthSnapshot{}
	}
	for _, s := range batch {
		if s.Timestamp.After(msg.CollectedAt) {
			msg.CollectedAt = s.Timestamp.UTC()
		}
	}
	return json.Marshal(msg)
}

// dialTimeout bounds the TCP connect plus the AMQP handshake.
const dialTimeout = 30 * time.Second

// Publisher keeps one connection open and re-dials after a failure.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: logger}
}

func (p *Publisher) Publish(ctx context.Context, batch []models.HealthSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Encode(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channelLocked(ctx)
	if err != nil {
		return err
	}
	err = ch.Publish(
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}
	p.log.Debug("published snapshots", "queue", p.queue, "count", len(batch))
	return nil
}

func (p *Publisher) channelLocked(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	conn, err := dial(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", "queue", p.queue)
	return ch, nil
}

// dial connects to url and completes the AMQP handshake, giving up as soon
// as ctx is done.
func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	stop := make(chan struct{})
	var watcher sync.WaitGroup
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			deadline := time.Now().Add(dialTimeout)
			if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
				deadline = dl
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			// unblock the handshake on cancellation without a deadline
			watcher.Add(1)
			go func() {
				defer watcher.Done()
				select {
				case <-ctx.Done():
					_ = conn.SetDeadline(time.Now())
				case <-stop:
				}
			}()
			return conn, nil
		},
	}
	conn, err := amqp.DialConfig(url, cfg)
	close(stop)
	watcher.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, ctxErr
	}
	if err != nil {
		if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	return conn, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
