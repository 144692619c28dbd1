package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/xelth-com/odoobridge/internal/export"
	"github.com/xelth-com/odoobridge/internal/idmap"
	"github.com/xelth-com/odoobridge/internal/metrics"
	"github.com/xelth-com/odoobridge/internal/models"
)

const requeueDelay = 5 * time.Second

// Message announces a changed local entity that should be exported later
type Message struct {
	EntityType    string                 `json:"entity_type"`
	RemoteModel   string                 `json:"remote_model"`
	ExportVariant string                 `json:"export_variant"`
	LocalID       int64                  `json:"local_id"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}

func (m Message) key() idmap.Key {
	variant := m.ExportVariant
	if variant == "" {
		variant = "default"
	}
	return idmap.NewKey(m.EntityType, m.RemoteModel, variant)
}

// Enqueuer stores delayed export requests
type Enqueuer interface {
	Enqueue(ctx context.Context, key export.Key, localID int64, payload map[string]interface{}) (*models.SyncQueue, bool, error)
}

// Consumer reads entity-change messages from one durable queue
type Consumer struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queue     string
	target    Enqueuer
	metrics   *metrics.Metrics
	log       *logrus.Logger
	delay     time.Duration
	closeOnce sync.Once
}

// NewConsumer dials RabbitMQ and declares the queue
func NewConsumer(url, queue string, target Enqueuer, m *metrics.Metrics, log *logrus.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	// one unacked message at a time keeps the queue order
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   queue,
		target:  target,
		metrics: m,
		log:     log,
		delay:   requeueDelay,
	}, nil
}

// Listen consumes until ctx is done or the channel closes
func (c *Consumer) Listen(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "odoobridge", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.WithField("queue", c.queue).Info("📨 Broker consumer is online")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("broker message channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle enqueues one delivery and settles it. Messages that can never be
// enqueued are dropped; storage failures are requeued after a pause.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.reject(d, "malformed", fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if msg.EntityType == "" || msg.RemoteModel == "" || msg.LocalID <= 0 {
		c.reject(d, "malformed", errors.New("entity_type, remote_model and local_id are required"))
		return
	}

	key := msg.key()
	logger := c.log.WithFields(logrus.Fields{
		"entity_type":  key.EntityType,
		"remote_model": key.RemoteModel,
		"variant":      key.Variant,
		"local_id":     msg.LocalID,
	})

	item, created, err := c.target.Enqueue(ctx, key, msg.LocalID, msg.Payload)
	switch {
	case errors.Is(err, export.ErrUnknownExporter):
		c.reject(d, "malformed", err)
		return
	case err != nil:
		logger.Errorf("❌ Failed to enqueue, requeueing: %v", err)
		c.count("error")
		select {
		case <-ctx.Done():
		case <-time.After(c.delay):
		}
		if nerr := d.Nack(false, true); nerr != nil {
			logger.Warnf("failed to nack message: %v", nerr)
		}
		return
	}

	if created {
		logger.WithField("queue_id", item.ID).Debug("queued export request")
	}
	c.count("queued")
	if err := d.Ack(false); err != nil {
		logger.Warnf("failed to ack message: %v", err)
	}
}

func (c *Consumer) reject(d amqp.Delivery, status string, cause error) {
	c.log.WithField("delivery_tag", d.DeliveryTag).Warnf("⚠️ Dropping broker message: %v", cause)
	c.count(status)
	if err := d.Nack(false, false); err != nil {
		c.log.Warnf("failed to nack message: %v", err)
	}
}

func (c *Consumer) count(status string) {
	if c.metrics != nil {
		c.metrics.BrokerMessages.WithLabelValues(status).Inc()
	}
}

// Close shuts the channel and the connection
func (c *Consumer) Close() {
	c.closeOnce.Do(func() {
		c.log.Info("Shutting down broker consumer")
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
