// Package notify forwards dispatch orders and lifecycle events to
// downstream systems over Kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/events"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/internal/eventbus"
)

// KafkaConfig holds the broker settings of the notifier.
type KafkaConfig struct {
	Enabled       bool     `json:"enabled"`
	Brokers       []string `json:"brokers"`
	DispatchTopic string   `json:"dispatch_topic"`
	EventsTopic   string   `json:"events_topic"`
}

// SetDefaults applies the default topic names.
func (c *KafkaConfig) SetDefaults() {
	if c.DispatchTopic == "" {
		c.DispatchTopic = "fleet.dispatch"
	}
	if c.EventsTopic == "" {
		c.EventsTopic = "fleet.events"
	}
}

// Validate requires brokers when the notifier is enabled.
func (c KafkaConfig) Validate() error {
	if c.Enabled && len(c.Brokers) == 0 {
		return fmt.Errorf("notify: kafka brokers are required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes dispatch orders keyed by vehicle and bus events
// keyed by entity.
type KafkaNotifier struct {
	w   messageWriter
	cfg KafkaConfig
	log logger.Logger
	now func() time.Time
}

// NewKafkaNotifier creates a notifier writing to the configured brokers.
func NewKafkaNotifier(cfg KafkaConfig, log logger.Logger) *KafkaNotifier {
	cfg.SetDefaults()
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           5 * time.Second,
	}
	return newKafkaNotifier(w, cfg, log)
}

func newKafkaNotifier(w messageWriter, cfg KafkaConfig, log logger.Logger) *KafkaNotifier {
	if log == nil {
		log = logger.Nop{}
	}
	return &KafkaNotifier{w: w, cfg: cfg, log: log, now: time.Now}
}

// NotifyDispatch implements dispatch.Notifier.
func (n *KafkaNotifier) NotifyDispatch(ctx context.Context, o dispatch.Order) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	msg := kafka.Message{
		Topic: n.cfg.DispatchTopic,
		Key:   []byte(o.VehicleID),
		Value: payload,
		Time:  n.now(),
	}
	if err := n.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka dispatch %s: %w", o.FaultID, err)
	}
	return nil
}

// Forward streams every bus event to the events topic until ctx is
// canceled. Write failures are logged and the event is skipped.
func (n *KafkaNotifier) Forward(ctx context.Context, bus eventbus.EventBus) {
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := n.publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
				n.log.Warnf("forward %s event of %s: %v", ev.Kind(), ev.EntityID(), err)
			}
		}
	}
}

func (n *KafkaNotifier) publish(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.w.WriteMessages(ctx, kafka.Message{
		Topic:   n.cfg.EventsTopic,
		Key:     []byte(ev.EntityID()),
		Value:   payload,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(ev.Kind())}},
		Time:    n.now(),
	})
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error { return n.w.Close() }
