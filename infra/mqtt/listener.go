package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kilianp07/faultfleet/core/dispatch"
	"github.com/kilianp07/faultfleet/core/logger"
	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/tracking"
)

// Acknowledger confirms pending dispatches.
type Acknowledger interface {
	Acknowledge(ctx context.Context, faultID, vehicleID string) error
}

// SampleHandler consumes position samples.
type SampleHandler interface {
	HandleSample(ctx context.Context, s model.PositionSample) (tracking.Outcome, error)
}

// Subscriber registers topic handlers. *Client implements it.
type Subscriber interface {
	Subscribe(topic, qosKey string, h Handler) error
}

type ackMessage struct {
	FaultID   string `json:"fault_id"`
	VehicleID string `json:"vehicle_id"`
}

// Listener feeds acknowledgments and positions received over MQTT into
// the dispatch engine and the tracking monitor.
type Listener struct {
	acks    Acknowledger
	samples SampleHandler
	log     logger.Logger
	timeout time.Duration
}

// NewListener creates a Listener. log may be nil.
func NewListener(acks Acknowledger, samples SampleHandler, log logger.Logger) *Listener {
	if log == nil {
		log = logger.Nop{}
	}
	return &Listener{acks: acks, samples: samples, log: log, timeout: 10 * time.Second}
}

// Start subscribes to the ack and position topics under prefix.
func (l *Listener) Start(sub Subscriber, prefix string) error {
	if err := sub.Subscribe(AckTopic(prefix), QoSAck, l.HandleAck); err != nil {
		return err
	}
	return sub.Subscribe(PositionTopic(prefix), QoSPosition, l.HandlePosition)
}

// HandleAck processes one acknowledgment payload. The vehicle id defaults
// to the one in the topic.
func (l *Listener) HandleAck(topic string, payload []byte) {
	var m ackMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		received.WithLabelValues("ack", "invalid").Inc()
		l.log.Errorf("failed to decode ack on %s: %v", topic, err)
		return
	}
	fromTopic := vehicleFromTopic(topic)
	if m.VehicleID == "" {
		m.VehicleID = fromTopic
	}
	if m.FaultID == "" || (fromTopic != "" && m.VehicleID != fromTopic) {
		received.WithLabelValues("ack", "invalid").Inc()
		l.log.Warnf("ignoring ack on %s for vehicle %q fault %q", topic, m.VehicleID, m.FaultID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	err := l.acks.Acknowledge(ctx, m.FaultID, m.VehicleID)
	switch {
	case err == nil:
		received.WithLabelValues("ack", "accepted").Inc()
		l.log.Infof("received ack of fault %s from %s", m.FaultID, m.VehicleID)
	case errors.Is(err, dispatch.ErrNoActiveAttempt):
		received.WithLabelValues("ack", "stale").Inc()
		l.log.Warnf("stale ack of fault %s from %s", m.FaultID, m.VehicleID)
	default:
		received.WithLabelValues("ack", "error").Inc()
		l.log.Errorf("ack of fault %s from %s: %v", m.FaultID, m.VehicleID, err)
	}
}

// HandlePosition processes one position payload. The vehicle id defaults
// to the one in the topic and must match it when both are present.
func (l *Listener) HandlePosition(topic string, payload []byte) {
	var s model.PositionSample
	if err := json.Unmarshal(payload, &s); err != nil {
		received.WithLabelValues("position", "invalid").Inc()
		l.log.Errorf("failed to decode position on %s: %v", topic, err)
		return
	}
	fromTopic := vehicleFromTopic(topic)
	if s.VehicleID == "" {
		s.VehicleID = fromTopic
	}
	if fromTopic != "" && s.VehicleID != fromTopic {
		received.WithLabelValues("position", "invalid").Inc()
		l.log.Warnf("ignoring position on %s for vehicle %q", topic, s.VehicleID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if _, err := l.samples.HandleSample(ctx, s); err != nil {
		if errors.Is(err, model.ErrInvalidSample) {
			received.WithLabelValues("position", "invalid").Inc()
			l.log.Warnf("rejected position of %s: %v", s.VehicleID, err)
			return
		}
		received.WithLabelValues("position", "error").Inc()
		l.log.Errorf("position of %s: %v", s.VehicleID, err)
		return
	}
	received.WithLabelValues("position", "accepted").Inc()
}
