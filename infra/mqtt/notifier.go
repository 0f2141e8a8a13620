package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/faultfleet/core/dispatch"
)

// Notifier delivers dispatch orders on the vehicle dispatch topic.
type Notifier struct {
	pub    Publisher
	prefix string
}

// NewNotifier creates a Notifier publishing under prefix.
func NewNotifier(pub Publisher, prefix string) *Notifier {
	if prefix == "" {
		prefix = "fleet"
	}
	return &Notifier{pub: pub, prefix: prefix}
}

// NotifyDispatch implements dispatch.Notifier.
func (n *Notifier) NotifyDispatch(ctx context.Context, o dispatch.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	return n.pub.Publish(DispatchTopic(n.prefix, o.VehicleID), QoSDispatch, payload)
}
