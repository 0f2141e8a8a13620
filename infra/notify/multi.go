package notify

import (
	"context"
	"errors"

	"github.com/kilianp07/faultfleet/core/dispatch"
)

// Multi delivers each order to every notifier and joins their errors.
type Multi []dispatch.Notifier

// NotifyDispatch implements dispatch.Notifier.
func (m Multi) NotifyDispatch(ctx context.Context, o dispatch.Order) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyDispatch(ctx, o))
	}
	return errors.Join(errs...)
}
