package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/faultfleet/core/model"
	"github.com/kilianp07/faultfleet/core/store"
)

// Trigger names why a dispatch was requested.
type Trigger string

const (
	TriggerFaultCreated Trigger = "fault_created"
	TriggerTimedOut     Trigger = "dispatch_timed_out"
	TriggerSweep        Trigger = "sweep"
	TriggerManual       Trigger = "manual"
)

// Request asks the worker pool to dispatch a fault.
type Request struct {
	FaultID string
	Trigger Trigger
	// VehicleID is the vehicle that timed out, for TriggerTimedOut.
	VehicleID string
}

// Submit enqueues req without blocking. It returns false when the queue is
// full; the periodic sweep picks the fault up later.
func (e *Engine) Submit(req Request) bool {
	select {
	case e.queue <- req:
		return true
	default:
		queueDropped.Inc()
		e.log.Warnf("dispatch queue full, dropping %s request for fault %s", req.Trigger, req.FaultID)
		return false
	}
}

// Run consumes the queue with the configured number of workers and sweeps
// waiting faults periodically. It blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	ticker := time.NewTicker(e.cfg.sweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

func (e *Engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.queue:
			_, err := e.Process(ctx, req)
			switch {
			case err == nil, IsRetryable(err), errors.Is(err, ErrFaultNotWaiting):
			default:
				e.log.Errorf("dispatch %s for fault %s: %v", req.Trigger, req.FaultID, err)
			}
		}
	}
}

// Sweep prunes expired exclusions and re-submits every waiting fault.
func (e *Engine) Sweep(ctx context.Context) {
	if n := e.excl.Prune(); n > 0 {
		e.log.Debugf("pruned %d expired exclusions", n)
	}
	faults, err := e.store.ListFaults(ctx, store.FaultFilter{Status: model.FaultWaiting})
	if err != nil {
		e.log.Errorf("sweep list faults: %v", err)
		return
	}
	for _, f := range faults {
		if !e.Submit(Request{FaultID: f.ID, Trigger: TriggerSweep}) {
			return
		}
	}
}
