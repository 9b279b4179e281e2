package audit

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher owns the worker pool that drains pending runs from the database.
// Admission nudges it through a channel for sub-second pickup; a fallback poll
// ticker guarantees at-least-once pickup of runs enqueued by other processes
// or left behind by a crash.
type Dispatcher struct {
	svc   *Service
	nudge chan struct{}
}

// NewDispatcher wires a dispatcher to the service and registers itself as the
// service's wake-up hook.
func NewDispatcher(svc *Service) *Dispatcher {
	d := &Dispatcher{
		svc:   svc,
		nudge: make(chan struct{}, 1),
	}
	svc.SetNotify(d.Nudge)
	return d
}

// Nudge wakes one idle worker. Non-blocking; a pending nudge is enough.
func (d *Dispatcher) Nudge() {
	select {
	case d.nudge <- struct{}{}:
	default:
	}
}

// Run blocks, running the worker pool until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Printf("[dispatcher] starting %d workers (poll every %s)",
		d.svc.cfg.WorkerCount, d.svc.cfg.PollInterval)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.svc.cfg.WorkerCount; i++ {
		id := i
		g.Go(func() error {
			return d.worker(gctx, id)
		})
	}
	return g.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) error {
	ticker := time.NewTicker(d.svc.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.nudge:
		case <-ticker.C:
		}
		d.drain(ctx, id)
	}
}

// drain claims and executes pending runs until the queue is empty.
func (d *Dispatcher) drain(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}
		run, err := d.svc.store.ClaimNextRun(ctx)
		if err != nil {
			log.Printf("[dispatcher] worker %d claim failed: %v", id, err)
			return
		}
		if run == nil {
			return
		}
		d.svc.RunOne(ctx, run)
	}
}
