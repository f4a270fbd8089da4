// Package scheduler feeds message events to the engine on a fixed pool of
// workers, keeping all events for one (group, user) key in order while
// distinct keys proceed in parallel.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/groupwarden/warden/moderation/engine"
)

type Scheduler struct {
	maxConcurrency int

	do func(context.Context, *engine.MessageEvent) error

	feeder chan *consumerTask
	out    chan struct{}

	lk     sync.Mutex
	active map[string][]*consumerTask

	ident string

	// metrics
	itemsAdded     prometheus.Counter
	itemsProcessed prometheus.Counter
	itemsActive    prometheus.Counter
	workersActive  prometheus.Gauge

	log *slog.Logger
}

func NewScheduler(maxC int, ident string, do func(context.Context, *engine.MessageEvent) error) *Scheduler {
	p := &Scheduler{
		maxConcurrency: maxC,

		do: do,

		feeder: make(chan *consumerTask),
		active: make(map[string][]*consumerTask),
		out:    make(chan struct{}),

		ident: ident,

		itemsAdded:     workItemsAdded.WithLabelValues(ident),
		itemsProcessed: workItemsProcessed.WithLabelValues(ident),
		itemsActive:    workItemsActive.WithLabelValues(ident),
		workersActive:  workersActive.WithLabelValues(ident),

		log: slog.Default().With("system", "moderation-scheduler"),
	}

	for i := 0; i < maxC; i++ {
		go p.worker()
	}

	p.workersActive.Set(float64(maxC))

	return p
}

func (p *Scheduler) Shutdown() {
	p.log.Info("shutting down moderation scheduler", "ident", p.ident)

	for i := 0; i < p.maxConcurrency; i++ {
		p.feeder <- &consumerTask{
			control: "stop",
		}
	}

	close(p.feeder)

	for i := 0; i < p.maxConcurrency; i++ {
		<-p.out
	}

	p.log.Info("moderation scheduler shutdown complete")
}

type consumerTask struct {
	key     string
	val     *engine.MessageEvent
	control string
}

func (p *Scheduler) AddWork(ctx context.Context, key string, val *engine.MessageEvent) error {
	p.itemsAdded.Inc()
	t := &consumerTask{
		key: key,
		val: val,
	}
	p.lk.Lock()

	a, ok := p.active[key]
	if ok {
		p.active[key] = append(a, t)
		p.lk.Unlock()
		return nil
	}

	p.active[key] = []*consumerTask{}
	p.lk.Unlock()

	select {
	case p.feeder <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Scheduler) worker() {
	for work := range p.feeder {
		for work != nil {
			if work.control == "stop" {
				p.out <- struct{}{}
				return
			}

			p.itemsActive.Inc()
			if err := p.do(context.TODO(), work.val); err != nil {
				p.log.Error("event handler failed", "err", err)
			}
			p.itemsProcessed.Inc()

			p.lk.Lock()
			rem, ok := p.active[work.key]
			if !ok {
				p.log.Error("should always have an 'active' entry if a worker is processing a job")
			}

			if len(rem) == 0 {
				delete(p.active, work.key)
				work = nil
			} else {
				work = rem[0]
				p.active[work.key] = rem[1:]
			}
			p.lk.Unlock()
		}
	}
}
