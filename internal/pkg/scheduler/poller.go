package scheduler

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

// Poller invokes the publisher on a fixed interval. Due work is recomputed
// from persisted state at every tick, so a crash or restart loses nothing:
// there are no in-process per-record timers.
type Poller struct {
	publisher *Publisher
	cron      *cron.Cron

	mu      sync.Mutex
	running bool
}

const (
	tickSpec  = "*/30 * * * * *" // every 30 seconds
	sweepSpec = "0 * * * * *"    // every minute
)

func NewPoller(publisher *Publisher) *Poller {
	return &Poller{
		publisher: publisher,
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start registers the tick and stuck-recovery jobs and starts the cron loop.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	if _, err := p.cron.AddFunc(tickSpec, func() {
		if err := p.publisher.Tick(context.Background()); err != nil {
			log.Errorf("[Scheduler] Tick failed: %v", err)
		}
	}); err != nil {
		return err
	}

	if _, err := p.cron.AddFunc(sweepSpec, p.publisher.RecoverStuck); err != nil {
		return err
	}

	p.cron.Start()
	p.running = true
	log.Info("[Scheduler] Poller started")
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	ctx := p.cron.Stop()
	<-ctx.Done()
	p.running = false
	log.Info("[Scheduler] Poller stopped")
}
