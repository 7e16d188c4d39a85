package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// tickSpec fires on every minute boundary, which is also when minute-equality
// time triggers can match.
const tickSpec = "* * * * *"

// Ticker runs a sweep function on a fixed minute schedule. The sweep itself
// stays directly callable so tests drive it without wall-clock waits.
type Ticker struct {
	cron *cron.Cron
	tick func(context.Context) error
}

// NewTicker creates a ticker around the given sweep function
func NewTicker(tick func(context.Context) error) *Ticker {
	return &Ticker{cron: cron.New(), tick: tick}
}

// Start registers the minute job and starts the cron loop
func (t *Ticker) Start() error {
	_, err := t.cron.AddFunc(tickSpec, func() {
		if err := t.tick(context.Background()); err != nil {
			// A failed sweep is logged and dropped; the next minute's sweep
			// proceeds independently.
			log.Printf("SCHEDULER: sweep failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	t.cron.Start()
	log.Println("SCHEDULER: minute sweep scheduled")
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish
func (t *Ticker) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("SCHEDULER: stopped")
}
