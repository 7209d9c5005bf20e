package retry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep every day at 03:00.
const DefaultSweepSchedule = "0 0 3 * * *"

// Sweeper runs Tracker.Sweep on a cron schedule.
type Sweeper struct {
	cron *cron.Cron
}

func NewSweeper(tracker *Tracker, schedule string) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	runner := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		),
	)
	_, err := runner.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := tracker.Sweep(ctx); err != nil {
			log.Printf("[SWEEP] ERROR: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{cron: runner}, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	log.Printf("[SWEEP] scheduler started")
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
