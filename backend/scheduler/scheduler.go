package scheduler

import (
	"context"
	"time"

	"examhub/backend/utils"

	"github.com/go-co-op/gocron"
)

// sweepBatch bounds how many expired attempts one run finalizes.
const sweepBatch = 100

// Sweeper finalizes attempts whose time ran out with nobody watching.
type Sweeper interface {
	FinalizeExpired(ctx context.Context, limit int) (int, error)
}

// Scheduler runs the expired-attempt sweep on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	interval  time.Duration
	timeout   time.Duration
}

func New(sweeper Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		interval:  interval,
		timeout:   interval,
	}
}

// Start schedules the sweep without blocking. Runs never overlap.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.RunOnce); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// RunOnce sweeps until a batch comes back short.
func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	log := utils.WithContext(ctx).WithField("job", "sweep_expired_attempts")

	total := 0
	for {
		n, err := s.sweeper.FinalizeExpired(ctx, sweepBatch)
		if err != nil {
			log.WithError(err).Error("Sweep failed")
			return
		}
		total += n
		if n < sweepBatch || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		log.Infof("Finalized %d expired attempts", total)
	}
}
