package app

import (
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper periodically closes attempts that nobody is driving any more.
type Sweeper struct {
	scheduler *gocron.Scheduler
	service   *AttemptService
	interval  time.Duration
	idle      time.Duration
}

func NewSweeper(service *AttemptService, interval, idle time.Duration) *Sweeper {
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
		idle:      idle,
	}
}

// Start schedules the sweep without blocking.
func (s *Sweeper) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

func (s *Sweeper) sweep() {
	s.service.SweepIdle(s.idle)
}
