/**
 * @description
 * Cron scheduler setup for the monthly payout run.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the recurring payout job.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
}

// NewScheduler creates a new scheduler instance. schedule is a standard cron
// expression, typically firing on the configured processing day each month.
func NewScheduler(service *Service, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		service:  service,
		schedule: schedule,
	}
}

// Start registers the payout job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runPayouts); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule payout run\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"scheduled payout run\" schedule=%q", s.schedule)
	s.cron.Start()
}

func (s *Scheduler) runPayouts() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := s.service.RunScheduledPayouts(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"payout run failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"payout run done\" period_id=%s completed=%d failed=%d", result.PeriodID, result.PayoutsCompleted, result.PayoutsFailed)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
