package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs the maintenance cycle on a cron schedule in the background.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// NewScheduler registers the cycle on a six-field cron expression
// (with seconds), e.g. "0 0 3 * * *" for 03:00 daily.
func NewScheduler(svc *Service, schedule string, log zerolog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	schedLog := log.With().Str("component", "scheduler").Logger()

	_, err := c.AddFunc(schedule, func() {
		report, err := svc.RunCycle(context.Background(), false)
		if err != nil {
			schedLog.Error().Err(err).Msg("scheduled maintenance cycle failed")
			return
		}
		for _, sweep := range report.Sweeps {
			schedLog.Debug().Str("sweep", sweep.Name).
				Int("examined", sweep.Examined).Int("affected", sweep.Affected).
				Msg("sweep finished")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	return &Scheduler{cron: c, log: schedLog}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("maintenance scheduler started")
}

// Stop halts scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("maintenance scheduler stopped")
}
