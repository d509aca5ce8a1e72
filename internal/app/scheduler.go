package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"llmarena/internal/tournament"
)

const (
	evictInterval    = time.Minute
	sinkFlushTimeout = 5 * time.Second
)

// scheduler runs housekeeping jobs and deferred tournament starts.
type scheduler struct {
	ctx         context.Context
	log         *slog.Logger
	cron        gocron.Scheduler
	tournaments *tournament.Orchestrator
}

func newScheduler(ctx context.Context, log *slog.Logger, tournaments *tournament.Orchestrator) (*scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	return &scheduler{
		ctx:         ctx,
		log:         log.With(slog.String("component", "scheduler")),
		cron:        cron,
		tournaments: tournaments,
	}, nil
}

func (s *scheduler) every(d time.Duration, name string, fn func()) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return errors.Wrapf(err, "schedule %s", name)
}

// ScheduleStart starts t at its configured StartAt. A tournament started or
// cancelled by hand in the meantime is left alone.
func (s *scheduler) ScheduleStart(t *tournament.Tournament) error {
	at := t.Config().StartAt
	if at == nil {
		return errors.Errorf("tournament %s has no start time", t.ID())
	}
	_, err := s.cron.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(*at)),
		gocron.NewTask(func() { s.startTournament(t) }),
		gocron.WithName("start "+t.ID()),
	)
	if err != nil {
		return errors.Wrapf(err, "schedule tournament %s", t.ID())
	}
	s.log.Info("tournament_scheduled", slog.String("tournament", t.ID()), slog.Time("start_at", *at))
	return nil
}

func (s *scheduler) startTournament(t *tournament.Tournament) {
	if t.Status() != tournament.Created {
		s.log.Info("scheduled_start_skipped", slog.String("tournament", t.ID()), slog.String("status", string(t.Status())))
		return
	}
	if err := s.tournaments.Start(s.ctx, t); err != nil {
		s.log.Error("scheduled_start_failed", slog.String("tournament", t.ID()), slog.Any("err", err))
	}
}

func (s *scheduler) start() {
	s.cron.Start()
}

func (s *scheduler) shutdown() error {
	return errors.Wrap(s.cron.Shutdown(), "scheduler shutdown")
}
