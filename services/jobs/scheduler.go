package jobsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/rmtbiph/ratemyteacher/core"
)

// TicketMaintainer is the part of the ticket service the scheduled jobs drive.
type TicketMaintainer interface {
	AutoCloseResolved(ctx context.Context, age time.Duration) (int64, error)
	SendOpenDigest(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	tickets TicketMaintainer
	conf    core.JobsConfig
	logger  core.Logger
	timeout time.Duration
}

func NewScheduler(conf core.JobsConfig, tickets TicketMaintainer, logger core.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger}))),
		tickets: tickets,
		conf:    conf,
		logger:  logger,
		timeout: time.Minute,
	}
}

// Register adds the ticket maintenance jobs; an empty spec disables its job.
func (s *Scheduler) Register() error {
	if s.conf.AutoCloseSpec != "" {
		if _, err := s.cron.AddFunc(s.conf.AutoCloseSpec, func() { s.run("autoclose", s.AutoClose) }); err != nil {
			return errors.Wrapf(err, "scheduling autoclose (%s)", s.conf.AutoCloseSpec)
		}
	}
	if s.conf.DigestSpec != "" {
		if _, err := s.cron.AddFunc(s.conf.DigestSpec, func() { s.run("digest", s.Digest) }); err != nil {
			return errors.Wrapf(err, "scheduling digest (%s)", s.conf.DigestSpec)
		}
	}
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and waits for running jobs, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := job(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("job %s: %v", name, err), err)
	}
}

func (s *Scheduler) AutoClose(ctx context.Context) error {
	n, err := s.tickets.AutoCloseResolved(ctx, s.conf.AutoCloseResolvedAt)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("closed %d resolved ticket(s)", n))
	}
	return nil
}

func (s *Scheduler) Digest(ctx context.Context) error {
	n, err := s.tickets.SendOpenDigest(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("sent digest for %d open ticket(s)", n))
	}
	return nil
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	l core.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(fmt.Sprintf("cron: %s: %v", msg, err), append([]interface{}{err}, keysAndValues...)...)
}
