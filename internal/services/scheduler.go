package services

import (
	"context"
	"sync"

	"auction-core/internal/clock"
	"auction-core/internal/domain"
	"auction-core/pkg/logger"

	"github.com/robfig/cron/v3"
)

// LifecycleScheduler runs the resolver on a cron schedule. When leader
// election is configured only the leader sweeps; the resolver stays correct
// without it.
type LifecycleScheduler struct {
	cron       *cron.Cron
	resolver   *LifecycleResolver
	leader     domain.LeaderElection
	instanceID string
	schedule   string
	clock      clock.Clock
	log        logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewLifecycleScheduler(
	resolver *LifecycleResolver,
	leader domain.LeaderElection,
	instanceID string,
	schedule string,
	clk clock.Clock,
	log logger.Logger,
) *LifecycleScheduler {
	return &LifecycleScheduler{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log}))),
		resolver:   resolver,
		leader:     leader,
		instanceID: instanceID,
		schedule:   schedule,
		clock:      clk,
		log:        log,
	}
}

func (s *LifecycleScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting lifecycle scheduler", "schedule", s.schedule, "instance_id", s.instanceID)

	ctx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.RunOnce(ctx)
	}); err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish and gives up leadership.
func (s *LifecycleScheduler) Stop(ctx context.Context) error {
	s.log.Info("Stopping lifecycle scheduler")

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.leader != nil {
		return s.leader.ReleaseLeadership(ctx, s.instanceID)
	}
	return nil
}

// RunOnce performs a single sweep if this instance may sweep.
func (s *LifecycleScheduler) RunOnce(ctx context.Context) []domain.ResolvedAuction {
	if s.leader != nil {
		isLeader, err := s.leader.BecomeLeader(ctx, s.instanceID)
		if err != nil {
			s.log.Error("Leader election failed", "instance_id", s.instanceID, "error", err)
			return nil
		}
		if !isLeader {
			s.log.Debug("Not the leader, skipping sweep", "instance_id", s.instanceID)
			return nil
		}
	}

	resolved, err := s.resolver.ResolveDue(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("Lifecycle sweep finished with errors", "resolved", len(resolved), "error", err)
	}
	return resolved
}

type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
