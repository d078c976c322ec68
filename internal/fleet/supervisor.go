// Package fleet composes the bot fleet: it starts one agent per configured
// group with staggered launches, keeps the background maintenance tasks
// alive, and decides what an agent's death means. It holds no business state.
package fleet

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"whatsapp-salesbot/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is one supervised agent loop.
type Runner interface {
	Name() string
	Campuses() []string
	Processed() int64
	Running() bool
	Run(ctx context.Context) error
}

// Aggregator supplies the daily report data.
type Aggregator interface {
	DailyAggregate(ctx context.Context) ([]store.AggregateRow, error)
}

// DailyNotifier receives the daily report. Best-effort.
type DailyNotifier interface {
	NotifyDailyReport(ctx context.Context, rows []store.AggregateRow)
}

// Options tune the supervisor.
type Options struct {
	StaggerDelay    time.Duration // pause between agent launches
	IdleInterval    time.Duration // keep-alive period; 0 disables
	DailyReportTime string        // "15:04" wall clock; empty disables
}

// Supervisor owns the fleet lifecycle.
type Supervisor struct {
	agents   []Runner
	opts     Options
	idlePing func(ctx context.Context) error
	agg      Aggregator
	notifier DailyNotifier
	logger   *zap.Logger

	mu     sync.Mutex
	deaths map[string]error
}

// New builds a supervisor. idlePing may be nil to disable the idle guard;
// agg/notifier may be nil to disable reporting.
func New(agents []Runner, opts Options, idlePing func(ctx context.Context) error, agg Aggregator, notifier DailyNotifier, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		agents:   agents,
		opts:     opts,
		idlePing: idlePing,
		agg:      agg,
		notifier: notifier,
		logger:   logger,
		deaths:   make(map[string]error),
	}
}

// Run starts everything and blocks until ctx is cancelled and every agent
// has finished its current work. An individual agent's death is recorded and
// logged but never propagates to its siblings or to the caller.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if s.opts.IdleInterval > 0 && s.idlePing != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runIdleGuard(ctx)
		}()
	}

	c, err := s.scheduleDailyReport(ctx)
	if err != nil {
		return err
	}
	if c != nil {
		c.Start()
		defer c.Stop()
	}

	for i, ag := range s.agents {
		if i > 0 {
			// Simultaneous browser launches are expensive; space them out.
			sleepCtx(ctx, s.opts.StaggerDelay)
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(ag Runner) {
			defer wg.Done()
			if err := ag.Run(ctx); err != nil {
				s.logger.Error("agent died", zap.String("bot", ag.Name()), zap.Error(err))
				s.mu.Lock()
				s.deaths[ag.Name()] = err
				s.mu.Unlock()
			}
		}(ag)
	}

	s.logger.Info("fleet running", zap.Int("agents", len(s.agents)))
	wg.Wait()
	s.logger.Info("fleet stopped")
	return nil
}

func (s *Supervisor) runIdleGuard(ctx context.Context) {
	s.logger.Info("idle guard started", zap.Duration("interval", s.opts.IdleInterval))
	ticker := time.NewTicker(s.opts.IdleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.idlePing(ctx); err != nil {
				s.logger.Warn("idle guard ping failed", zap.Error(err))
			}
		}
	}
}

func (s *Supervisor) scheduleDailyReport(ctx context.Context) (*cron.Cron, error) {
	if s.opts.DailyReportTime == "" || s.agg == nil || s.notifier == nil {
		return nil, nil
	}
	spec, err := cronSpec(s.opts.DailyReportTime)
	if err != nil {
		return nil, err
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.sendDailyReport(ctx) }); err != nil {
		return nil, fmt.Errorf("schedule daily report: %w", err)
	}
	s.logger.Info("daily report scheduled", zap.String("at", s.opts.DailyReportTime))
	return c, nil
}

func (s *Supervisor) sendDailyReport(ctx context.Context) {
	rows, err := s.agg.DailyAggregate(ctx)
	if err != nil {
		s.logger.Error("daily report aggregation failed", zap.Error(err))
		return
	}
	if len(rows) == 0 {
		s.logger.Info("no data for daily report")
		return
	}
	s.notifier.NotifyDailyReport(ctx, rows)
	s.logger.Info("daily report dispatched", zap.Int("rows", len(rows)))
}

// Deaths returns the agents that have stopped with an error.
func (s *Supervisor) Deaths() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.deaths))
	for name, err := range s.deaths {
		out[name] = err.Error()
	}
	return out
}

// AgentState is a point-in-time view of one agent for the ops API.
type AgentState struct {
	Name      string   `json:"name"`
	Campuses  []string `json:"campuses"`
	Running   bool     `json:"running"`
	Processed int64    `json:"processed"`
	LastError string   `json:"last_error,omitempty"`
}

// Snapshot reports every agent's current state.
func (s *Supervisor) Snapshot() []AgentState {
	deaths := s.Deaths()
	states := make([]AgentState, 0, len(s.agents))
	for _, ag := range s.agents {
		states = append(states, AgentState{
			Name:      ag.Name(),
			Campuses:  ag.Campuses(),
			Running:   ag.Running(),
			Processed: ag.Processed(),
			LastError: deaths[ag.Name()],
		})
	}
	return states
}

// cronSpec converts a "15:04" wall-clock time into a daily cron expression.
func cronSpec(at string) (string, error) {
	parts := strings.SplitN(strings.TrimSpace(at), ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("bad report time %q, want HH:MM", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad report hour in %q", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad report minute in %q", at)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
