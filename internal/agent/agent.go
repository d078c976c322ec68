// Package agent runs one long-lived outreach loop: one bot, one WhatsApp
// session, one campus partition, polled forever.
package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/session"

	"go.uber.org/zap"
)

// LeadSource is the slice of the store an agent needs.
type LeadSource interface {
	FetchBatch(ctx context.Context, campuses []string, exclude []string, limit int) ([]models.Lead, error)
	AppendStatuses(ctx context.Context, records []models.LeadStatus) error
}

// LeadProcessor drives one lead to a terminal outcome. nil means skipped.
type LeadProcessor interface {
	Process(ctx context.Context, sess session.Session, lead models.Lead) *models.LeadStatus
}

// Options configure one agent.
type Options struct {
	Name             string
	Campuses         []string
	BatchSize        int
	PollInterval     time.Duration
	EstablishTimeout time.Duration
}

// Agent owns one session for its whole lifetime and processes its partition
// serially. The loop only ends on context cancellation or a failed session
// establishment; everything else degrades into a backoff sleep.
type Agent struct {
	opts   Options
	store  LeadSource
	proc   LeadProcessor
	sess   session.Session
	logger *zap.Logger

	seen      *dedupSet
	processed atomic.Int64
	running   atomic.Bool
}

func New(opts Options, store LeadSource, proc LeadProcessor, sess session.Session, logger *zap.Logger) *Agent {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.EstablishTimeout <= 0 {
		opts.EstablishTimeout = 2 * time.Minute
	}
	return &Agent{
		opts:   opts,
		store:  store,
		proc:   proc,
		sess:   sess,
		logger: logger.With(zap.String("bot", opts.Name)),
		seen:   newDedupSet(),
	}
}

func (a *Agent) Name() string       { return a.opts.Name }
func (a *Agent) Campuses() []string { return a.opts.Campuses }
func (a *Agent) Processed() int64   { return a.processed.Load() }
func (a *Agent) Running() bool      { return a.running.Load() }

// Run blocks until ctx is cancelled. A session that never becomes ready is
// the only error returned; it stops this agent without touching its siblings.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting agent", zap.Strings("campuses", a.opts.Campuses))

	if err := a.sess.Establish(ctx, a.opts.EstablishTimeout); err != nil {
		a.sess.Close()
		return fmt.Errorf("agent %s: establish session: %w", a.opts.Name, err)
	}
	defer a.sess.Close()

	a.running.Store(true)
	defer a.running.Store(false)

	for {
		if ctx.Err() != nil {
			a.logger.Info("agent stopping")
			return nil
		}

		worked, err := a.runOnce(ctx)
		if err != nil {
			a.logger.Error("batch cycle failed, backing off", zap.Error(err))
			sleepCtx(ctx, a.opts.PollInterval)
			continue
		}
		if !worked {
			sleepCtx(ctx, a.opts.PollInterval)
		}
	}
}

// runOnce fetches and processes one batch. It reports whether any leads were
// found, and converts panics from the automation layer into ordinary errors
// so the loop can never die.
func (a *Agent) runOnce(ctx context.Context) (worked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch cycle panic: %v", r)
		}
	}()

	leads, err := a.store.FetchBatch(ctx, a.opts.Campuses, a.seen.snapshot(), a.opts.BatchSize)
	if err != nil {
		return false, err
	}
	if len(leads) == 0 {
		return false, nil
	}

	a.logger.Info("processing batch", zap.Int("leads", len(leads)))
	var records []models.LeadStatus
	for _, lead := range leads {
		if ctx.Err() != nil {
			break
		}

		rec := a.proc.Process(ctx, a.sess, lead)
		// Every fetched lead is remembered, even skipped ones, so it can
		// never be fetched again by this run.
		a.seen.add(lead.Phone)
		a.processed.Add(1)
		if rec != nil {
			a.seen.add("+" + rec.Phone)
			records = append(records, *rec)
		}
	}

	if len(records) > 0 {
		if err := a.store.AppendStatuses(ctx, records); err != nil {
			// The store already retried; losing one batch is logged, not fatal.
			a.logger.Error("giving up on status batch", zap.Error(err), zap.Int("records", len(records)))
		} else {
			sent := 0
			for _, r := range records {
				if r.Status == models.OutcomeSent {
					sent++
				}
			}
			a.logger.Info("batch complete", zap.Int("sent", sent), zap.Int("records", len(records)))
		}
	}
	return true, nil
}

// dedupSet remembers every phone attempted during this run, in both its raw
// and normalized spelling. Grows monotonically, dies with the process;
// restart safety is the store's exclusion query plus the tolerance of a rare
// duplicate contact.
type dedupSet struct {
	mu     sync.Mutex
	phones map[string]struct{}
}

func newDedupSet() *dedupSet {
	return &dedupSet{phones: make(map[string]struct{})}
}

func (d *dedupSet) add(phone string) {
	if phone == "" {
		return
	}
	d.mu.Lock()
	d.phones[phone] = struct{}{}
	d.mu.Unlock()
}

func (d *dedupSet) has(phone string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.phones[phone]
	return ok
}

func (d *dedupSet) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.phones))
	for p := range d.phones {
		out = append(out, p)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
