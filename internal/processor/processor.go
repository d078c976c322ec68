// Package processor runs the per-lead state machine: open a composer, locate
// the contact, submit the rendered message, and classify the attempt into
// exactly one terminal outcome.
package processor

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"whatsapp-salesbot/internal/message"
	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/notify"
	"whatsapp-salesbot/internal/session"

	"go.uber.org/zap"
)

// maxAttempts bounds full-sequence retries. Only unexpected errors consume
// an attempt; explicit NotFound / Failed-Send signals are final immediately.
const maxAttempts = 2

// retryPause separates the two attempts, giving a glitching surface a moment
// to recover.
const retryPause = 5 * time.Second

// ErrorNotifier receives failed-attempt alerts. Implementations must be
// best-effort and must not block beyond a short timeout.
type ErrorNotifier interface {
	NotifyError(ctx context.Context, ev notify.ErrorEvent)
}

// Options tune one processor instance.
type Options struct {
	Bot           string
	CountryPrefix string
	DelayMin      time.Duration // pacing delay range between leads
	DelayMax      time.Duration
}

// Processor classifies contact attempts. One instance serves one bot.
type Processor struct {
	formatter *message.Formatter
	notifier  ErrorNotifier
	opts      Options
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

func New(formatter *message.Formatter, notifier ErrorNotifier, opts Options, logger *zap.Logger) *Processor {
	return &Processor{
		formatter: formatter,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Process drives one lead to a terminal outcome and returns its status
// record. A nil return means the phone could not be normalized and the lead
// is skipped without a record. The session is always reset and the pacing
// delay always applied, whatever the outcome.
func (p *Processor) Process(ctx context.Context, sess session.Session, lead models.Lead) *models.LeadStatus {
	phone, ok := message.NormalizePhone(lead.Phone, p.opts.CountryPrefix)
	if !ok {
		p.logger.Debug("skipping lead with unusable phone", zap.String("raw", lead.Phone))
		return nil
	}

	name := lead.FirstName
	if name == "" {
		name = "Student"
	}
	program := lead.Program
	if program == "" {
		program = "Unknown"
	}

	status := models.OutcomePending
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, err := p.attempt(ctx, sess, name, program, phone)
		if err == nil {
			status = outcome
			break
		}

		lastErr = err
		p.logger.Error("attempt failed",
			zap.Int("attempt", attempt),
			zap.String("phone", phone),
			zap.Error(err))
		if attempt == maxAttempts {
			status = models.OutcomeError
		} else {
			p.sleep(ctx, retryPause)
		}
	}

	sess.Reset(ctx)
	p.pace(ctx)

	if status != models.OutcomeSent && p.notifier != nil {
		p.notifier.NotifyError(ctx, notify.ErrorEvent{
			Bot:        p.opts.Bot,
			LeadName:   name,
			Phone:      phone,
			Program:    program,
			Status:     status.String(),
			Err:        lastErr,
			Screenshot: sess.CaptureDiagnostic(ctx),
		})
	}

	return &models.LeadStatus{
		LeadName: name,
		Phone:    strings.TrimPrefix(phone, "+"),
		Program:  program,
		Owner:    lead.Owner,
		Campus:   lead.CampusOrNone(),
		Status:   status,
	}
}

// attempt runs one full OpenComposer -> LocateAndOpen -> Submit sequence.
// Explicit failure signals come back as a terminal outcome with a nil error;
// anything else is an unexpected error left to the retry loop.
func (p *Processor) attempt(ctx context.Context, sess session.Session, name, program, phone string) (models.Outcome, error) {
	if err := sess.OpenComposer(ctx); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return models.OutcomeFailedNewChat, nil
		}
		return models.OutcomePending, err
	}

	if err := sess.LocateAndOpen(ctx, phone); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			// Leave no half-open conversation behind for the next lead.
			sess.Reset(ctx)
			return models.OutcomeNotFound, nil
		}
		return models.OutcomePending, err
	}

	text := p.formatter.Format(name, program, phone)
	if err := sess.Submit(ctx, text); err != nil {
		if errors.Is(err, session.ErrSendFailed) {
			return models.OutcomeFailedSend, nil
		}
		return models.OutcomePending, err
	}

	p.logger.Info("message sent", zap.String("name", name), zap.String("program", program))
	return models.OutcomeSent, nil
}

// pace sleeps for a random interval within the configured range. This is the
// outbound rate limit, not an accident.
func (p *Processor) pace(ctx context.Context) {
	if p.opts.DelayMax <= 0 {
		return
	}
	d := p.opts.DelayMin
	if spread := p.opts.DelayMax - p.opts.DelayMin; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	p.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
