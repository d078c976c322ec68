// Package notify delivers operator-facing email: error alerts with a
// session screenshot and the daily outcome report. Delivery is always
// best-effort; a broken mail path must never become a second failure source.
package notify

import (
	"context"
	"fmt"
	"io"
	"time"

	"whatsapp-salesbot/internal/report"
	"whatsapp-salesbot/internal/store"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// ErrorEvent describes one failed contact attempt.
type ErrorEvent struct {
	Bot        string
	LeadName   string
	Phone      string
	Program    string
	Status     string
	Err        error
	Screenshot []byte // optional diagnostic capture
}

// Mailer sends notifications over SMTP.
type Mailer struct {
	dialer  *gomail.Dialer
	sender  string
	errorTo string
	dailyTo string
	timeout time.Duration
	logger  *zap.Logger
}

func NewMailer(host string, port int, username, password, sender, errorTo, dailyTo string, logger *zap.Logger) *Mailer {
	return &Mailer{
		dialer:  gomail.NewDialer(host, port, username, password),
		sender:  sender,
		errorTo: errorTo,
		dailyTo: dailyTo,
		timeout: 15 * time.Second,
		logger:  logger,
	}
}

// NotifyError emails an alert for a failed attempt. Errors are logged and
// swallowed; the call never blocks the caller beyond the mail timeout.
func (m *Mailer) NotifyError(ctx context.Context, ev ErrorEvent) {
	if m.errorTo == "" {
		return
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.sender, "WhatsApp Sales Bot"))
	msg.SetHeader("To", m.errorTo)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] Contact attempt failed: %s", ev.Bot, ev.Status))
	msg.SetBody("text/html", errorHTML(ev))

	if len(ev.Screenshot) > 0 {
		shot := ev.Screenshot
		msg.Attach("screenshot.png", gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(shot)
			return err
		}))
	}

	m.send(ctx, msg)
}

// NotifyDailyReport emails the per-campus outcome summary.
func (m *Mailer) NotifyDailyReport(ctx context.Context, rows []store.AggregateRow) {
	if m.dailyTo == "" || len(rows) == 0 {
		return
	}

	summary := report.Build(rows)
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.sender, "WhatsApp Sales Bot"))
	msg.SetHeader("To", m.dailyTo)
	msg.SetHeader("Subject", fmt.Sprintf("Daily outreach report — %s", time.Now().Format("2006-01-02")))
	msg.SetBody("text/html", report.RenderHTML(summary, time.Now()))

	m.send(ctx, msg)
}

// send runs delivery in a goroutine so a slow SMTP server cannot stall a
// bot's lead loop past the timeout.
func (m *Mailer) send(ctx context.Context, msg *gomail.Message) {
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	t := time.NewTimer(m.timeout)
	defer t.Stop()
	select {
	case err := <-done:
		if err != nil {
			m.logger.Error("email delivery failed", zap.Error(err))
		}
	case <-t.C:
		m.logger.Warn("email delivery timed out")
	case <-ctx.Done():
	}
}

func errorHTML(ev ErrorEvent) string {
	detail := ""
	if ev.Err != nil {
		detail = ev.Err.Error()
	}
	return fmt.Sprintf(`<html><body style="font-family: Arial, sans-serif;">
<h2 style="color: #d32f2f;">WhatsApp Bot Error</h2>
<div style="background: #f5f5f5; padding: 15px; border-radius: 5px;">
<p><strong>Time:</strong> %s</p>
<p><strong>Bot:</strong> %s</p>
<p><strong>Lead:</strong> %s</p>
<p><strong>Phone:</strong> %s</p>
<p><strong>Program:</strong> %s</p>
<p><strong>Status:</strong> %s</p>
</div>
<pre style="background: #f4f4f4; padding: 15px; border-left: 4px solid #d32f2f;">%s</pre>
</body></html>`,
		time.Now().Format("2006-01-02 15:04:05"),
		ev.Bot, ev.LeadName, ev.Phone, ev.Program, ev.Status, detail)
}
