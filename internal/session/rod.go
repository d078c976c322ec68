package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const whatsappURL = "https://web.whatsapp.com"

// Entry points for the new-chat affordance. WhatsApp Web ships several
// equivalent controls and renames them between releases, so all are tried.
var newChatSelectors = []string{
	`div[title="New chat"]`,
	`button[aria-label="New chat"]`,
	`span[data-icon="new-chat-outline"]`,
}

// The search box and the message composer are both contenteditable divs,
// distinguished only by their data-tab attribute.
const searchBoxSelector = `div[contenteditable="true"][data-tab="3"]`

var composerSelectors = []string{
	`div[contenteditable="true"][data-tab="10"]`,
	`div[title="Type a message"]`,
	`span[data-icon="clip"]`,
}

const qrCodeSelector = `canvas[aria-label="Scan me!"]`

// RodOptions configures the browser behind one WhatsApp Web session.
type RodOptions struct {
	ProfileDir string // one Chrome profile per bot keeps logins separate
	BrowserBin string
	Headless   bool
}

// RodSession drives WhatsApp Web through a dedicated browser instance.
// It implements Session. All methods must be called from a single goroutine;
// the page has one focus and one composer.
type RodSession struct {
	opts    RodOptions
	logger  *zap.Logger
	browser *rod.Browser
	page    *rod.Page
}

func NewRod(opts RodOptions, logger *zap.Logger) *RodSession {
	return &RodSession{opts: opts, logger: logger}
}

// Establish launches the browser, loads WhatsApp Web and waits for the app
// to be usable. A visible QR code gets an extended grace period for a human
// to pair the device; if it never disappears the session is not ready.
func (s *RodSession) Establish(ctx context.Context, timeout time.Duration) error {
	l := launcher.New().
		UserDataDir(s.opts.ProfileDir).
		Headless(s.opts.Headless).
		Leakless(false)
	if s.opts.BrowserBin != "" {
		l = l.Bin(s.opts.BrowserBin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: launch browser: %v", ErrNotReady, err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("%w: connect browser: %v", ErrNotReady, err)
	}
	s.browser = browser

	page, err := browser.Page(proto.TargetCreateTarget{URL: whatsappURL})
	if err != nil {
		s.Close()
		return fmt.Errorf("%w: open page: %v", ErrNotReady, err)
	}
	s.page = page

	if _, err := page.Timeout(timeout).Element("#app"); err != nil {
		s.Close()
		return fmt.Errorf("%w: app shell never appeared: %v", ErrNotReady, err)
	}

	if qr, err := page.Timeout(5 * time.Second).Element(qrCodeSelector); err == nil && qr != nil {
		s.logger.Warn("QR code shown, waiting for device pairing")
		if err := s.waitForPairing(ctx, timeout); err != nil {
			s.Close()
			return err
		}
	}

	// Let the chat list settle before driving the UI.
	s.sleep(ctx, 3*time.Second)
	s.logger.Info("WhatsApp Web session established")
	return nil
}

func (s *RodSession) waitForPairing(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.page.Timeout(2 * time.Second).Element(qrCodeSelector); err != nil {
			return nil // QR gone, pairing complete
		}
		s.sleep(ctx, 2*time.Second)
	}
	return fmt.Errorf("%w: QR code was never scanned", ErrNotReady)
}

func (s *RodSession) OpenComposer(ctx context.Context) error {
	for _, sel := range newChatSelectors {
		el, err := s.page.Context(ctx).Timeout(3 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			continue
		}
		s.sleep(ctx, time.Second)
		return nil
	}
	return fmt.Errorf("%w: no new-chat entry point", ErrNotFound)
}

func (s *RodSession) LocateAndOpen(ctx context.Context, phone string) error {
	box, err := s.page.Context(ctx).Timeout(5 * time.Second).Element(searchBoxSelector)
	if err != nil {
		return fmt.Errorf("search box missing: %w", err)
	}

	if err := box.SelectAllText(); err == nil {
		_ = s.page.Keyboard.Press(input.Backspace)
	}
	if err := box.Input(phone); err != nil {
		return fmt.Errorf("type phone: %w", err)
	}
	s.sleep(ctx, 3*time.Second)

	if err := s.page.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	s.sleep(ctx, 2*time.Second)

	// A composing surface proves the conversation actually opened.
	for _, sel := range composerSelectors {
		if el, err := s.page.Context(ctx).Timeout(time.Second).Element(sel); err == nil {
			if visible, err := el.Visible(); err == nil && visible {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no conversation for %s", ErrNotFound, phone)
}

func (s *RodSession) Submit(ctx context.Context, text string) error {
	box, err := s.page.Context(ctx).Timeout(15 * time.Second).Element(composerSelectors[0])
	if err != nil {
		return fmt.Errorf("%w: composer missing: %v", ErrSendFailed, err)
	}

	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("%w: focus composer: %v", ErrSendFailed, err)
	}
	if err := box.Input(text); err != nil {
		return fmt.Errorf("%w: type message: %v", ErrSendFailed, err)
	}
	s.sleep(ctx, time.Second)

	if err := s.page.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("%w: submit: %v", ErrSendFailed, err)
	}
	s.sleep(ctx, 2*time.Second)
	return nil
}

func (s *RodSession) Reset(ctx context.Context) {
	if s.page == nil {
		return
	}
	_ = s.page.Context(ctx).Keyboard.Press(input.Escape)
	s.sleep(ctx, time.Second)
}

func (s *RodSession) CaptureDiagnostic(ctx context.Context) []byte {
	if s.page == nil {
		return nil
	}
	shot, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		s.logger.Debug("screenshot failed", zap.Error(err))
		return nil
	}
	return shot
}

// KeepAlive pokes the page so the platform does not treat the session as
// idle. Failures are reported but never acted on.
func (s *RodSession) KeepAlive(ctx context.Context) error {
	if s.page == nil {
		return nil
	}
	_, err := s.page.Context(ctx).Eval(`() => document.title`)
	return err
}

func (s *RodSession) Close() error {
	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	s.page = nil
	return err
}

func (s *RodSession) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var _ Session = (*RodSession)(nil)
