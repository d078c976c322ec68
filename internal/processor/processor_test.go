package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-salesbot/internal/message"
	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/notify"
	"whatsapp-salesbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSession scripts per-call results and records the call order.
type fakeSession struct {
	calls []string

	openErrs   []error
	locateErrs []error
	submitErrs []error

	openCount, locateCount, submitCount int
}

func pop(errs []error, n int) error {
	if n < len(errs) {
		return errs[n]
	}
	return nil
}

func (f *fakeSession) Establish(context.Context, time.Duration) error { return nil }

func (f *fakeSession) OpenComposer(context.Context) error {
	f.calls = append(f.calls, "open")
	err := pop(f.openErrs, f.openCount)
	f.openCount++
	return err
}

func (f *fakeSession) LocateAndOpen(context.Context, string) error {
	f.calls = append(f.calls, "locate")
	err := pop(f.locateErrs, f.locateCount)
	f.locateCount++
	return err
}

func (f *fakeSession) Submit(context.Context, string) error {
	f.calls = append(f.calls, "submit")
	err := pop(f.submitErrs, f.submitCount)
	f.submitCount++
	return err
}

func (f *fakeSession) Reset(context.Context) { f.calls = append(f.calls, "reset") }

func (f *fakeSession) CaptureDiagnostic(context.Context) []byte {
	f.calls = append(f.calls, "capture")
	return []byte("shot")
}

func (f *fakeSession) Close() error { return nil }

type fakeNotifier struct {
	events []notify.ErrorEvent
}

func (n *fakeNotifier) NotifyError(_ context.Context, ev notify.ErrorEvent) {
	n.events = append(n.events, ev)
}

func newTestProcessor(t *testing.T, n ErrorNotifier) *Processor {
	t.Helper()
	f, err := message.NewFormatter(map[string]string{"Default": "Hi {name}, about {program}."})
	require.NoError(t, err)
	p := New(f, n, Options{Bot: "Bot1", CountryPrefix: "+1"}, zap.NewNop())
	p.sleep = func(context.Context, time.Duration) {} // no pacing in tests
	return p
}

func testLead() models.Lead {
	campus := "Georgetown"
	return models.Lead{
		Phone:     "(555) 123-4567",
		FirstName: "Ana",
		Program:   "Doctor of Medicine",
		Owner:     "System",
		Campus:    &campus,
	}
}

func TestProcessUnnormalizablePhoneSkips(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{}

	lead := testLead()
	lead.Phone = "n/a"
	rec := p.Process(context.Background(), sess, lead)

	assert.Nil(t, rec)
	assert.Empty(t, sess.calls, "session must not be touched for a skipped lead")
	assert.Empty(t, n.events)
}

func TestProcessSent(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeSent, rec.Status)
	assert.Equal(t, "15551234567", rec.Phone, "persisted phone carries no plus")
	assert.Equal(t, "Georgetown", rec.Campus)
	assert.Equal(t, 1, sess.submitCount)
	assert.Empty(t, n.events, "success never alerts")
}

func TestProcessNotFoundResetsBeforeReturning(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{locateErrs: []error{session.ErrNotFound}}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeNotFound, rec.Status)
	assert.Equal(t, 1, sess.locateCount, "explicit NotFound is not retried")
	assert.Equal(t, []string{"open", "locate", "reset", "reset", "capture"}, sess.calls)
}

func TestProcessFailedSendNotRetried(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{submitErrs: []error{session.ErrSendFailed}}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeFailedSend, rec.Status)
	assert.Equal(t, 1, sess.submitCount)
	require.Len(t, n.events, 1)
	assert.Equal(t, "Failed-Send", n.events[0].Status)
}

func TestProcessComposerExhausted(t *testing.T) {
	p := newTestProcessor(t, &fakeNotifier{})
	sess := &fakeSession{openErrs: []error{session.ErrNotFound}}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeFailedNewChat, rec.Status)
}

func TestProcessRetriesUnexpectedErrorOnce(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{submitErrs: []error{errors.New("stale element"), nil}}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeSent, rec.Status)
	assert.Equal(t, 2, sess.submitCount, "exactly one retry")
	assert.Empty(t, n.events)
}

func TestProcessTwoUnexpectedErrorsIsError(t *testing.T) {
	n := &fakeNotifier{}
	p := newTestProcessor(t, n)
	sess := &fakeSession{submitErrs: []error{errors.New("boom"), errors.New("boom again")}}

	rec := p.Process(context.Background(), sess, testLead())

	require.NotNil(t, rec)
	assert.Equal(t, models.OutcomeError, rec.Status)
	assert.Equal(t, 2, sess.submitCount)
	require.Len(t, n.events, 1, "alerted exactly once")
	assert.Equal(t, []byte("shot"), n.events[0].Screenshot)
	assert.ErrorContains(t, n.events[0].Err, "boom again")
}

func TestProcessNeverReturnsPending(t *testing.T) {
	scripts := []*fakeSession{
		{},
		{openErrs: []error{session.ErrNotFound}},
		{locateErrs: []error{session.ErrNotFound}},
		{submitErrs: []error{session.ErrSendFailed}},
		{submitErrs: []error{errors.New("a"), errors.New("b")}},
	}
	for _, sess := range scripts {
		p := newTestProcessor(t, &fakeNotifier{})
		rec := p.Process(context.Background(), sess, testLead())
		require.NotNil(t, rec)
		assert.True(t, rec.Status.IsTerminal())
		assert.NotEqual(t, models.OutcomePending, rec.Status)
	}
}
