package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"whatsapp-salesbot/internal/models"
	"whatsapp-salesbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu       sync.Mutex
	batches  [][]models.Lead
	fetchErr error
	appends  [][]models.LeadStatus
	excludes [][]string
}

func (s *fakeStore) FetchBatch(_ context.Context, _ []string, exclude []string, _ int) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excludes = append(s.excludes, exclude)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

func (s *fakeStore) AppendStatuses(_ context.Context, records []models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, records)
	return nil
}

// fakeProc returns Sent for normalizable phones and nil otherwise, mirroring
// the real processor's skip contract.
type fakeProc struct {
	mu        sync.Mutex
	processed []string
}

func (p *fakeProc) Process(_ context.Context, _ session.Session, lead models.Lead) *models.LeadStatus {
	p.mu.Lock()
	p.processed = append(p.processed, lead.Phone)
	p.mu.Unlock()
	if len(lead.Phone) < 10 {
		return nil
	}
	return &models.LeadStatus{
		LeadName: lead.FirstName,
		Phone:    lead.Phone[1:], // normalized form drops the plus
		Status:   models.OutcomeSent,
		Campus:   lead.CampusOrNone(),
	}
}

type stubSession struct {
	establishErr error
}

func (s *stubSession) Establish(context.Context, time.Duration) error { return s.establishErr }
func (s *stubSession) OpenComposer(context.Context) error             { return nil }
func (s *stubSession) LocateAndOpen(context.Context, string) error    { return nil }
func (s *stubSession) Submit(context.Context, string) error           { return nil }
func (s *stubSession) Reset(context.Context)                          {}
func (s *stubSession) CaptureDiagnostic(context.Context) []byte       { return nil }
func (s *stubSession) Close() error                                   { return nil }

func lead(phone string) models.Lead {
	return models.Lead{Phone: phone, FirstName: "X", Program: "MD", Owner: "System"}
}

func TestRunOncePersistsBatchOnce(t *testing.T) {
	st := &fakeStore{batches: [][]models.Lead{{
		lead("+15550000001"),
		lead("bad"), // unnormalizable: processed but yields no record
		lead("+15550000003"),
	}}}
	proc := &fakeProc{}
	a := New(Options{Name: "Bot1", Campuses: []string{"Georgetown"}}, st, proc, &stubSession{}, zap.NewNop())

	worked, err := a.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	require.Len(t, st.appends, 1, "one write per batch")
	assert.Len(t, st.appends[0], 2, "skipped lead produces no record")
	assert.Len(t, proc.processed, 3)
	assert.EqualValues(t, 3, a.Processed())
}

func TestDedupSetMonotonic(t *testing.T) {
	st := &fakeStore{batches: [][]models.Lead{
		{lead("+15550000001")},
		{lead("+15550000001")}, // would be a store bug; the set still holds
	}}
	a := New(Options{Name: "Bot1"}, st, &fakeProc{}, &stubSession{}, zap.NewNop())

	_, err := a.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, a.seen.has("+15550000001"))

	_, err = a.runOnce(context.Background())
	require.NoError(t, err)

	// The second fetch saw the first batch's phones in its exclusion set.
	require.Len(t, st.excludes, 2)
	assert.Empty(t, st.excludes[0])
	assert.Contains(t, st.excludes[1], "+15550000001")
}

func TestRunOnceSkippedLeadStillExcluded(t *testing.T) {
	st := &fakeStore{batches: [][]models.Lead{{lead("bad")}}}
	a := New(Options{Name: "Bot1"}, st, &fakeProc{}, &stubSession{}, zap.NewNop())

	_, err := a.runOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, a.seen.has("bad"), "unnormalizable leads must not be refetched forever")
	assert.Empty(t, st.appends)
}

func TestRunOnceFetchError(t *testing.T) {
	st := &fakeStore{fetchErr: errors.New("db down")}
	a := New(Options{Name: "Bot1"}, st, &fakeProc{}, &stubSession{}, zap.NewNop())

	worked, err := a.runOnce(context.Background())
	assert.Error(t, err)
	assert.False(t, worked)
}

func TestRunOnceRecoversPanic(t *testing.T) {
	st := &fakeStore{batches: [][]models.Lead{{lead("+15550000001")}}}
	a := New(Options{Name: "Bot1"}, st, panicProc{}, &stubSession{}, zap.NewNop())

	worked, err := a.runOnce(context.Background())
	assert.False(t, worked)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

type panicProc struct{}

func (panicProc) Process(context.Context, session.Session, models.Lead) *models.LeadStatus {
	panic("element went stale")
}

func TestRunFailsWhenSessionNeverReady(t *testing.T) {
	sess := &stubSession{establishErr: session.ErrNotReady}
	a := New(Options{Name: "Bot1"}, &fakeStore{}, &fakeProc{}, sess, zap.NewNop())

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrNotReady)
	assert.False(t, a.Running())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := &fakeStore{}
	a := New(Options{Name: "Bot1", PollInterval: 10 * time.Millisecond}, st, &fakeProc{}, &stubSession{}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.True(t, a.Running())
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop after cancel")
	}
	assert.False(t, a.Running())
}
