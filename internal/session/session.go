// Package session wraps the WhatsApp Web conversation surface. One session
// holds one composer at a time, so callers must never interleave leads on
// the same session.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotReady means the surface never became usable within the
	// establishment timeout (first-time pairing not completed, page dead).
	ErrNotReady = errors.New("session not ready")

	// ErrNotFound is the explicit "target does not exist" signal from the
	// surface: no new-chat entry point, or no conversation for the number.
	ErrNotFound = errors.New("target not found")

	// ErrSendFailed is the explicit submission failure signal.
	ErrSendFailed = errors.New("send failed")
)

// Session drives one outbound messaging surface. Implementations return the
// sentinel errors above for expected failure signals; any other error is an
// unexpected breakage of the surface itself.
type Session interface {
	// Establish blocks until the surface is ready or the timeout elapses.
	Establish(ctx context.Context, timeout time.Duration) error

	// OpenComposer opens the new-contact affordance, trying every known
	// entry point before giving up with ErrNotFound.
	OpenComposer(ctx context.Context) error

	// LocateAndOpen searches for phone and opens its conversation,
	// verifying that a composing surface is present.
	LocateAndOpen(ctx context.Context, phone string) error

	// Submit sends text through the open conversation.
	Submit(ctx context.Context, text string) error

	// Reset returns the surface to a neutral view. Best-effort, always safe
	// to call.
	Reset(ctx context.Context)

	// CaptureDiagnostic snapshots the surface state. Returns nil when
	// capture is not possible; callers must treat that as normal.
	CaptureDiagnostic(ctx context.Context) []byte

	Close() error
}
