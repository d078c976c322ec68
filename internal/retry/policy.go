// Package retry defines the one backoff policy used at every external call
// site: store connect, store writes, session recovery. Keeping it in one
// place stops magic attempt counts from drifting apart.
package retry

import (
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	attempts = 3
	interval = 10 * time.Second
)

// Policy returns a fresh infrastructure backoff: three attempts, ten
// seconds apart. BackOff values are stateful, so callers take a new one per
// operation.
func Policy() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), attempts-1)
}
