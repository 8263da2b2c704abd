package dispatch

import (
	"context"
	"time"
)

// SetSleep replaces the poll sleep so tests can count intervals without
// waiting for them.
func SetSleep(d *Dispatcher, sleep func(ctx context.Context, d time.Duration) error) {
	d.sleep = sleep
}
