package timeline

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/devrev/tablecore/internal/clock"
	"github.com/devrev/tablecore/internal/model"
)

// secondsLayout covers yyyyMMddHHmmss; milliseconds are appended separately so the
// result keeps a fixed width of 17 digits
const secondsLayout = "20060102150405"

// FormatInstantTime renders t in UTC as a 17-digit instant timestamp
func FormatInstantTime(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%03d", t.Format(secondsLayout), t.Nanosecond()/int(time.Millisecond))
}

// ParseInstantTime parses a 17-digit instant timestamp as UTC
func ParseInstantTime(ts string) (time.Time, error) {
	if !model.IsValidInstantTime(ts) {
		return time.Time{}, fmt.Errorf("invalid instant time %q", ts)
	}
	t, err := time.ParseInLocation(secondsLayout, ts[:14], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse instant time %q: %w", ts, err)
	}
	millis, err := strconv.Atoi(ts[14:])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse instant millis %q: %w", ts, err)
	}
	return t.Add(time.Duration(millis) * time.Millisecond), nil
}

// InstantTimeGenerator hands out strictly increasing instant timestamps
type InstantTimeGenerator struct {
	mu    sync.Mutex
	clock clock.Clock
	last  time.Time
}

// NewInstantTimeGenerator creates a generator; lastInstant seeds the lower bound and may be empty
func NewInstantTimeGenerator(c clock.Clock, lastInstant string) (*InstantTimeGenerator, error) {
	g := &InstantTimeGenerator{clock: c}
	if lastInstant != "" {
		t, err := ParseInstantTime(lastInstant)
		if err != nil {
			return nil, err
		}
		g.last = t
	}
	return g, nil
}

// Next returns a timestamp later than every one returned before. When the clock has
// not moved past the previous value the result is bumped by one millisecond.
func (g *InstantTimeGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UTC().Truncate(time.Millisecond)
	if !now.After(g.last) {
		now = g.last.Add(time.Millisecond)
	}
	g.last = now
	return FormatInstantTime(now)
}

// Observe raises the lower bound to ts, used after loading instants created by another
// process. An unparsable ts leaves the bound unchanged and is returned as an error.
func (g *InstantTimeGenerator) Observe(ts string) error {
	t, err := ParseInstantTime(ts)
	if err != nil {
		return err
	}
	g.mu.Lock()
	if t.After(g.last) {
		g.last = t
	}
	g.mu.Unlock()
	return nil
}

// Elapsed returns to - from for two instant timestamps
func Elapsed(from, to string) (time.Duration, error) {
	f, err := ParseInstantTime(from)
	if err != nil {
		return 0, err
	}
	t, err := ParseInstantTime(to)
	if err != nil {
		return 0, err
	}
	return t.Sub(f), nil
}
