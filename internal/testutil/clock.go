package testutil

import (
	"sync"
	"time"

	"github.com/sejongpeer/studybuddy/internal/clock"
)

// FakeClock is a manually advanced clock.Clock for tests.
//
// Tickers created from it only fire when Advance moves time past their next
// deadline. Like time.Ticker, a ticker whose channel is still full drops the
// tick rather than blocking.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock creates a fake clock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to t without firing tickers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves time forward by d and fires every ticker that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for _, tk := range c.tickers {
		if tk.stopped {
			continue
		}
		fired := false
		for !tk.next.After(c.now) {
			if !fired {
				select {
				case tk.ch <- tk.next:
				default:
				}
				fired = true
			}
			tk.next = tk.next.Add(tk.period)
		}
	}
}

// NewTicker creates a ticker that fires every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) clock.Ticker {
	if d <= 0 {
		panic("testutil: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tk := &fakeTicker{
		clock:  c,
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers = append(c.tickers, tk)
	return tk
}

// Tickers returns how many live tickers exist. Tests use it to wait until
// goroutines under test have created theirs.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, tk := range c.tickers {
		if !tk.stopped {
			n++
		}
	}
	return n
}

// WaitForTickers polls until at least n live tickers exist or timeout passes.
func (c *FakeClock) WaitForTickers(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Tickers() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.Tickers() >= n
}

type fakeTicker struct {
	clock   *FakeClock
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
