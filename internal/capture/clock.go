package capture

import (
	"sort"
	"sync"
	"time"
)

// Clock supplies time and tickers to the engine.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the engine uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is backed by the time package. Its tickers drop fires that land
// while the previous one is still unread.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// ManualClock only moves when Advance is called. Each fire is handed to the
// receiver before Advance continues, so a fire is fully delivered before
// anything the caller does next.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock starts at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("capture: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		c:       make(chan time.Time),
		stopped: make(chan struct{}),
		period:  d,
		next:    c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Tickers reports how many tickers are running.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prune()
	return len(c.tickers)
}

// Advance moves the clock forward by d, firing every ticker deadline passed
// on the way in time order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		c.prune()
		sort.SliceStable(c.tickers, func(i, j int) bool { return c.tickers[i].next.Before(c.tickers[j].next) })
		if len(c.tickers) == 0 || c.tickers[0].next.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		t := c.tickers[0]
		c.now = t.next
		t.next = t.next.Add(t.period)
		now := c.now
		c.mu.Unlock()

		t.fire(now)
	}
}

func (c *ManualClock) prune() {
	live := c.tickers[:0]
	for _, t := range c.tickers {
		if !t.isStopped() {
			live = append(live, t)
		}
	}
	c.tickers = live
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
	period  time.Duration
	next    time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() { t.once.Do(func() { close(t.stopped) }) }

func (t *manualTicker) isStopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

func (t *manualTicker) fire(now time.Time) {
	select {
	case t.c <- now:
	case <-t.stopped:
	}
}
