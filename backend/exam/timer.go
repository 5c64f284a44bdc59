package exam

import (
	"fmt"
	"sync"
	"time"
)

const TickInterval = time.Second

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Countdown ticks once per second towards a deadline and calls onExpire
// exactly once when it reaches zero. Remaining time is derived from the
// deadline on every tick, so a late or missed tick never stretches the budget.
type Countdown struct {
	deadline  time.Time
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	onExpire  func()

	mu        sync.Mutex
	remaining time.Duration

	fire     sync.Once
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCountdown(deadline time.Time, now func() time.Time, newTicker func(time.Duration) Ticker, onExpire func()) *Countdown {
	if now == nil {
		now = time.Now
	}
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	c := &Countdown{
		deadline:  deadline,
		now:       now,
		newTicker: newTicker,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.remaining = c.compute()
	return c
}

func (c *Countdown) Start() {
	go c.run()
}

func (c *Countdown) run() {
	defer close(c.done)

	t := c.newTicker(TickInterval)
	defer t.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-t.C():
			if c.tick() {
				return
			}
		}
	}
}

// tick reports whether the countdown has finished.
func (c *Countdown) tick() bool {
	select {
	case <-c.stop:
		return true
	default:
	}

	rem := c.compute()
	c.mu.Lock()
	c.remaining = rem
	c.mu.Unlock()

	if rem > 0 {
		return false
	}
	c.fire.Do(func() {
		if c.onExpire != nil {
			c.onExpire()
		}
	})
	return true
}

func (c *Countdown) compute() time.Duration {
	rem := c.deadline.Sub(c.now())
	if rem <= 0 {
		return 0
	}
	// round up so the display only reads 00:00:00 once time is really up
	return (rem + TickInterval - time.Nanosecond).Truncate(TickInterval)
}

// Remaining is the value shown by the last tick.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop ends ticking without waiting for the loop to exit; it is safe to
// call from onExpire and more than once.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed once the ticking goroutine has exited.
func (c *Countdown) Done() <-chan struct{} { return c.done }

// FormatClock renders d as HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}
