package exam

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type AutosaveConfig struct {
	// Debounce is the idle time after the last change before a flush.
	Debounce time.Duration
	// MaxDelay bounds how long a change may wait while answers keep arriving.
	MaxDelay time.Duration
	// Retries is the number of write attempts per flush.
	Retries int
	Backoff time.Duration
}

func DefaultAutosaveConfig() AutosaveConfig {
	return AutosaveConfig{
		Debounce: 2 * time.Second,
		MaxDelay: 10 * time.Second,
		Retries:  3,
		Backoff:  200 * time.Millisecond,
	}
}

func (c AutosaveConfig) withDefaults() AutosaveConfig {
	d := DefaultAutosaveConfig()
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.MaxDelay < c.Debounce {
		c.MaxDelay = c.Debounce
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	if c.Backoff <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}

type flushFunc func(ctx context.Context, answers Answers) error

// Autosaver coalesces answer changes and writes the latest full answer map
// after a short idle period. A change is never held longer than MaxDelay.
type Autosaver struct {
	cfg   AutosaveConfig
	flush flushFunc
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pending    Answers
	seq        uint64
	firstQueue time.Time
	timer      *time.Timer
	closed     bool

	writeMu     sync.Mutex
	lastWritten uint64

	unsaved atomic.Bool
}

func NewAutosaver(cfg AutosaveConfig, flush flushFunc, log *logrus.Entry) *Autosaver {
	ctx, cancel := context.WithCancel(context.Background())
	return &Autosaver{
		cfg:    cfg.withDefaults(),
		flush:  flush,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue schedules answers to be written. It never blocks on I/O.
func (a *Autosaver) Enqueue(answers Answers) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	now := time.Now()
	if a.pending == nil {
		a.firstQueue = now
	}
	a.pending = answers
	a.seq++

	delay := a.cfg.Debounce
	if waited := now.Sub(a.firstQueue); waited+delay > a.cfg.MaxDelay {
		delay = a.cfg.MaxDelay - waited
		if delay < 0 {
			delay = 0
		}
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(delay, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	if a.closed || a.pending == nil {
		a.mu.Unlock()
		return
	}
	answers, seq := a.pending, a.seq
	a.pending = nil
	a.mu.Unlock()

	a.write(seq, answers)
}

// Flush writes anything pending now, in the caller's goroutine.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	a.fire()
}

func (a *Autosaver) write(seq uint64, answers Answers) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if seq <= a.lastWritten {
		return
	}

	backoff := a.cfg.Backoff
	var err error
	for i := 0; i < a.cfg.Retries; i++ {
		if i > 0 {
			select {
			case <-a.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = a.flush(a.ctx, answers)
		if err == nil {
			a.lastWritten = seq
			a.unsaved.Store(false)
			return
		}
		if errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, context.Canceled) {
			return
		}
		a.log.WithError(err).Debugf("Autosave attempt %d failed", i+1)
	}

	a.unsaved.Store(true)
	a.log.WithError(err).Warn("Autosave gave up after retries")
}

// Unsaved reports whether the last flush exhausted its retries.
func (a *Autosaver) Unsaved() bool { return a.unsaved.Load() }

// Discard drops pending changes but keeps the queue usable.
func (a *Autosaver) Discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = nil
}

// Close drops pending changes and abandons an in-flight write without waiting.
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = nil
	a.mu.Unlock()
	a.cancel()
}
