package exam

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Store with the same conditional-update rules as
// the database one.
type memStore struct {
	mu        sync.Mutex
	tests     map[uint]Test
	questions map[uint][]Question
	attempts  map[uuid.UUID]Attempt

	completions int
	updateErr   error
	// failUpdates makes the next n UpdateAttempt calls return updateErr.
	failUpdates int
	updateDelay time.Duration
	// beforeComplete runs once, under the lock, ahead of the next
	// completing update. It stands in for a write from another tab.
	beforeComplete func(a *Attempt)
}

func newMemStore() *memStore {
	return &memStore{
		tests:     map[uint]Test{},
		questions: map[uint][]Question{},
		attempts:  map[uuid.UUID]Attempt{},
	}
}

func (m *memStore) addTest(t Test, qs ...Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	m.questions[t.ID] = qs
}

func (m *memStore) FetchTest(_ context.Context, id uint) (*Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *memStore) FetchQuestionsForTest(_ context.Context, testID uint) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Question(nil), m.questions[testID]...), nil
}

func (m *memStore) FetchAttempt(_ context.Context, testID, studentID uint) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.TestID == testID && a.StudentID == studentID {
			out := cloneAttempt(a)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) FetchAttemptByID(_ context.Context, id uuid.UUID) (*Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneAttempt(a)
	return &out, nil
}

func (m *memStore) CreateAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.attempts {
		if existing.TestID == a.TestID && existing.StudentID == a.StudentID {
			return ErrConflict
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	m.attempts[a.ID] = cloneAttempt(*a)
	return nil
}

func (m *memStore) UpdateAttempt(_ context.Context, id uuid.UUID, version int, u AttemptUpdate) (*Attempt, error) {
	if m.updateDelay > 0 {
		time.Sleep(m.updateDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdates > 0 {
		m.failUpdates--
		return nil, m.updateErr
	}

	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if hook := m.beforeComplete; hook != nil && u.Complete != nil {
		m.beforeComplete = nil
		hook(&a)
		m.attempts[id] = a
	}
	if a.Completed() {
		return nil, ErrAlreadyCompleted
	}
	if a.Version != version {
		return nil, ErrConflict
	}

	a.Answers = u.Answers.Clone()
	a.Version++
	if c := u.Complete; c != nil {
		submitted := c.SubmittedAt
		a.Status = StatusCompleted
		a.SubmittedAt = &submitted
		a.Result = c.Result
		a.TotalQuestions = c.Result.Total
		a.TimeTakenSeconds = c.TimeTakenSeconds
		a.SubmittedBy = c.SubmittedBy
		a.Late = c.Late
		m.completions++
	}
	m.attempts[id] = a
	out := cloneAttempt(a)
	return &out, nil
}

func (m *memStore) ListExpiredAttempts(_ context.Context, now time.Time, limit int) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.Status == StatusInProgress && !a.DeadlineAt.After(now) {
			out = append(out, cloneAttempt(a))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) attempt(id uuid.UUID) Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAttempt(m.attempts[id])
}

func (m *memStore) completionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completions
}

func (m *memStore) failNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpdates = n
	m.updateErr = err
}

func cloneAttempt(a Attempt) Attempt {
	a.Answers = a.Answers.Clone()
	return a
}

var errDBDown = errors.New("connection refused")

// fakeClock is a settable clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// manualTicker delivers ticks only when the test sends them.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() { m.once.Do(func() { close(m.stopped) }) }

// Tick blocks until the countdown loop takes the tick or has stopped.
func (m *manualTicker) Tick() {
	select {
	case m.ch <- time.Time{}:
	case <-m.stopped:
	}
}

// tickerFactory hands out manual tickers and remembers them.
type tickerFactory struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (f *tickerFactory) New(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newManualTicker()
	f.tickers = append(f.tickers, t)
	return t
}

func (f *tickerFactory) last() *manualTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

func (m *memStore) editTest(id uint, edit func(t *Test)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tests[id]
	edit(&t)
	m.tests[id] = t
}

func (m *memStore) appendQuestion(testID uint, q Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[testID] = append(m.questions[testID], q)
}
