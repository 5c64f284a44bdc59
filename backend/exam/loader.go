package exam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"examhub/backend/utils"
)

type LoadedTest struct {
	Test      Test
	Questions []Question
	// Dropped counts questions rejected by validation.
	Dropped int
	Budget  time.Duration
}

func (lt *LoadedTest) Question(id uint) (Question, bool) {
	for _, q := range lt.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

type Loader struct {
	store Store
}

func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

func (l *Loader) Load(ctx context.Context, testID uint) (*LoadedTest, error) {
	log := utils.WithContext(ctx).WithField("test_id", testID)

	test, err := l.store.FetchTest(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("test %d: %w", testID, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch test %d: %w", testID, err)
	}

	raw, err := l.store.FetchQuestionsForTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("fetch questions for test %d: %w", testID, err)
	}

	loaded := &LoadedTest{
		Test:      *test,
		Questions: make([]Question, 0, len(raw)),
		Budget:    BudgetFor(*test),
	}
	for _, q := range raw {
		if err := ValidateQuestion(q); err != nil {
			log.WithField("question_id", q.ID).Warnf("Dropping invalid question: %v", err)
			loaded.Dropped++
			continue
		}
		loaded.Questions = append(loaded.Questions, q)
	}

	if len(loaded.Questions) == 0 {
		return nil, fmt.Errorf("test %d (%d dropped): %w", testID, loaded.Dropped, ErrEmptyTest)
	}
	if loaded.Dropped > 0 {
		log.Warnf("Loaded test with %d invalid questions dropped", loaded.Dropped)
	}
	return loaded, nil
}

// BudgetFor prefers the explicit time limit, then the duration, then DefaultBudget.
func BudgetFor(t Test) time.Duration {
	if t.TimeLimitMinutes != nil && *t.TimeLimitMinutes > 0 {
		return time.Duration(*t.TimeLimitMinutes) * time.Minute
	}
	if t.DurationMinutes > 0 {
		return time.Duration(t.DurationMinutes) * time.Minute
	}
	return DefaultBudget
}

func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return errors.New("empty text")
	}
	if len(q.Options) == 0 {
		return errors.New("no options")
	}
	for i, opt := range q.Options {
		if OptionValue(opt) == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("correct option %d out of range", q.CorrectOption)
	}
	return nil
}
