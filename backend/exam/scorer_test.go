package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourQuestions() []Question {
	qs := make([]Question, 4)
	for i := range qs {
		qs[i] = Question{ID: uint(i + 1), Text: "q", Options: []string{"a", "b", "c"}, CorrectOption: 1}
	}
	return qs
}

func TestScore_Percentage(t *testing.T) {
	res := Score(SchemePercentage, fourQuestions(), Answers{1: 1, 2: 1, 3: 1})

	assert.Equal(t, SchemePercentage, res.Scheme)
	assert.InDelta(t, 75.0, res.Score, 1e-9)
	assert.Equal(t, 3, res.Correct)
	assert.Equal(t, 0, res.Wrong)
	assert.Equal(t, 1, res.Unattempted)
	assert.Equal(t, 4, res.Total)
}

func TestScore_Weighted(t *testing.T) {
	res := Score(SchemeWeighted, fourQuestions(), Answers{1: 1, 2: 1, 3: 2})

	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 1, res.Wrong)
	assert.Equal(t, 1, res.Unattempted)
	assert.InDelta(t, 16.0, res.TotalMarks, 1e-9)
	assert.InDelta(t, 7.0, res.ScoredMarks, 1e-9)
	assert.InDelta(t, 43.75, res.Score, 1e-9)
}

func TestScore_WeightedPerQuestionMarks(t *testing.T) {
	two, half := 2.0, 0.5
	qs := fourQuestions()
	qs[0].Marks = &two
	qs[1].NegativeMarks = &half

	res := Score(SchemeWeighted, qs, Answers{1: 1, 2: 0})
	assert.InDelta(t, 14.0, res.TotalMarks, 1e-9)
	assert.InDelta(t, 1.5, res.ScoredMarks, 1e-9)
}

func TestScore_WeightedNeverNegative(t *testing.T) {
	res := Score(SchemeWeighted, fourQuestions(), Answers{1: 0, 2: 0, 3: 0, 4: 0})

	assert.InDelta(t, -4.0, res.ScoredMarks, 1e-9)
	assert.Equal(t, 0.0, res.Score)
}

func TestScore_UnknownSchemeFallsBackToPercentage(t *testing.T) {
	res := Score("", fourQuestions(), Answers{1: 1})
	assert.Equal(t, SchemePercentage, res.Scheme)
	assert.InDelta(t, 25.0, res.Score, 1e-9)
}

func TestScore_IgnoresAnswersOutsideTest(t *testing.T) {
	res := Score(SchemePercentage, fourQuestions(), Answers{1: 1, 99: 0})
	assert.Equal(t, 1, res.Correct)
	assert.Equal(t, 0, res.Wrong)
	assert.Equal(t, 3, res.Unattempted)
}

func TestScore_Invariants(t *testing.T) {
	qs := fourQuestions()
	cases := []Answers{
		{},
		{1: 1},
		{1: 0, 2: 1},
		{1: 1, 2: 1, 3: 1, 4: 1},
		{1: 2, 2: 2, 3: 2, 4: 2},
	}
	for _, scheme := range []Scheme{SchemePercentage, SchemeWeighted} {
		for _, answers := range cases {
			res := Score(scheme, qs, answers)
			assert.Equal(t, res.Total, res.Correct+res.Wrong+res.Unattempted)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 100.0)
			assert.Equal(t, res, Score(scheme, qs, answers))
		}
	}
}

func TestScore_EmptyTest(t *testing.T) {
	res := Score(SchemeWeighted, nil, Answers{})
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, 0, res.Total)
}

func TestParseScheme(t *testing.T) {
	s, err := ParseScheme("weighted")
	require.NoError(t, err)
	assert.Equal(t, SchemeWeighted, s)

	_, err = ParseScheme("curve")
	assert.Error(t, err)
}
