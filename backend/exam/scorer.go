package exam

import "fmt"

type Scheme string

const (
	// SchemePercentage scores correct/total*100 with no penalty.
	SchemePercentage Scheme = "percentage"
	// SchemeWeighted adds marks per correct answer and deducts negative marks per wrong one.
	SchemeWeighted Scheme = "weighted"
)

const (
	DefaultMarks         = 4.0
	DefaultNegativeMarks = 1.0
)

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemePercentage, SchemeWeighted:
		return Scheme(s), nil
	}
	return "", fmt.Errorf("unknown scoring scheme %q", s)
}

type Result struct {
	Scheme      Scheme  `json:"scheme"`
	Score       float64 `json:"score"`
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	Unattempted int     `json:"unattempted"`
	Total       int     `json:"total"`
	ScoredMarks float64 `json:"scored_marks"`
	TotalMarks  float64 `json:"total_marks"`
}

// Score grades answers against questions. It has no side effects and
// depends only on its arguments.
func Score(scheme Scheme, questions []Question, answers Answers) Result {
	res := Result{Scheme: scheme, Total: len(questions)}

	for _, q := range questions {
		marks, negative := questionMarks(q)
		if scheme == SchemeWeighted {
			res.TotalMarks += marks
		}

		selected, ok := answers[q.ID]
		if !ok {
			res.Unattempted++
			continue
		}
		if selected == q.CorrectOption {
			res.Correct++
			res.ScoredMarks += marks
		} else {
			res.Wrong++
			res.ScoredMarks -= negative
		}
	}

	switch scheme {
	case SchemeWeighted:
		if res.TotalMarks > 0 {
			res.Score = res.ScoredMarks / res.TotalMarks * 100
		}
		if res.Score < 0 {
			res.Score = 0
		}
	default:
		res.Scheme = SchemePercentage
		res.ScoredMarks = float64(res.Correct)
		res.TotalMarks = float64(res.Total)
		if res.Total > 0 {
			res.Score = float64(res.Correct) / float64(res.Total) * 100
		}
	}
	return res
}

func questionMarks(q Question) (marks, negative float64) {
	marks, negative = DefaultMarks, DefaultNegativeMarks
	if q.Marks != nil {
		marks = *q.Marks
	}
	if q.NegativeMarks != nil {
		negative = *q.NegativeMarks
	}
	return marks, negative
}
