package scoring

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/model"
)

func mcQuestion(correct int, points int) model.Question {
	return model.Question{
		ID:            uuid.New(),
		QuestionType:  model.QuestionTypeMultipleChoice,
		Options:       json.RawMessage(`["a","b","c"]`),
		CorrectAnswer: json.RawMessage(mustJSON(correct)),
		Points:        points,
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func answer(q model.Question, v any) model.Response {
	return model.Response{ID: uuid.New(), QuestionID: q.ID, Answer: mustJSON(v)}
}

func TestGradeBasicPass(t *testing.T) {
	q1, q2 := mcQuestion(1, 1), mcQuestion(0, 1)
	questions := []model.Question{q1, q2}
	responses := []model.Response{answer(q1, 1), answer(q2, 1)}

	tests := []struct {
		name   string
		policy Policy
		want   float64
	}{
		{"raw points", PolicyPoints, 1},
		{"normalized to ten", PolicyNormalized, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Grade(questions, responses, Options{Policy: tt.policy})
			if res.Score != tt.want {
				t.Fatalf("score = %v, want %v", res.Score, tt.want)
			}
			if !res.Outcomes[0].Correct || res.Outcomes[0].Points != 1 {
				t.Errorf("first outcome = %+v, want correct with 1 point", res.Outcomes[0])
			}
			if res.Outcomes[1].Correct || res.Outcomes[1].Points != 0 {
				t.Errorf("second outcome = %+v, want incorrect with 0 points", res.Outcomes[1])
			}
			if res.CorrectCount != 1 || res.QuestionCount != 2 || res.MaxPoints != 2 {
				t.Errorf("counts = %d/%d max %d", res.CorrectCount, res.QuestionCount, res.MaxPoints)
			}
		})
	}
}

func TestGradePointWeighted(t *testing.T) {
	heavy, light := mcQuestion(2, 5), mcQuestion(0, 1)
	res := Grade(
		[]model.Question{heavy, light},
		[]model.Response{answer(heavy, 2), answer(light, 2)},
		Options{Policy: PolicyPoints},
	)
	if res.Score != 5 || res.Earned != 5 || res.MaxPoints != 6 {
		t.Fatalf("got score %v earned %d max %d, want 5/5/6", res.Score, res.Earned, res.MaxPoints)
	}

	// Normalized ignores weights: one of two questions right.
	res = Grade(
		[]model.Question{heavy, light},
		[]model.Response{answer(heavy, 2), answer(light, 2)},
		Options{Policy: PolicyNormalized},
	)
	if res.Score != 5.0 {
		t.Fatalf("normalized score = %v, want 5.0", res.Score)
	}
}

func TestGradeSkipsMissingQuestion(t *testing.T) {
	kept := mcQuestion(0, 1)
	deleted := mcQuestion(0, 1)
	res := Grade(
		[]model.Question{kept},
		[]model.Response{answer(deleted, 0), answer(kept, 0)},
		Options{Policy: PolicyPoints},
	)
	if !res.Outcomes[0].Skipped || res.Outcomes[0].Correct || res.Outcomes[0].Points != 0 {
		t.Errorf("orphan outcome = %+v, want skipped", res.Outcomes[0])
	}
	if res.Score != 1 {
		t.Errorf("score = %v, want 1", res.Score)
	}
}

func TestGradeUnansweredCountsAgainstNormalized(t *testing.T) {
	q1, q2, q3 := mcQuestion(0, 1), mcQuestion(0, 1), mcQuestion(0, 1)
	res := Grade(
		[]model.Question{q1, q2, q3},
		[]model.Response{answer(q1, 0)},
		Options{Policy: PolicyNormalized},
	)
	if res.Score != 3.33 {
		t.Fatalf("score = %v, want 3.33", res.Score)
	}
}

func TestGradeNoQuestions(t *testing.T) {
	res := Grade(nil, nil, Options{Policy: PolicyNormalized})
	if res.Score != 0 || len(res.Outcomes) != 0 {
		t.Fatalf("got %+v, want empty zero result", res)
	}
}

func TestGradeZeroCredit(t *testing.T) {
	q := mcQuestion(1, 3)
	res := Grade([]model.Question{q}, []model.Response{answer(q, 1)}, Options{Policy: PolicyPoints, ZeroCredit: true})
	if !res.Outcomes[0].Correct {
		t.Error("correctness should still be recorded")
	}
	if res.Outcomes[0].Points != 0 || res.Score != 0 || res.CorrectCount != 1 {
		t.Errorf("got %+v, want zero points and score", res)
	}
}

func TestGradeDeterministic(t *testing.T) {
	q1, q2 := mcQuestion(1, 2), mcQuestion(0, 3)
	questions := []model.Question{q1, q2}
	responses := []model.Response{answer(q1, 1), answer(q2, 0)}

	first := Grade(questions, responses, Options{Policy: PolicyPoints})
	for i := 0; i < 5; i++ {
		again := Grade(questions, responses, Options{Policy: PolicyPoints})
		if again.Score != first.Score || again.Earned != first.Earned {
			t.Fatalf("run %d: score %v, want %v", i, again.Score, first.Score)
		}
	}
}
