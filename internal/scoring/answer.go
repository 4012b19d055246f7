package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/stemsi/examcore/internal/model"
)

// ErrInvalidAnswer is returned when an answer's shape does not fit its
// question type.
var ErrInvalidAnswer = errors.New("invalid answer")

// ErrInvalidQuestion is returned when a question definition is inconsistent
// (for example a multiple-choice key pointing past the last option).
var ErrInvalidQuestion = errors.New("invalid question")

// ValidateAnswer checks that raw has the shape expected by q's type:
// an option index for multiple choice, a boolean for true/false and a
// string for text questions.
func ValidateAnswer(q model.Question, raw json.RawMessage) error {
	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice:
		idx, ok := decodeIndex(raw)
		if !ok {
			return fmt.Errorf("%w: expected an option index", ErrInvalidAnswer)
		}
		n := optionCount(q.Options)
		if n >= 0 && idx >= n {
			return fmt.Errorf("%w: option %d out of range (%d options)", ErrInvalidAnswer, idx, n)
		}
	case model.QuestionTypeTrueFalse:
		var b bool
		if err := strictDecode(raw, &b); err != nil {
			return fmt.Errorf("%w: expected true or false", ErrInvalidAnswer)
		}
	case model.QuestionTypeText:
		var s string
		if err := strictDecode(raw, &s); err != nil {
			return fmt.Errorf("%w: expected a string", ErrInvalidAnswer)
		}
	default:
		if !json.Valid(raw) {
			return fmt.Errorf("%w: not valid JSON", ErrInvalidAnswer)
		}
	}
	return nil
}

// ValidateQuestion checks a question definition before it is stored.
func ValidateQuestion(q model.Question) error {
	if q.Points < 1 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidQuestion)
	}
	if q.QuestionType == model.QuestionTypeMultipleChoice {
		n := optionCount(q.Options)
		if n < 2 {
			return fmt.Errorf("%w: multiple choice needs at least two options", ErrInvalidQuestion)
		}
	}
	if err := ValidateAnswer(q, q.CorrectAnswer); err != nil {
		return fmt.Errorf("%w: correct answer: %v", ErrInvalidQuestion, err)
	}
	return nil
}

// Evaluate reports whether answer matches q's correct answer. Comparison is
// exact: an option index for multiple choice, otherwise JSON value equality
// (1 and 1.0 are equal, "Paris" and "paris" are not).
func Evaluate(q model.Question, answer json.RawMessage) bool {
	if q.QuestionType == model.QuestionTypeMultipleChoice {
		got, ok := decodeIndex(answer)
		if !ok {
			return false
		}
		want, ok := decodeIndex(q.CorrectAnswer)
		return ok && got == want
	}

	var got, want any
	if json.Unmarshal(answer, &got) != nil || json.Unmarshal(q.CorrectAnswer, &want) != nil {
		return false
	}
	return reflect.DeepEqual(got, want)
}

// decodeIndex reads a non-negative whole number.
func decodeIndex(raw json.RawMessage) (int, bool) {
	var f float64
	if err := strictDecode(raw, &f); err != nil {
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// optionCount returns the length of a JSON array of options, or -1 when the
// options are absent or not an array.
func optionCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return -1
	}
	var opts []json.RawMessage
	if err := json.Unmarshal(raw, &opts); err != nil {
		return -1
	}
	return len(opts)
}

// strictDecode rejects null and trailing data.
func strictDecode(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("empty value")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.InputOffset() != int64(len(trimmed)) {
		return errors.New("trailing data")
	}
	return nil
}
