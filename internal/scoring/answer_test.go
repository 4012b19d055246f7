package scoring

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stemsi/examcore/internal/model"
)

func TestEvaluate(t *testing.T) {
	mc := model.Question{
		QuestionType:  model.QuestionTypeMultipleChoice,
		Options:       json.RawMessage(`["x","y"]`),
		CorrectAnswer: json.RawMessage(`1`),
	}
	tf := model.Question{QuestionType: model.QuestionTypeTrueFalse, CorrectAnswer: json.RawMessage(`true`)}
	text := model.Question{QuestionType: model.QuestionTypeText, CorrectAnswer: json.RawMessage(`"Paris"`)}

	tests := []struct {
		name   string
		q      model.Question
		answer string
		want   bool
	}{
		{"mc exact index", mc, `1`, true},
		{"mc float form", mc, `1.0`, true},
		{"mc wrong index", mc, `0`, false},
		{"mc string index", mc, `"1"`, false},
		{"tf match", tf, `true`, true},
		{"tf mismatch", tf, `false`, false},
		{"text exact", text, `"Paris"`, true},
		{"text case differs", text, `"paris"`, false},
		{"text trailing space", text, `"Paris "`, false},
		{"malformed", text, `{`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.q, json.RawMessage(tt.answer)); got != tt.want {
				t.Errorf("Evaluate(%s) = %v, want %v", tt.answer, got, tt.want)
			}
		})
	}
}

func TestValidateAnswer(t *testing.T) {
	mc := model.Question{
		QuestionType: model.QuestionTypeMultipleChoice,
		Options:      json.RawMessage(`["x","y","z"]`),
	}
	tf := model.Question{QuestionType: model.QuestionTypeTrueFalse}
	text := model.Question{QuestionType: model.QuestionTypeText}

	tests := []struct {
		name    string
		q       model.Question
		answer  string
		wantErr bool
	}{
		{"mc in range", mc, `2`, false},
		{"mc out of range", mc, `3`, true},
		{"mc negative", mc, `-1`, true},
		{"mc fractional", mc, `1.5`, true},
		{"mc string", mc, `"a"`, true},
		{"mc null", mc, `null`, true},
		{"tf bool", tf, `false`, false},
		{"tf string", tf, `"true"`, true},
		{"text string", text, `"anything"`, false},
		{"text number", text, `42`, true},
		{"mc padded", mc, ` 1 `, false},
		{"mc closing bracket after index", mc, `1]`, true},
		{"mc two values", mc, `1 2`, true},
		{"tf closing brace after value", tf, `true}`, true},
		{"text trailing value", text, `"a" "b"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswer(tt.q, json.RawMessage(tt.answer))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAnswer(%s) error = %v, wantErr %v", tt.answer, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidAnswer) {
				t.Errorf("error %v does not wrap ErrInvalidAnswer", err)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name    string
		q       model.Question
		wantErr bool
	}{
		{
			name: "valid multiple choice",
			q: model.Question{QuestionType: model.QuestionTypeMultipleChoice, Points: 1,
				Options: json.RawMessage(`["a","b"]`), CorrectAnswer: json.RawMessage(`0`)},
		},
		{
			name: "key past last option",
			q: model.Question{QuestionType: model.QuestionTypeMultipleChoice, Points: 1,
				Options: json.RawMessage(`["a","b"]`), CorrectAnswer: json.RawMessage(`2`)},
			wantErr: true,
		},
		{
			name: "single option",
			q: model.Question{QuestionType: model.QuestionTypeMultipleChoice, Points: 1,
				Options: json.RawMessage(`["a"]`), CorrectAnswer: json.RawMessage(`0`)},
			wantErr: true,
		},
		{
			name:    "zero points",
			q:       model.Question{QuestionType: model.QuestionTypeText, Points: 0, CorrectAnswer: json.RawMessage(`"x"`)},
			wantErr: true,
		},
		{
			name: "valid text",
			q:    model.Question{QuestionType: model.QuestionTypeText, Points: 2, CorrectAnswer: json.RawMessage(`"x"`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestion(tt.q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateQuestion() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
