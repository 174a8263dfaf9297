package validator

import (
	"errors"
	"regexp"
	"strings"
)

const (
	QuestionCount     = 3
	MaxQuestionLength = 200
)

var (
	ErrEmptyEmail         = errors.New("email is empty")
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrWrongQuestionCount = errors.New("exactly 3 questions are required")
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrQuestionTooLong    = errors.New("question exceeds 200 characters")
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmptyEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmailFormat
	}
	return nil
}

// ValidateQuestions trims each question and checks the count and per-question
// length bounds. It returns the trimmed questions on success.
func ValidateQuestions(questions []string) ([]string, error) {
	if len(questions) != QuestionCount {
		return nil, ErrWrongQuestionCount
	}

	trimmed := make([]string, QuestionCount)
	for i, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			return nil, ErrEmptyQuestion
		}
		if len(q) > MaxQuestionLength {
			return nil, ErrQuestionTooLong
		}
		trimmed[i] = q
	}
	return trimmed, nil
}
