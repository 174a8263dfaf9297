package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr error
	}{
		{"valid", "guest@example.com", nil},
		{"valid subdomain", "a.b@mail.example.co.uk", nil},
		{"empty", "", ErrEmptyEmail},
		{"whitespace only", "   ", ErrEmptyEmail},
		{"no at sign", "guestexample.com", ErrInvalidEmailFormat},
		{"no domain dot", "guest@example", ErrInvalidEmailFormat},
		{"embedded space", "gu est@example.com", ErrInvalidEmailFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateQuestions(t *testing.T) {
	t.Run("valid trims whitespace", func(t *testing.T) {
		got, err := ValidateQuestions([]string{" one ", "two", "three "})
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two", "three"}, got)
	})

	t.Run("wrong count", func(t *testing.T) {
		_, err := ValidateQuestions([]string{"one", "two"})
		assert.ErrorIs(t, err, ErrWrongQuestionCount)
	})

	t.Run("blank question", func(t *testing.T) {
		_, err := ValidateQuestions([]string{"one", "   ", "three"})
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	})

	t.Run("question at limit is accepted", func(t *testing.T) {
		q := strings.Repeat("a", MaxQuestionLength)
		_, err := ValidateQuestions([]string{q, "two", "three"})
		assert.NoError(t, err)
	})

	t.Run("question over limit", func(t *testing.T) {
		q := strings.Repeat("a", MaxQuestionLength+1)
		_, err := ValidateQuestions([]string{q, "two", "three"})
		assert.ErrorIs(t, err, ErrQuestionTooLong)
	})
}
