package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain digits", "628123456789", "628123456789"},
		{"leading plus", "+628123456789", "628123456789"},
		{"separators", "+62 812-3456-789", "628123456789"},
		{"parentheses", "(62) 812 3456 789", "628123456789"},
		{"letters stripped", "62abc812", "62812"},
		{"empty", "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePhone(tc.input))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected bool
	}{
		{"minimum length", "12345678", true},
		{"maximum length", "123456789012345", true},
		{"typical number", "628123456789", true},
		{"too short", "1234567", false},
		{"too long", "1234567890123456", false},
		{"empty", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsValidPhone(tc.input))
		})
	}
}
