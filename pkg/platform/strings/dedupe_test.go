package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice yields empty",
			input:    nil,
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  foo  ", "bar  ", "  baz"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"foo", "bar", "foo", "baz", "bar"},
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"foo", "", "  ", "bar"},
			expected: []string{"foo", "bar"},
		},
		{
			name:     "case is significant",
			input:    []string{"Go", "go"},
			expected: []string{"Go", "go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{}, SplitCSV(""))
	assert.Equal(t, []string{}, SplitCSV(" , ,"))
	assert.Equal(t, []string{"go", "sql"}, SplitCSV(" go, sql ,, go"))
}

func TestTerms(t *testing.T) {
	assert.Nil(t, Terms("   "))
	assert.Equal(t, []string{"quarterly", "report"}, Terms("  Quarterly   REPORT quarterly"))
}
