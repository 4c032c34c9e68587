package timecode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		wantErr  bool
	}{
		// Bare seconds
		{"seconds", "90", 90, false},
		{"zero", "0", 0, false},
		{"padded", "  45 ", 45, false},

		// Clock forms
		{"minutes seconds", "1:30", 90, false},
		{"leading zero", "0:05", 5, false},
		{"hours minutes seconds", "1:02:03", 3723, false},
		{"large minutes", "75:00", 4500, false},

		// Compact units
		{"seconds suffix", "90s", 90, false},
		{"minutes suffix", "2m", 120, false},
		{"combined", "1m30s", 90, false},
		{"upper case", "2M30S", 150, false},
		{"spaced", "2m 30s", 150, false},

		// Errors
		{"empty", "", 0, true},
		{"whitespace", "   ", 0, true},
		{"negative", "-5", 0, true},
		{"seconds out of range", "1:75", 0, true},
		{"nested out of range", "1:02:61", 0, true},
		{"letters", "abc", 0, true},
		{"hours unit", "1h", 0, true},
		{"too many fields", "1:2:3:4", 0, true},
		{"decimal", "1.5", 0, true},

		// Overflow
		{"seconds overflow", "99999999999999999999", 0, true},
		{"compact minutes overflow", "99999999999999999999m90s", 0, true},
		{"compact minutes wrap", "153722867280912931m", 0, true},
		{"compact seconds overflow", "1m99999999999999999999s", 0, true},
		{"compact sum overflow", "153722867280912930m60s", 0, true},
		{"clock hours wrap", "9223372036854775807:00:30", 0, true},
		{"clock minutes wrap", "153722867280912931:00", 0, true},
		{"clock first field overflow", "99999999999999999999:00", 0, true},
		{"largest clock hours", "2562047788015214:00:00", 2562047788015214 * 3600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParse_EquivalentForms(t *testing.T) {
	for _, in := range []string{"90", "1:30", "1m30s", "90s"} {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, 90, got, in)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "0:00"},
		{5, "0:05"},
		{90, "1:30"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3723, "1:02:03"},
		{-4, "0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.seconds))
		})
	}
}

func TestFormat_RoundTrip(t *testing.T) {
	for _, s := range []int{0, 1, 59, 61, 600, 3661} {
		got, err := Parse(Format(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestFFmpeg(t *testing.T) {
	assert.Equal(t, "00:00:00", FFmpeg(0))
	assert.Equal(t, "00:01:30", FFmpeg(90))
	assert.Equal(t, "01:02:03", FFmpeg(3723))
	assert.Equal(t, "00:00:00", FFmpeg(-1))
}

func TestToDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, ToDuration(90))
}
