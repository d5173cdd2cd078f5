package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_IsRandomLabel(t *testing.T) {
	cases := []struct {
		name   string
		random bool
	}{
		// Too short, or no label boundary at all.
		{"short.com", false},
		{"localhost", false},

		// Long digit run.
		{"abc1234567demo.com", true},
		// Two separate digit groups.
		{"track1abcde2xyz.net", true},
		// Vowel starvation.
		{"xkcdqwrtypsdfgh.com", true},
		// Healthy vowel ratio, no digits.
		{"explanation.com", false},
		{"wikipedia.org", false},

		// www. prefix is stripped before the label is taken.
		{"www.zxcvbnmqwrtzp.com", true},

		// More than two labels: passed over unless the cloudfront family.
		{"cdn.zxcvbnmqwrtzp.example.com", false},
		{"d111111abcdef8.cloudfront.net", true},
	}

	for _, c := range cases {
		assert.Equal(t, c.random, IsRandomLabel(c.name), c.name)
	}
}

func Test_IsRandomLabelDigitRuns(t *testing.T) {
	// A single run of five digits trips the detector.
	assert.True(t, IsRandomLabel("abcde12345.com"))
	// Four digits in one run is fine on its own.
	assert.False(t, IsRandomLabel("aeiouae1234.com"))
	// A trailing digit run must still be counted.
	assert.True(t, IsRandomLabel("a1bcdeiou2.com"))
}
