package nametree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AddAndMatch(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Add("example.com"))
	require.NoError(t, tree.Add("tracker.net"))

	assert.True(t, tree.Match("example.com"))
	assert.True(t, tree.Match("a.example.com"))
	assert.True(t, tree.Match("deep.a.example.com"))
	assert.False(t, tree.Match("badexample.com"))
	assert.False(t, tree.Match("com"))
	assert.False(t, tree.Match("example.org"))

	assert.True(t, tree.Match("a.tracker.net"))
	assert.False(t, tree.Match("badtracker.net"))
}

func Test_MatchCaseInsensitive(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Add("Ads.Example"))

	assert.True(t, tree.Match("ads.example"))
	assert.True(t, tree.Match("SUB.ADS.EXAMPLE"))
}

func Test_AddErrors(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Add("example.com"))
	assert.ErrorIs(t, tree.Add("example.com"), ErrDuplicated)
	assert.ErrorIs(t, tree.Add("EXAMPLE.COM"), ErrDuplicated)

	assert.ErrorIs(t, tree.Add(""), ErrInvalid)
	assert.ErrorIs(t, tree.Add("a..b"), ErrInvalid)
	assert.ErrorIs(t, tree.Add(strings.Repeat("x", 64)+".com"), ErrInvalid)
	assert.ErrorIs(t, tree.Add(strings.Repeat("abcde.", 50)+"com"), ErrInvalid)

	assert.Equal(t, 1, tree.Size())
}

func Test_LookupRegistrationOrder(t *testing.T) {
	tree := New()

	require.NoError(t, tree.AddTag("corp.example", 2))
	require.NoError(t, tree.AddTag("example", 1))

	// Both suffixes match; the smaller tag (earlier registration) wins.
	tag, ok := tree.Lookup("host.corp.example")
	require.True(t, ok)
	assert.Equal(t, 1, tag)

	tag, ok = tree.Lookup("other.example")
	require.True(t, ok)
	assert.Equal(t, 1, tag)

	_, ok = tree.Lookup("elsewhere.org")
	assert.False(t, ok)
}

func Test_Clear(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Add("example.com"))
	require.NotZero(t, tree.Size())
	require.NotZero(t, tree.MemoryEstimate())

	tree.Clear()

	assert.Zero(t, tree.Size())
	assert.False(t, tree.Match("example.com"))
}

func Test_IntermediateNodeIsNotTerminal(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Add("a.b.example.com"))

	// "example.com" exists as an interior node but was never added.
	assert.False(t, tree.Match("example.com"))
	assert.False(t, tree.Match("x.example.com"))
	assert.True(t, tree.Match("a.b.example.com"))
	assert.True(t, tree.Match("sub.a.b.example.com"))
}
