package target

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	table := []struct {
		input    string
		target   ID
		expected string
	}{
		{
			input:    "http://example.e-sim.org/path#frag",
			target:   "example",
			expected: "https://example.e-sim.org/path",
		},
		{
			input:    "https://example.e-sim.org/path",
			target:   "example",
			expected: "https://example.e-sim.org/path",
		},
		{
			input:    "https://Alpha.e-sim.org/apiBattles.html?battleId=3#top",
			target:   "alpha",
			expected: "https://Alpha.e-sim.org/apiBattles.html?battleId=3",
		},
		{
			input:    " https://secura.e-sim.org/ ",
			target:   "secura",
			expected: "https://secura.e-sim.org/",
		},
	}

	for _, row := range table {
		link, err := Parse(row.input, DefaultDomain)
		require.NoError(t, err, row.input)
		require.Equal(t, row.target, link.Target, row.input)
		require.Equal(t, row.expected, link.URL, row.input)
	}
}

func TestParseSameIdentity(t *testing.T) {
	a, err := Parse("http://example.e-sim.org/path#frag", DefaultDomain)
	require.NoError(t, err)
	b, err := Parse("https://example.e-sim.org/path", DefaultDomain)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParseForeignHost(t *testing.T) {
	for _, input := range []string{
		"https://example.com/",
		"https://e-sim.org/",
		"https://notesim.org/",
		"/relative/path",
	} {
		_, err := Parse(input, DefaultDomain)
		require.ErrorIs(t, err, ErrForeignHost, input)
	}
}

func TestRootAndLogin(t *testing.T) {
	id := ID("primera")
	require.Equal(t, "https://primera.e-sim.org/", id.Root(DefaultDomain))
	require.Equal(t, "https://primera.e-sim.org/login.html", id.LoginURL(DefaultDomain))
}
