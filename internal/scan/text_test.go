package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func emails(matches []Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Email
	}
	return out
}

func TestFindPlainAddresses(t *testing.T) {
	matches := Find("reach me at bob@example.com or alice@shop.io today")
	assert.Equal(t, []string{"bob@example.com", "alice@shop.io"}, emails(matches))
	assert.Equal(t, "bob@example.com", "reach me at bob@example.com or alice@shop.io today"[matches[0].Start:matches[0].End])
}

func TestFindIgnoresTrailingPunctuation(t *testing.T) {
	matches := Find("write to bob@example.com.")
	require.Len(t, matches, 1)
	assert.Equal(t, "bob@example.com", matches[0].Email)
}

func TestFindObfuscatedParenTokens(t *testing.T) {
	text := "contact us at info (at) example (dot) com please"
	matches := Find(text)
	require.Len(t, matches, 1)
	assert.Equal(t, "info@example.com", matches[0].Email)
	assert.Equal(t, "info (at) example (dot) com", text[matches[0].Start:matches[0].End])
}

func TestFindObfuscatedVariants(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"sales [at] shop [dot] io", "sales@shop.io"},
		{"billing {at} corp {dot} example {dot} com", "billing@corp.example.com"},
		{"info &commat; example.com", "info@example.com"},
		{"kontakt ät example punkt de", "kontakt@example.de"},
		{"mail me: jane.doe at example dot co dot uk", "jane.doe@example.co.uk"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			matches := Find(tc.text)
			require.Len(t, matches, 1)
			assert.Equal(t, tc.want, matches[0].Email)
		})
	}
}

func TestFindDiscardsInvalidReconstructions(t *testing.T) {
	assert.Empty(t, Find("call us at noon today"))
	assert.Empty(t, Find("we met at dawn"))
}

func TestFindRecoversAfterInvalidCandidate(t *testing.T) {
	// "us at info" reconstructs to the invalid us@info; the genuine address
	// beginning inside that span must still be found
	matches := Find("contact us at info (at) example (dot) com now")
	require.Len(t, matches, 1)
	assert.Equal(t, "info@example.com", matches[0].Email)
}

func TestFindOverlapKeepsEarliestMatch(t *testing.T) {
	// the obfuscated reading foo@bar.com.de starts at the same offset as the
	// plain address, which was collected first and wins the tie
	matches := Find("foo@bar.com dot de")
	require.Len(t, matches, 1)
	assert.Equal(t, "foo@bar.com", matches[0].Email)

	// here the obfuscated match starts earlier and suppresses the plain
	// address overlapping its tail
	matches = Find("foo at x.com@y.de")
	require.Len(t, matches, 1)
	assert.Equal(t, "foo@x.com", matches[0].Email)
}

func TestFindMixedPlainAndObfuscated(t *testing.T) {
	matches := Find("bob@example.com and also sales (at) shop (dot) io")
	assert.Equal(t, []string{"bob@example.com", "sales@shop.io"}, emails(matches))
}

func TestFindEmptyAndPlainText(t *testing.T) {
	assert.Empty(t, Find(""))
	assert.Empty(t, Find("no addresses in here"))
}
