package partition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// runeTokenizer treats every rune as one token. Decode is the exact inverse of
// Encode for any slice, which is the same contract the BPE encoder provides.
// Tests use it instead of the tiktoken encoder because tiktoken loads its
// vocabulary from the network.
type runeTokenizer struct{}

func (runeTokenizer) Encode(text string) []int {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens
}

func (runeTokenizer) Decode(tokens []int) string {
	runes := make([]rune, len(tokens))
	for i, t := range tokens {
		runes[i] = rune(t)
	}
	return string(runes)
}

func TestSplitSinglePartWhenTextFits(t *testing.T) {
	text := strings.Repeat("a", 100)
	parts, err := Split(runeTokenizer{}, "doc-1", text, 500, 50)
	require.NoError(t, err)

	require.Len(t, parts, 1)
	require.Equal(t, 1, parts[0].Position)
	require.Equal(t, text, parts[0].Content)
	require.Equal(t, 100, parts[0].TokenCount)
	require.Equal(t, "doc-1", parts[0].ContentItemCanonicalID)
}

func TestSplitSmallTrailingPartIsMerged(t *testing.T) {
	// 520 tokens with size=500, overlap=50: two parts are computed, but the
	// second (70 tokens) is below 2*overlap, so it merges into the first,
	// yielding exactly one part covering all 520 tokens.
	text := strings.Repeat("x", 520)
	parts, err := Split(runeTokenizer{}, "doc-1", text, 500, 50)
	require.NoError(t, err)

	require.Len(t, parts, 1)
	require.Equal(t, 1, parts[0].Position)
	require.Equal(t, 520, parts[0].TokenCount)
	require.Equal(t, text, parts[0].Content)
}

func TestSplitOverlappingParts(t *testing.T) {
	tok := runeTokenizer{}
	text := strings.Repeat("abcdefghij", 120) // 1200 tokens
	parts, err := Split(tok, "doc-1", text, 500, 50)
	require.NoError(t, err)

	// step=450, count=ceil(1150/450)=3: starts at 0, 450, 900.
	require.Len(t, parts, 3)
	require.Equal(t, 500, parts[0].TokenCount)
	require.Equal(t, 500, parts[1].TokenCount)
	require.Equal(t, 300, parts[2].TokenCount)

	tokens := tok.Encode(text)
	for i, part := range parts {
		require.Equal(t, i+1, part.Position)

		start := i * 450
		slice := tokens[start : start+part.TokenCount]
		require.Equal(t, tok.Decode(slice), part.Content)
		require.Equal(t, slice, tok.Encode(part.Content))
	}

	// Consecutive parts overlap by exactly 50 tokens.
	first := tok.Encode(parts[0].Content)
	second := tok.Encode(parts[1].Content)
	require.Equal(t, first[450:], second[:50])
}

func TestSplitRoundTripFidelity(t *testing.T) {
	tok := runeTokenizer{}
	text := "The quick brown fox jumps over the lazy dog. " + strings.Repeat("lorem ipsum ", 40)
	parts, err := Split(tok, "doc-1", text, 64, 16)
	require.NoError(t, err)
	require.NotEmpty(t, parts)

	// Dropping each part's leading overlap and concatenating reconstructs the
	// original token sequence exactly.
	var reconstructed []int
	for i, part := range parts {
		tokens := tok.Encode(part.Content)
		require.Equal(t, part.TokenCount, len(tokens))
		if i == 0 {
			reconstructed = append(reconstructed, tokens...)
		} else {
			reconstructed = append(reconstructed, tokens[16:]...)
		}
	}
	require.Equal(t, tok.Encode(text), reconstructed)
}

func TestSplitRejectsInvalidParameters(t *testing.T) {
	_, err := Split(runeTokenizer{}, "doc-1", "text", 0, 0)
	require.Error(t, err)

	_, err = Split(runeTokenizer{}, "doc-1", "text", 100, 100)
	require.Error(t, err)

	_, err = Split(runeTokenizer{}, "doc-1", "text", 100, -1)
	require.Error(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	parts, err := Split(runeTokenizer{}, "doc-1", "", 500, 50)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Zero(t, parts[0].TokenCount)
}
