package partition

import (
	"github.com/pkoukk/tiktoken-go"
)

// CL100KBase is the encoder used for partitioning in production.
const CL100KBase = "cl100k_base"

// Tokenizer converts text to a token sequence and back. Decode must be the
// exact inverse of Encode for any slice of an encoded sequence, so partitioned
// content round-trips losslessly.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// TikTokenizer is a Tokenizer backed by a tiktoken BPE encoding.
type TikTokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTikTokenizer loads the named tiktoken encoding (e.g. CL100KBase).
func NewTikTokenizer(encoding string) (*TikTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TikTokenizer{encoding: enc}, nil
}

var _ Tokenizer = (*TikTokenizer)(nil)

// Encode tokenizes text, allowing no special tokens.
func (t *TikTokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode reassembles text from a token slice.
func (t *TikTokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}
