// Package api defines the Tokenizer API.
// It's just a hack to break the cyclic dependency, and allow the users to import `tokenizers` and get the
// default implementations.
package api

import "fmt"

// Tokenizer interface allows one convert text to "tokens" (integer ids) and back.
//
// Encode doesn't add sentence boundaries nor padding, see package sequence for that.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer interface {
	Encode(text string) []int
	Decode([]int) string

	// SpecialTokenID returns ID for given special token if registered, or an error if not.
	SpecialTokenID(token SpecialToken) (int, error)

	// VocabSize is the number of distinct ids the tokenizer may return.
	VocabSize() int
}

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken int

const (
	TokBeginningOfSentence SpecialToken = iota
	TokEndOfSentence
	TokUnknown
	TokPad
	TokMask
	TokClassification
	TokSpecialTokensCount
)

var specialTokenNames = [...]string{
	"beginning_of_sentence", "end_of_sentence", "unknown", "pad", "mask", "classification",
}

// String implements fmt.Stringer.
func (t SpecialToken) String() string {
	if t >= 0 && int(t) < len(specialTokenNames) {
		return specialTokenNames[t]
	}
	return fmt.Sprintf("SpecialToken(%d)", int(t))
}
