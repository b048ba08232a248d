// Package tokenizers creates tokenizers for the source and target languages of a translation corpus.
//
// Given a vocabulary file and a Config (see api.Config), New instantiates the Tokenizer registered
// for Config.TokenizerClass: "WordLevel" (the default, a word list) or "SentencePiece" (a model file).
package tokenizers

import (
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/gomlx/go-nmt/tokenizers/sentencepiece"
	"github.com/gomlx/go-nmt/tokenizers/wordlevel"
	"github.com/pkg/errors"
)

// Tokenizer interface allows one convert text to "tokens" (integer ids) and back.
//
// It also allows mapping of special tokens: tokens with a common semantic (like padding) but that
// may map to different ids (int) for different tokenizers.
type Tokenizer = api.Tokenizer

// SpecialToken is an enum of commonly used special tokens.
type SpecialToken = api.SpecialToken

const (
	TokBeginningOfSentence = api.TokBeginningOfSentence
	TokEndOfSentence       = api.TokEndOfSentence
	TokUnknown             = api.TokUnknown
	TokPad                 = api.TokPad
	TokMask                = api.TokMask
	TokClassification      = api.TokClassification
	TokSpecialTokensCount  = api.TokSpecialTokensCount
)

// Config holds the tokenizer class and the spelling of its reserved tokens.
type Config = api.Config

// DefaultClass is used when Config.TokenizerClass is empty.
const DefaultClass = "WordLevel"

// New creates a tokenizer from the given vocabulary (or model) file.
//
// If config is nil, api.DefaultConfig is used.
func New(config *Config, vocabFile string) (Tokenizer, error) {
	if config == nil {
		config = api.DefaultConfig()
	}
	class := config.TokenizerClass
	if class == "" {
		class = DefaultClass
	}
	constructor, found := registerOfClasses[class]
	if !found {
		return nil, errors.Errorf("unknown tokenizer class %q", class)
	}
	return constructor(config, vocabFile)
}

// TokenizerConstructor is used by Tokenizer implementations to provide implementations for different
// tokenizer classes.
type TokenizerConstructor func(config *api.Config, vocabFile string) (api.Tokenizer, error)

// RegisterTokenizerClass used by Tokenizer implementations.
func RegisterTokenizerClass(name string, constructor TokenizerConstructor) {
	registerOfClasses[name] = constructor
}

var (
	registerOfClasses = make(map[string]TokenizerConstructor)
)

func init() {
	RegisterTokenizerClass("WordLevel", wordlevel.New)
	RegisterTokenizerClass("SentencePiece", sentencepiece.New)
}
