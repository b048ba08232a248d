// Package sentencepiece implements a tokenizers.Tokenizer based on SentencePiece tokenizer.
//
// It's an alternative to the word-level vocabularies for corpora distributed with a SentencePiece
// model (a "*.model" file) instead of a word list.
package sentencepiece

import (
	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/pkg/errors"
)

// New creates a SentencePiece tokenizer based on the given model file, which must be a
// SentencePiece Model proto.
//
// The config is not used, the special tokens are defined by the model itself.
//
// It implements a tokenizers.TokenizerConstructor function signature.
func New(_ *api.Config, modelFile string) (api.Tokenizer, error) {
	if !files.Exists(modelFile) {
		return nil, errors.Errorf("sentencepiece model file %q not found", modelFile)
	}
	proc, err := esentencepiece.NewProcessorFromPath(modelFile)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelFile)
	}
	return &Tokenizer{
		Processor: proc,
		Info:      proc.ModelInfo(),
	}, nil
}

// Tokenizer implements tokenizers.Tokenizer interface based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo
}

// Compile time assert that sentencepiece.Tokenizer implements tokenizers.Tokenizer interface.
var _ api.Tokenizer = &Tokenizer{}

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	return sliceMap(tokens, func(t esentencepiece.Token) int { return t.ID })
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// VocabSize returns the number of pieces in the model.
func (p *Tokenizer) VocabSize() int {
	return p.Info.VocabularySize
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
// Models without a padding piece report a negative PadID, which is returned as an error.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var id int
	switch token {
	case api.TokUnknown:
		id = p.Info.UnknownID
	case api.TokPad:
		id = p.Info.PadID
	case api.TokBeginningOfSentence:
		id = p.Info.BeginningOfSentenceID
	case api.TokEndOfSentence:
		id = p.Info.EndOfSentenceID
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, token)
	}
	if id < 0 {
		return 0, errors.Errorf("special token %s not defined by the sentencepiece model", token)
	}
	return id, nil
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
