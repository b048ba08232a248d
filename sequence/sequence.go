// Package sequence turns lines of text into bounded, padded sequences of ids.
//
// An Encoder chains pure stages: the tokenizer's own normalization, split and lookup (see
// wordlevel.Vocabulary.Encode), then Wrap with the start/end ids and PadTo the configured length.
package sequence

import (
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/pkg/errors"
)

// Stage transforms a sequence of ids. Stages must not modify their input.
type Stage func(ids []int) []int

// Chain composes stages, applied in the given order.
func Chain(stages ...Stage) Stage {
	return func(ids []int) []int {
		for _, stage := range stages {
			ids = stage(ids)
		}
		return ids
	}
}

// Wrap prepends start and appends end.
func Wrap(start, end int) Stage {
	return func(ids []int) []int {
		wrapped := make([]int, 0, len(ids)+2)
		wrapped = append(wrapped, start)
		wrapped = append(wrapped, ids...)
		return append(wrapped, end)
	}
}

// PadTo right-pads the sequence with padID up to length seqLen.
// Longer sequences are returned unchanged: padding never truncates.
func PadTo(seqLen, padID int) Stage {
	return func(ids []int) []int {
		if len(ids) >= seqLen {
			return ids
		}
		padded := make([]int, seqLen)
		copy(padded, ids)
		for ii := len(ids); ii < seqLen; ii++ {
			padded[ii] = padID
		}
		return padded
	}
}

// Encoder converts one line of text into a sequence of exactly SeqLen ids, or longer if the
// line doesn't fit: callers filter those out by checking the length.
//
// It is safe for concurrent use as long as the tokenizer is.
type Encoder struct {
	tokenizer             api.Tokenizer
	seqLen                int
	padID, startID, endID int
	finish                Stage
}

// NewEncoder creates an Encoder for sequences of seqLen ids, which must be at least 2 (start and end).
// The tokenizer must define the pad, beginning and end of sentence special tokens.
func NewEncoder(tokenizer api.Tokenizer, seqLen int) (*Encoder, error) {
	if seqLen < 2 {
		return nil, errors.Errorf("sequence length must be at least 2 to hold start and end tokens, got %d", seqLen)
	}
	e := &Encoder{tokenizer: tokenizer, seqLen: seqLen}
	for _, special := range []struct {
		token api.SpecialToken
		id    *int
	}{
		{api.TokPad, &e.padID},
		{api.TokBeginningOfSentence, &e.startID},
		{api.TokEndOfSentence, &e.endID},
	} {
		id, err := tokenizer.SpecialTokenID(special.token)
		if err != nil {
			return nil, errors.WithMessagef(err, "creating sequence encoder")
		}
		*special.id = id
	}
	e.finish = Chain(Wrap(e.startID, e.endID), PadTo(seqLen, e.padID))
	return e, nil
}

// Encode returns the line tokenized, wrapped with start and end ids and padded to SeqLen.
// An empty line yields [start, end, pad, ...].
func (e *Encoder) Encode(line string) []int {
	return e.finish(e.tokenizer.Encode(line))
}

// Fits returns whether ids has exactly SeqLen elements.
func (e *Encoder) Fits(ids []int) bool {
	return len(ids) == e.seqLen
}

// SeqLen returns the configured sequence length.
func (e *Encoder) SeqLen() int { return e.seqLen }

// PadID returns the padding id used.
func (e *Encoder) PadID() int { return e.padID }

// StartID returns the id prepended to every sequence.
func (e *Encoder) StartID() int { return e.startID }

// EndID returns the id appended to every sequence.
func (e *Encoder) EndID() int { return e.endID }

// VocabSize returns the vocabulary size of the underlying tokenizer.
func (e *Encoder) VocabSize() int { return e.tokenizer.VocabSize() }

// Tokenizer returns the underlying tokenizer.
func (e *Encoder) Tokenizer() api.Tokenizer { return e.tokenizer }
