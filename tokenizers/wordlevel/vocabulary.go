// Package wordlevel implements a tokenizers.Tokenizer based on a whitespace split of the text and
// a vocabulary file with one word per line.
//
// The first four ids are reserved: PadID (inserted by Load), and UnknownID, StartID and EndID, which
// must be the first three entries of the vocabulary file.
package wordlevel

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Reserved ids of every Vocabulary.
const (
	PadID = iota
	UnknownID
	StartID
	EndID
	NumReserved
)

// ErrReservedMismatch is wrapped by the VocabLoadError returned when the vocabulary file doesn't start
// with the configured unknown, start and end tokens.
var ErrReservedMismatch = errors.New("vocabulary file doesn't start with the reserved tokens")

// VocabLoadError is returned when a vocabulary file is missing, unreadable or malformed.
type VocabLoadError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *VocabLoadError) Error() string {
	return fmt.Sprintf("failed to load vocabulary %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *VocabLoadError) Unwrap() error { return e.Err }

// Vocabulary is a bidirectional word<->id table. It is immutable after Load, and safe for concurrent use.
type Vocabulary struct {
	config   *api.Config
	wordToID map[string]int
	idToWord []string
}

// Compile time assert that Vocabulary implements tokenizers.Tokenizer interface.
var _ api.Tokenizer = &Vocabulary{}

type loadOptions struct {
	config        *api.Config
	checkReserved bool
}

// Option configures Load.
type Option func(*loadOptions)

// WithConfig sets the spelling of the reserved tokens and the text normalization. Default is api.DefaultConfig.
func WithConfig(config *api.Config) Option {
	return func(o *loadOptions) { o.config = config }
}

// WithoutReservedCheck accepts any first three entries as the unknown, start and end tokens.
func WithoutReservedCheck() Option {
	return func(o *loadOptions) { o.checkReserved = false }
}

// Load builds the Vocabulary from a file with one word per line.
//
// Words are stripped of surrounding whitespace and lowercased. The padding token is inserted at id 0,
// and the file's first three words take ids 1 to 3 (unknown, start, end). The remaining words are
// de-duplicated keeping the first occurrence, so the same file always yields the same ids.
// Blank lines count as the empty word, unless api.Config.SkipEmptyLines is set.
//
// Any failure is returned as a *VocabLoadError.
func Load(filePath string, options ...Option) (*Vocabulary, error) {
	opts := &loadOptions{config: api.DefaultConfig(), checkReserved: true}
	for _, option := range options {
		option(opts)
	}
	v := &Vocabulary{config: opts.config}
	words := []string{v.normalizeWord(opts.config.PadToken)}
	for line, err := range files.IterLines(filePath) {
		if err != nil {
			return nil, &VocabLoadError{Path: filePath, Err: err}
		}
		words = append(words, v.normalizeWord(line))
	}
	if len(words) < NumReserved {
		return nil, &VocabLoadError{Path: filePath, Err: errors.Errorf(
			"%d entries found, at least %d (unknown, start and end tokens) are required", len(words)-1, NumReserved-1)}
	}
	if opts.checkReserved {
		expected := []string{
			v.normalizeWord(opts.config.UnkToken),
			v.normalizeWord(opts.config.BosToken),
			v.normalizeWord(opts.config.EosToken),
		}
		for ii, want := range expected {
			if got := words[ii+1]; got != want {
				return nil, &VocabLoadError{Path: filePath, Err: errors.WithMessagef(ErrReservedMismatch,
					"line %d is %q, expected %q", ii+1, got, want)}
			}
		}
	}

	// Stable de-duplication: reserved words first, then the tail in order of first occurrence.
	set := linkedhashset.New()
	for _, word := range words[:NumReserved] {
		set.Add(word)
	}
	if set.Size() != NumReserved {
		return nil, &VocabLoadError{Path: filePath, Err: errors.Errorf("reserved tokens %q are not distinct", words[:NumReserved])}
	}
	for _, word := range words[NumReserved:] {
		if word == "" && opts.config.SkipEmptyLines {
			continue
		}
		set.Add(word)
	}
	v.idToWord = make([]string, 0, set.Size())
	v.wordToID = make(map[string]int, set.Size())
	for _, value := range set.Values() {
		word := value.(string)
		v.wordToID[word] = len(v.idToWord)
		v.idToWord = append(v.idToWord, word)
	}
	return v, nil
}

// New creates the Vocabulary from the given vocabulary file.
//
// It implements a tokenizers.TokenizerConstructor function signature.
func New(config *api.Config, vocabFile string) (api.Tokenizer, error) {
	if config == nil {
		config = api.DefaultConfig()
	}
	return Load(vocabFile, WithConfig(config))
}

func (v *Vocabulary) normalizeWord(word string) string {
	word = strings.TrimSpace(word)
	if v.config.NormalizeUnicode {
		word = norm.NFC.String(word)
	}
	if v.config.DoLowerCase {
		word = strings.ToLower(word)
	}
	return word
}

// Normalize strips surrounding whitespace and, if configured, composes accents (Unicode NFC) and
// lowercases (the default) the text. Vocabulary entries go through the same normalization.
func (v *Vocabulary) Normalize(text string) string {
	return v.normalizeWord(text)
}

// Split text on whitespace, dropping empty tokens.
func Split(text string) []string {
	return strings.Fields(text)
}

// Lookup maps words to their ids. Words not in the vocabulary map to UnknownID.
func (v *Vocabulary) Lookup(words []string) []int {
	ids := make([]int, len(words))
	for ii, word := range words {
		id, found := v.wordToID[word]
		if !found {
			id = UnknownID
		}
		ids[ii] = id
	}
	return ids
}

// Encode returns the text encoded into a sequence of ids: Normalize, Split then Lookup.
// No sentence boundaries nor padding are added.
func (v *Vocabulary) Encode(text string) []int {
	return v.Lookup(Split(v.Normalize(text)))
}

// Decode returns the words of the ids joined by a space. Padding is skipped, unknown ids are
// decoded as the unknown token.
func (v *Vocabulary) Decode(ids []int) string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == PadID {
			continue
		}
		words = append(words, v.Word(id))
	}
	return strings.Join(words, " ")
}

// SpecialTokenID returns the id of the given special token, or an error if not known.
func (v *Vocabulary) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokPad:
		return PadID, nil
	case api.TokUnknown:
		return UnknownID, nil
	case api.TokBeginningOfSentence:
		return StartID, nil
	case api.TokEndOfSentence:
		return EndID, nil
	}
	return 0, errors.Errorf("unknown special token: %s (%d)", token, token)
}

// ID returns the id of word, and whether it is in the vocabulary. The word is used as is, not normalized.
func (v *Vocabulary) ID(word string) (int, bool) {
	id, found := v.wordToID[word]
	return id, found
}

// Word returns the word with the given id, or the unknown token if id is out of range.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.idToWord) {
		return v.idToWord[UnknownID]
	}
	return v.idToWord[id]
}

// Words returns a copy of the words, indexed by id.
func (v *Vocabulary) Words() []string {
	return append([]string(nil), v.idToWord...)
}

// Size returns the number of words, reserved tokens included.
func (v *Vocabulary) Size() int {
	return len(v.idToWord)
}

// VocabSize implements tokenizers.Tokenizer. Same as Size.
func (v *Vocabulary) VocabSize() int {
	return len(v.idToWord)
}
