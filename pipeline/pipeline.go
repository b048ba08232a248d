// Package pipeline turns line-aligned source/target corpora into batches for sequence-to-sequence training.
//
// Each aligned pair of lines is encoded (see sequence.Encoder), and kept only if both sides have exactly
// Config.SeqLen ids: lines too long to fit are silently dropped, which shrinks the effective number of
// examples of an epoch.
//
// In Train mode the examples are shuffled within a bounded window, batched, and the batches repeat
// forever, each epoch re-reading the files. In Test mode the splits are concatenated in the given
// order, batched, and the iteration ends after one pass.
//
// Files are always streamed, never fully loaded in memory. A single line can't be longer than
// files.MaxLineSize (16 MiB): such a file is reported as a *CorpusLoadError, since it is most likely
// not a text corpus.
package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/go-nmt/sequence"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Mode of the Pipeline.
type Mode int

const (
	// Train shuffles the examples and repeats the batches forever.
	Train Mode = iota

	// Test concatenates the splits in order, and goes over them once.
	Test
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Train:
		return "train"
	case Test:
		return "test"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts "train" or "test" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "train":
		return Train, nil
	case "test":
		return Test, nil
	}
	return 0, errors.Errorf("unknown mode %q, valid values are \"train\" or \"test\"", s)
}

var (
	// ErrMisaligned is returned when the source and target files of a split have different numbers of lines.
	ErrMisaligned = errors.New("source and target corpora have a different number of lines")

	// ErrEmptyEpoch is returned in Train mode when a whole pass over the corpus produced no batch.
	ErrEmptyEpoch = errors.New("training epoch produced no batches")
)

// CorpusLoadError is returned when a corpus file is missing, unreadable or has a line longer than
// files.MaxLineSize.
type CorpusLoadError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *CorpusLoadError) Error() string {
	return fmt.Sprintf("failed to load corpus %q: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CorpusLoadError) Unwrap() error { return e.Err }

// Split is one pair of aligned corpus files.
type Split struct {
	Name           string
	Source, Target string
}

// Example is an aligned pair of encoded sequences, both of length Config.SeqLen.
type Example struct {
	Source, Target []int
}

// Pipeline of batches. It holds no state across iterations: every call to Examples or Batches reads
// the files from the start.
type Pipeline struct {
	config         Config
	mode           Mode
	source, target *sequence.Encoder
	splits         []Split
}

// New creates a Pipeline over the given splits, encoding source lines with sourceTokenizer and target
// lines with targetTokenizer.
//
// It fails if any file is missing (*CorpusLoadError), or if the source and target files of a split
// don't have the same number of lines (ErrMisaligned). The check streams through the files once.
func New(config *Config, mode Mode, sourceTokenizer, targetTokenizer api.Tokenizer, splits ...Split) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(splits) == 0 {
		return nil, errors.New("pipeline requires at least one split")
	}
	p := &Pipeline{config: *config, mode: mode, splits: splits}
	var err error
	if p.source, err = sequence.NewEncoder(sourceTokenizer, config.SeqLen); err != nil {
		return nil, errors.WithMessagef(err, "source tokenizer")
	}
	if p.target, err = sequence.NewEncoder(targetTokenizer, config.SeqLen); err != nil {
		return nil, errors.WithMessagef(err, "target tokenizer")
	}
	for _, split := range splits {
		if err := validateSplit(split); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewTrain creates a Train mode Pipeline over the training split.
func NewTrain(config *Config, sourceTokenizer, targetTokenizer api.Tokenizer, split Split) (*Pipeline, error) {
	return New(config, Train, sourceTokenizer, targetTokenizer, split)
}

// NewTest creates a Test mode Pipeline over the test splits, served in the given order.
func NewTest(config *Config, sourceTokenizer, targetTokenizer api.Tokenizer, splits ...Split) (*Pipeline, error) {
	return New(config, Test, sourceTokenizer, targetTokenizer, splits...)
}

func validateSplit(split Split) error {
	counts := make([]int, 2)
	for ii, filePath := range []string{split.Source, split.Target} {
		n, err := files.CountLines(filePath)
		if err != nil {
			return &CorpusLoadError{Path: filePath, Err: err}
		}
		counts[ii] = n
	}
	if counts[0] != counts[1] {
		return errors.WithMessagef(ErrMisaligned, "split %q: %q has %d lines, %q has %d lines",
			split.Name, split.Source, counts[0], split.Target, counts[1])
	}
	klog.V(2).Infof("split %q: %d aligned lines", split.Name, counts[0])
	return nil
}

// Mode of the pipeline.
func (p *Pipeline) Mode() Mode { return p.mode }

// Config returns a copy of the pipeline configuration.
func (p *Pipeline) Config() Config { return p.config }

// Splits returns the splits of the pipeline, in the order they are read.
func (p *Pipeline) Splits() []Split { return append([]Split(nil), p.splits...) }

// SourceEncoder returns the encoder used for the source lines.
func (p *Pipeline) SourceEncoder() *sequence.Encoder { return p.source }

// TargetEncoder returns the encoder used for the target lines.
func (p *Pipeline) TargetEncoder() *sequence.Encoder { return p.target }

// Examples iterates once over the retained examples of all splits, in file order and without shuffling.
func (p *Pipeline) Examples(ctx context.Context) iter.Seq2[Example, error] {
	return func(yield func(Example, error) bool) {
		var stats Stats
		for _, split := range p.splits {
			more, err := p.encodeSplit(ctx, split, &stats, func(e Example) bool { return yield(e, nil) })
			if err != nil {
				yield(Example{}, err)
				return
			}
			if !more {
				return
			}
		}
		klog.V(1).Infof("pipeline pass: %s", stats)
	}
}

// Count goes once over all splits and returns the statistics of the encoding and filtering.
func (p *Pipeline) Count(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, split := range p.splits {
		if _, err := p.encodeSplit(ctx, split, &stats, func(Example) bool { return true }); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Batches iterates over the batches.
//
// In Train mode the iteration never ends (unless an error occurs, or an epoch produces no batch:
// ErrEmptyEpoch). In Test mode it ends after one pass over the splits, producing
// ⌈examples / BatchSize⌉ batches, or ⌊examples / BatchSize⌋ with Config.DropRemainder.
func (p *Pipeline) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	if p.mode == Test {
		return p.batch(p.Examples(ctx))
	}
	return func(yield func(*Batch, error) bool) {
		for epoch := uint64(0); ; epoch++ {
			numBatches := 0
			for batch, err := range p.batch(shuffle(p.Examples(ctx), p.config.ShuffleWindow, p.config.Seed, epoch)) {
				if !yield(batch, err) || err != nil {
					return
				}
				numBatches++
			}
			if numBatches == 0 {
				yield(nil, errors.WithMessagef(ErrEmptyEpoch, "epoch %d", epoch))
				return
			}
			klog.V(1).Infof("training epoch %d done: %d batches", epoch, numBatches)
		}
	}
}
