package pipeline

import (
	"iter"
	"slices"

	"github.com/pkg/errors"
)

// LabelSmoother smooths in-place the one-hot labels, a flat array of rows of vocabSize elements.
type LabelSmoother func(labels []float32, epsilon float64, vocabSize int)

// SmoothLabels spreads epsilon of the probability mass uniformly over the vocabulary:
// (1-epsilon)·x + epsilon/vocabSize.
func SmoothLabels(labels []float32, epsilon float64, vocabSize int) {
	scale := float32(1 - epsilon)
	shift := float32(epsilon / float64(vocabSize))
	for ii, x := range labels {
		labels[ii] = scale*x + shift
	}
}

// Batch of examples transformed into decoder inputs and labels.
//
// For an example (s, t): SourceInputs holds s[1:], TargetInputs holds t[:-1] and TargetOutputs
// t[1:], all of length InputLen = SeqLen-1.
type Batch struct {
	// Size is the number of examples, BatchSize except maybe for the last batch of an epoch.
	Size int

	// InputLen is the length of the sequences in the batch: SeqLen-1.
	InputLen int

	// VocabSize of the target vocabulary, the last dimension of Labels.
	VocabSize int

	SourceInputs, TargetInputs, TargetOutputs [][]int

	// Labels are the smoothed one-hot encoding of TargetOutputs, flat with shape [Size, InputLen, VocabSize].
	// It is nil if labels are disabled in the Config.
	Labels []float32
}

// LabelsAt returns the smoothed label distribution of position pos of example b.
func (b *Batch) LabelsAt(example, pos int) []float32 {
	start := (example*b.InputLen + pos) * b.VocabSize
	return b.Labels[start : start+b.VocabSize]
}

// newBatch applies the decoder-input transformation to the examples.
func (p *Pipeline) newBatch(examples []Example) (*Batch, error) {
	b := &Batch{
		Size:          len(examples),
		InputLen:      p.config.SeqLen - 1,
		VocabSize:     p.target.VocabSize(),
		SourceInputs:  make([][]int, len(examples)),
		TargetInputs:  make([][]int, len(examples)),
		TargetOutputs: make([][]int, len(examples)),
	}
	for ii, e := range examples {
		b.SourceInputs[ii] = slices.Clone(e.Source[1:])
		b.TargetInputs[ii] = slices.Clone(e.Target[:len(e.Target)-1])
		b.TargetOutputs[ii] = slices.Clone(e.Target[1:])
	}
	if !p.config.Labels {
		return b, nil
	}
	b.Labels = make([]float32, b.Size*b.InputLen*b.VocabSize)
	for ii, outputs := range b.TargetOutputs {
		for pos, id := range outputs {
			if id < 0 || id >= b.VocabSize {
				return nil, errors.Errorf("target id %d out of range for vocabulary of size %d", id, b.VocabSize)
			}
			b.LabelsAt(ii, pos)[id] = 1
		}
	}
	p.config.Smoother(b.Labels, p.config.Epsilon, b.VocabSize)
	return b, nil
}

// batch groups the examples in batches of BatchSize. The last incomplete batch is yielded unless
// DropRemainder is set.
func (p *Pipeline) batch(examples iter.Seq2[Example, error]) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		pending := make([]Example, 0, p.config.BatchSize)
		emit := func() bool {
			b, err := p.newBatch(pending)
			pending = pending[:0]
			if !yield(b, err) {
				return false
			}
			return err == nil
		}
		for example, err := range examples {
			if err != nil {
				yield(nil, err)
				return
			}
			pending = append(pending, example)
			if len(pending) == p.config.BatchSize && !emit() {
				return
			}
		}
		if len(pending) > 0 && !p.config.DropRemainder {
			emit()
		}
	}
}
