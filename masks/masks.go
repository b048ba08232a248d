// Package masks builds attention masks from batches of id sequences.
//
// Masks are plain float32 arrays of shape [batch, seq_len, seq_len], stored flat in row-major
// order, with 1 where attention is allowed and 0 where it is not.
package masks

import (
	"github.com/pkg/errors"
)

// Mask of shape [Batch, SeqLen, SeqLen], flat row-major in Data.
// Element [b][i][j] is whether query position i of example b may attend to key position j.
type Mask struct {
	Batch, SeqLen int
	Data          []float32
}

func newMask(batch, seqLen int) *Mask {
	return &Mask{Batch: batch, SeqLen: seqLen, Data: make([]float32, batch*seqLen*seqLen)}
}

// At returns element [b][i][j].
func (m *Mask) At(b, i, j int) float32 {
	return m.Data[(b*m.SeqLen+i)*m.SeqLen+j]
}

// Shape returns the dimensions of the mask.
func (m *Mask) Shape() []int {
	return []int{m.Batch, m.SeqLen, m.SeqLen}
}

// Slice returns a copy of the [SeqLen, SeqLen] matrix of example b.
func (m *Mask) Slice(b int) [][]float32 {
	out := make([][]float32, m.SeqLen)
	for i := range out {
		start := (b*m.SeqLen + i) * m.SeqLen
		out[i] = append([]float32(nil), m.Data[start:start+m.SeqLen]...)
	}
	return out
}

// shapeOf returns the [batch, seq_len] of ids, or an error if the sequences have different lengths.
func shapeOf(ids [][]int) (batch, seqLen int, err error) {
	batch = len(ids)
	if batch == 0 {
		return 0, 0, nil
	}
	seqLen = len(ids[0])
	for b, seq := range ids {
		if len(seq) != seqLen {
			return 0, 0, errors.Errorf("ids must be of shape [batch, seq_len]: sequence #%d has length %d, sequence #0 has %d",
				b, len(seq), seqLen)
		}
	}
	return
}

// Padding returns the mask hiding the padding keys: [b][i][j] is 0 if ids[b][j] == padID, 1 otherwise.
// All query rows i of an example are equal.
func Padding(ids [][]int, padID int) (*Mask, error) {
	batch, seqLen, err := shapeOf(ids)
	if err != nil {
		return nil, err
	}
	m := newMask(batch, seqLen)
	for b, seq := range ids {
		row := m.Data[b*seqLen*seqLen : b*seqLen*seqLen+seqLen]
		for j, id := range seq {
			if id != padID {
				row[j] = 1
			}
		}
		for i := 1; i < seqLen; i++ {
			copy(m.Data[(b*seqLen+i)*seqLen:], row)
		}
	}
	return m, nil
}

// Causal returns the mask hiding subsequent positions: every example gets the lower triangular
// matrix of ones, diagonal included. Only the shape of ids is used, not its values.
func Causal(ids [][]int) (*Mask, error) {
	batch, seqLen, err := shapeOf(ids)
	if err != nil {
		return nil, err
	}
	return CausalFor(batch, seqLen), nil
}

// CausalFor returns the causal mask for a batch of the given shape.
func CausalFor(batch, seqLen int) *Mask {
	m := newMask(batch, seqLen)
	for b := 0; b < batch; b++ {
		for i := 0; i < seqLen; i++ {
			row := m.Data[(b*seqLen+i)*seqLen:]
			for j := 0; j <= i; j++ {
				row[j] = 1
			}
		}
	}
	return m
}

// Combine returns the element-wise product of the masks: a position is visible only if visible in all.
// Typically used to combine Padding and Causal for decoder self-attention.
func Combine(first *Mask, others ...*Mask) (*Mask, error) {
	out := &Mask{Batch: first.Batch, SeqLen: first.SeqLen, Data: append([]float32(nil), first.Data...)}
	for _, other := range others {
		if other.Batch != out.Batch || other.SeqLen != out.SeqLen {
			return nil, errors.Errorf("can't combine masks of shapes %v and %v", out.Shape(), other.Shape())
		}
		for ii, v := range other.Data {
			out.Data[ii] *= v
		}
	}
	return out, nil
}
