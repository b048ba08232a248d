package pipeline

import (
	"context"
	"io"
	"iter"

	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/types/tensors"
)

// Dataset adapts a Pipeline to GoMLX's train.Dataset.
//
// Each Yield returns the inputs [SourceInputs, TargetInputs], both int32 tensors shaped
// [batch, seq_len-1], and the labels [Labels], a float32 tensor shaped [batch, seq_len-1, vocab_size].
// In Test mode Yield returns io.EOF at the end of the splits, until Reset is called.
type Dataset struct {
	name     string
	ctx      context.Context
	pipeline *Pipeline

	next func() (*Batch, error, bool)
	stop func()
}

// Compile time assert that Dataset implements train.Dataset.
var _ train.Dataset = &Dataset{}

// NewDataset creates a GoMLX dataset from the pipeline. Labels must be enabled in the pipeline Config.
func NewDataset(ctx context.Context, name string, p *Pipeline) *Dataset {
	return &Dataset{name: name, ctx: ctx, pipeline: p}
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// Yield implements train.Dataset. The first value returned is always ds.
func (ds *Dataset) Yield() (dsValue any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if ds.next == nil {
		ds.next, ds.stop = iter.Pull2(ds.pipeline.Batches(ds.ctx))
	}
	batch, err, ok := ds.next()
	if !ok {
		return nil, nil, nil, io.EOF
	}
	if err != nil {
		return nil, nil, nil, err
	}
	inputs = []*tensors.Tensor{
		tensors.FromFlatDataAndDimensions(flattenInt32(batch.SourceInputs), batch.Size, batch.InputLen),
		tensors.FromFlatDataAndDimensions(flattenInt32(batch.TargetInputs), batch.Size, batch.InputLen),
	}
	if batch.Labels != nil {
		labels = []*tensors.Tensor{
			tensors.FromFlatDataAndDimensions(batch.Labels, batch.Size, batch.InputLen, batch.VocabSize),
		}
	}
	return ds, inputs, labels, nil
}

// Reset implements train.Dataset: the next Yield starts again from the beginning of the files.
func (ds *Dataset) Reset() {
	ds.Close()
}

// Close releases the underlying iteration (and its open files).
func (ds *Dataset) Close() {
	if ds.stop != nil {
		ds.stop()
	}
	ds.next, ds.stop = nil, nil
}

func flattenInt32(rows [][]int) []int32 {
	var n int
	for _, row := range rows {
		n += len(row)
	}
	flat := make([]int32, 0, n)
	for _, row := range rows {
		for _, v := range row {
			flat = append(flat, int32(v))
		}
	}
	return flat
}
