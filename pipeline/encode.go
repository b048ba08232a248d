package pipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gomlx/go-nmt/internal/files"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Stats of one pass of encoding and filtering.
type Stats struct {
	// Pairs of lines read.
	Pairs int

	// Kept pairs: both sides encoded to exactly SeqLen ids.
	Kept int

	// TooLong pairs dropped because at least one side didn't fit in SeqLen.
	TooLong int

	// Malformed pairs skipped because at least one side was not valid UTF-8.
	Malformed int
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d pairs read, %d kept, %d too long, %d malformed", s.Pairs, s.Kept, s.TooLong, s.Malformed)
}

// NumBatches returns the number of batches the kept examples make.
func (s Stats) NumBatches(batchSize int, dropRemainder bool) int {
	if dropRemainder {
		return s.Kept / batchSize
	}
	return (s.Kept + batchSize - 1) / batchSize
}

type encodedPair struct {
	example   Example
	keep      bool
	malformed bool
}

func (p *Pipeline) encodePair(source, target string) encodedPair {
	if !utf8.ValidString(source) || !utf8.ValidString(target) {
		return encodedPair{malformed: true}
	}
	e := Example{Source: p.source.Encode(source), Target: p.target.Encode(target)}
	return encodedPair{example: e, keep: p.source.Fits(e.Source) && p.target.Fits(e.Target)}
}

// encodeChunk encodes lines into out (same length), sharding the work among the configured workers.
func (p *Pipeline) encodeChunk(lines [][2]string, out []encodedPair) {
	workers := p.config.Workers
	if workers <= 1 || len(lines) < 2*workers {
		for ii, pair := range lines {
			out[ii] = p.encodePair(pair[0], pair[1])
		}
		return
	}
	shardSize := (len(lines) + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for start := 0; start < len(lines); start += shardSize {
		end := min(start+shardSize, len(lines))
		g.Go(func() error {
			for ii := start; ii < end; ii++ {
				out[ii] = p.encodePair(lines[ii][0], lines[ii][1])
			}
			return nil
		})
	}
	_ = g.Wait()
}

// encodeSplit streams the split in chunks, and calls yield with the retained examples in file order.
// It returns false if yield asked to stop.
func (p *Pipeline) encodeSplit(ctx context.Context, split Split, stats *Stats, yield func(Example) bool) (more bool, err error) {
	source, err := files.OpenLines(split.Source)
	if err != nil {
		return false, &CorpusLoadError{Path: split.Source, Err: err}
	}
	defer func() { _ = source.Close() }()
	target, err := files.OpenLines(split.Target)
	if err != nil {
		return false, &CorpusLoadError{Path: split.Target, Err: err}
	}
	defer func() { _ = target.Close() }()

	chunkSize := p.config.ChunkSize
	lines := make([][2]string, 0, chunkSize)
	encoded := make([]encodedPair, chunkSize)
	lineNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		lines = lines[:0]
		eof := false
		for len(lines) < chunkSize {
			sourceLine, sourceOk := source.Next()
			targetLine, targetOk := target.Next()
			if !sourceOk || !targetOk {
				if err := source.Err(); err != nil {
					return false, &CorpusLoadError{Path: split.Source, Err: err}
				}
				if err := target.Err(); err != nil {
					return false, &CorpusLoadError{Path: split.Target, Err: err}
				}
				if sourceOk != targetOk {
					return false, errors.WithMessagef(ErrMisaligned, "split %q: one side ended after line %d",
						split.Name, lineNum+len(lines))
				}
				eof = true
				break
			}
			lines = append(lines, [2]string{sourceLine, targetLine})
		}

		p.encodeChunk(lines, encoded[:len(lines)])
		for ii := range lines {
			lineNum++
			pair := encoded[ii]
			stats.Pairs++
			switch {
			case pair.malformed:
				stats.Malformed++
				klog.Warningf("split %q, line %d: invalid UTF-8, skipping the pair", split.Name, lineNum)
			case !pair.keep:
				stats.TooLong++
			default:
				stats.Kept++
				if !yield(pair.example) {
					return false, nil
				}
			}
		}
		if eof {
			return true, nil
		}
	}
}
