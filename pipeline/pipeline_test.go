package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomlx/go-nmt/internal/files"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/gomlx/go-nmt/tokenizers/wordlevel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Source vocabulary: <pad>=0 <unk>=1 <s>=2 </s>=3 a=4 b=5 c=6 d=7 e=8.
// Target vocabulary: <pad>=0 <unk>=1 <s>=2 </s>=3 x=4 y=5 z=6.
var (
	sourceWords = []string{"<unk>", "<s>", "</s>", "a", "b", "c", "d", "e"}
	targetWords = []string{"<unk>", "<s>", "</s>", "x", "y", "z"}
)

// trainSource/trainTarget with SeqLen 5: pairs #1 and #4 (0-based) don't fit.
var (
	trainSource = []string{"a b", "a b c d", "c", "", "a", "d e a", "e"}
	trainTarget = []string{"x y", "x", "y z", "", "x y z w", "z z z", "x"}
)

type fixture struct {
	dir            string
	source, target api.Tokenizer
}

func writeLines(t *testing.T, filePath string, lines []string) {
	t.Helper()
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	writeLines(t, filepath.Join(f.dir, "vocab.src"), sourceWords)
	writeLines(t, filepath.Join(f.dir, "vocab.tgt"), targetWords)
	var err error
	f.source, err = wordlevel.Load(filepath.Join(f.dir, "vocab.src"))
	require.NoError(t, err)
	f.target, err = wordlevel.Load(filepath.Join(f.dir, "vocab.tgt"))
	require.NoError(t, err)
	f.addSplit(t, "train", trainSource, trainTarget)
	return f
}

func (f *fixture) addSplit(t *testing.T, prefix string, source, target []string) Split {
	t.Helper()
	split := Split{
		Name:   prefix,
		Source: filepath.Join(f.dir, prefix+".src"),
		Target: filepath.Join(f.dir, prefix+".tgt"),
	}
	writeLines(t, split.Source, source)
	writeLines(t, split.Target, target)
	return split
}

func (f *fixture) split(prefix string) Split {
	return Split{Name: prefix, Source: filepath.Join(f.dir, prefix+".src"), Target: filepath.Join(f.dir, prefix+".tgt")}
}

func collectExamples(t *testing.T, p *Pipeline) []Example {
	t.Helper()
	var examples []Example
	for e, err := range p.Examples(context.Background()) {
		require.NoError(t, err)
		examples = append(examples, e)
	}
	return examples
}

func collectBatches(t *testing.T, p *Pipeline, limit int) []*Batch {
	t.Helper()
	var batches []*Batch
	for b, err := range p.Batches(context.Background()) {
		require.NoError(t, err)
		batches = append(batches, b)
		if len(batches) == limit {
			break
		}
	}
	return batches
}

func TestExamplesFilter(t *testing.T) {
	f := newFixture(t)
	p, err := New(NewConfig(5, 2), Test, f.source, f.target, f.split("train"))
	require.NoError(t, err)

	examples := collectExamples(t, p)
	require.Len(t, examples, 5)
	for _, e := range examples {
		assert.Len(t, e.Source, 5)
		assert.Len(t, e.Target, 5)
	}
	assert.Equal(t, Example{Source: []int{2, 4, 5, 3, 0}, Target: []int{2, 4, 5, 3, 0}}, examples[0])
	assert.Equal(t, Example{Source: []int{2, 6, 3, 0, 0}, Target: []int{2, 5, 6, 3, 0}}, examples[1])
	assert.Equal(t, Example{Source: []int{2, 3, 0, 0, 0}, Target: []int{2, 3, 0, 0, 0}}, examples[2])
	assert.Equal(t, Example{Source: []int{2, 7, 8, 4, 3}, Target: []int{2, 6, 6, 6, 3}}, examples[3])
	assert.Equal(t, Example{Source: []int{2, 8, 3, 0, 0}, Target: []int{2, 4, 3, 0, 0}}, examples[4])

	stats, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pairs: 7, Kept: 5, TooLong: 2}, stats)
	assert.Equal(t, 3, stats.NumBatches(2, false))
	assert.Equal(t, 2, stats.NumBatches(2, true))
}

func TestExactLengthBoundary(t *testing.T) {
	f := newFixture(t)
	// With SeqLen 5: 3 words wrap to exactly 5 (kept), 4 words wrap to 6 (dropped).
	split := f.addSplit(t, "boundary", []string{"a b c", "a b c d", "a b c"}, []string{"x y z", "x y z", "x y z x"})
	p, err := New(NewConfig(5, 10), Test, f.source, f.target, split)
	require.NoError(t, err)
	examples := collectExamples(t, p)
	require.Len(t, examples, 1)
	assert.Equal(t, []int{2, 4, 5, 6, 3}, examples[0].Source)
}

func TestTestModeBatches(t *testing.T) {
	f := newFixture(t)
	config := NewConfig(5, 2).WithEpsilon(0.1)
	p, err := New(config, Test, f.source, f.target, f.split("train"))
	require.NoError(t, err)

	batches := collectBatches(t, p, -1)
	require.Len(t, batches, 3, "⌈5/2⌉ batches")
	assert.Equal(t, []int{2, 2, 1}, []int{batches[0].Size, batches[1].Size, batches[2].Size})

	first := batches[0]
	assert.Equal(t, 4, first.InputLen)
	assert.Equal(t, 7, first.VocabSize)
	assert.Equal(t, []int{4, 5, 3, 0}, first.SourceInputs[0])
	assert.Equal(t, []int{2, 4, 5, 3}, first.TargetInputs[0])
	assert.Equal(t, []int{4, 5, 3, 0}, first.TargetOutputs[0])
	require.Len(t, first.Labels, 2*4*7)

	// Label for position 0 of example 0 is token x=4.
	labels := first.LabelsAt(0, 0)
	var sum float64
	for id, v := range labels {
		sum += float64(v)
		if id == 4 {
			assert.InDelta(t, 0.9+0.1/7, v, 1e-6)
		} else {
			assert.InDelta(t, 0.1/7, v, 1e-6)
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	// Padding positions are labeled too: position 3 of example 0 is <pad>.
	assert.InDelta(t, 0.9+0.1/7, first.LabelsAt(0, 3)[0], 1e-6)

	// Drop remainder.
	p, err = New(NewConfig(5, 2).WithDropRemainder(true), Test, f.source, f.target, f.split("train"))
	require.NoError(t, err)
	assert.Len(t, collectBatches(t, p, -1), 2, "⌊5/2⌋ batches")

	// Without labels.
	p, err = New(NewConfig(5, 2).WithLabels(false), Test, f.source, f.target, f.split("train"))
	require.NoError(t, err)
	for _, b := range collectBatches(t, p, -1) {
		assert.Nil(t, b.Labels)
	}
}

func TestTestModeSplitOrder(t *testing.T) {
	f := newFixture(t)
	first := f.addSplit(t, "tst2012", []string{"a", "b"}, []string{"x", "x"})
	second := f.addSplit(t, "tst2013", []string{"c", "d", "e"}, []string{"y", "y", "y"})
	p, err := New(NewConfig(4, 2), Test, f.source, f.target, first, second)
	require.NoError(t, err)

	var sources [][]int
	for _, b := range collectBatches(t, p, -1) {
		sources = append(sources, b.SourceInputs...)
	}
	assert.Equal(t, [][]int{{4, 3, 0}, {5, 3, 0}, {6, 3, 0}, {7, 3, 0}, {8, 3, 0}}, sources)

	// Reversed order of splits, reversed output.
	p, err = New(NewConfig(4, 5), Test, f.source, f.target, second, first)
	require.NoError(t, err)
	batches := collectBatches(t, p, -1)
	require.Len(t, batches, 1)
	assert.Equal(t, []int{6, 3, 0}, batches[0].SourceInputs[0])
	assert.Equal(t, []int{5, 3, 0}, batches[0].SourceInputs[4])
}

func TestTrainModeRepeats(t *testing.T) {
	f := newFixture(t)
	p, err := New(NewConfig(5, 2).WithSeed(42), Train, f.source, f.target, f.split("train"))
	require.NoError(t, err)

	// 5 examples per epoch: batches of 2, 2, 1 repeat forever.
	batches := collectBatches(t, p, 30)
	require.Len(t, batches, 30)
	for ii, b := range batches {
		expected := 2
		if ii%3 == 2 {
			expected = 1
		}
		assert.Equal(t, expected, b.Size, "batch #%d", ii)
	}

	// Every epoch has the same examples, and the same seed reproduces the same batches.
	epochSources := func(batches []*Batch) []string {
		var keys []string
		for _, b := range batches {
			for _, s := range b.SourceInputs {
				keys = append(keys, fmt.Sprint(s))
			}
		}
		return keys
	}
	assert.ElementsMatch(t, epochSources(batches[0:3]), epochSources(batches[3:6]))
	again := collectBatches(t, p, 30)
	assert.Equal(t, batches, again)
}

func TestTrainModeWithoutShuffle(t *testing.T) {
	f := newFixture(t)
	p, err := New(NewConfig(5, 5).WithShuffleWindow(1), Train, f.source, f.target, f.split("train"))
	require.NoError(t, err)
	examples := collectExamples(t, p)
	batches := collectBatches(t, p, 2)
	for _, b := range batches {
		for ii, e := range examples {
			assert.Equal(t, e.Source[1:], b.SourceInputs[ii])
		}
	}
}

func TestTrainModeEmptyEpoch(t *testing.T) {
	f := newFixture(t)
	split := f.addSplit(t, "long", []string{"a b c d e a b"}, []string{"x"})
	p, err := New(NewConfig(5, 2), Train, f.source, f.target, split)
	require.NoError(t, err)
	var gotErr error
	for _, err := range p.Batches(context.Background()) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, ErrEmptyEpoch)
}

func TestConstructionErrors(t *testing.T) {
	f := newFixture(t)

	missing := f.split("missing")
	_, err := New(NewConfig(5, 2), Test, f.source, f.target, missing)
	require.Error(t, err)
	var corpusErr *CorpusLoadError
	require.True(t, errors.As(err, &corpusErr))
	assert.Equal(t, missing.Source, corpusErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	misaligned := f.addSplit(t, "misaligned", []string{"a", "b", "c"}, []string{"x", "y"})
	_, err = New(NewConfig(5, 2), Test, f.source, f.target, f.split("train"), misaligned)
	require.ErrorIs(t, err, ErrMisaligned)

	_, err = New(NewConfig(1, 2), Test, f.source, f.target, f.split("train"))
	require.Error(t, err)
	_, err = New(NewConfig(5, 0), Test, f.source, f.target, f.split("train"))
	require.Error(t, err)
	_, err = New(NewConfig(5, 2), Test, f.source, f.target)
	require.Error(t, err)
	_, err = New(NewConfig(5, 2).WithEpsilon(2), Test, f.source, f.target, f.split("train"))
	require.Error(t, err)
	require.Error(t, NewConfig(5, 2).WithEpsilon(math.NaN()).Validate())
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	f := newFixture(t)
	split := f.addSplit(t, "utf8", []string{"a", "b \xff", "c"}, []string{"x", "y", "z"})
	p, err := New(NewConfig(5, 10), Test, f.source, f.target, split)
	require.NoError(t, err)
	examples := collectExamples(t, p)
	require.Len(t, examples, 2)
	assert.Equal(t, []int{2, 4, 3, 0, 0}, examples[0].Source)
	assert.Equal(t, []int{2, 4, 3, 0, 0}, examples[0].Target)
	assert.Equal(t, []int{2, 6, 3, 0, 0}, examples[1].Source)
	assert.Equal(t, []int{2, 6, 3, 0, 0}, examples[1].Target, "alignment preserved after the skipped pair")

	stats, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 2, stats.Kept)
}

func TestParallelEncodingPreservesOrder(t *testing.T) {
	f := newFixture(t)
	var source, target []string
	words := []string{"a", "b", "c", "d", "e", "unknown"}
	for ii := 0; ii < 1000; ii++ {
		n := ii % 5
		var s, tt []string
		for jj := 0; jj < n; jj++ {
			s = append(s, words[(ii+jj)%len(words)])
			tt = append(tt, targetWords[3+(ii*jj)%3])
		}
		source = append(source, strings.Join(s, " "))
		target = append(target, strings.Join(tt, " "))
	}
	split := f.addSplit(t, "large", source, target)

	sequential, err := New(NewConfig(5, 16).WithWorkers(1).WithChunkSize(7), Test, f.source, f.target, split)
	require.NoError(t, err)
	parallel, err := New(NewConfig(5, 16).WithWorkers(8).WithChunkSize(64), Test, f.source, f.target, split)
	require.NoError(t, err)
	expected := collectExamples(t, sequential)
	assert.Len(t, expected, 800)
	assert.Equal(t, expected, collectExamples(t, parallel))
}

func TestContextCancellation(t *testing.T) {
	f := newFixture(t)
	p, err := New(NewConfig(5, 2), Train, f.source, f.target, f.split("train"))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range p.Batches(ctx) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, context.Canceled)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("train")
	require.NoError(t, err)
	assert.Equal(t, Train, mode)
	mode, err = ParseMode("test")
	require.NoError(t, err)
	assert.Equal(t, "test", mode.String())
	_, err = ParseMode("eval")
	require.Error(t, err)
}

func TestNewTrainAndNewTest(t *testing.T) {
	f := newFixture(t)
	test := f.addSplit(t, "test", []string{"a"}, []string{"x"})

	p, err := NewTrain(NewConfig(5, 2), f.source, f.target, f.split("train"))
	require.NoError(t, err)
	assert.Equal(t, Train, p.Mode())
	assert.Len(t, collectBatches(t, p, 7), 7)

	p, err = NewTest(NewConfig(5, 2), f.source, f.target, test, f.split("train"))
	require.NoError(t, err)
	assert.Equal(t, Test, p.Mode())
	assert.Equal(t, []Split{test, f.split("train")}, p.Splits())
	batches := collectBatches(t, p, 0)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{4, 3, 0, 0}, batches[0].SourceInputs[0])
}

func TestLineLongerThanMaxLineSize(t *testing.T) {
	f := newFixture(t)
	split := f.addSplit(t, "long", []string{"a", strings.Repeat("b ", 20)}, []string{"x", "y"})
	defer func(size int) { files.MaxLineSize = size }(files.MaxLineSize)
	files.MaxLineSize = 16

	_, err := New(NewConfig(5, 2), Test, f.source, f.target, split)
	require.Error(t, err)
	var loadErr *CorpusLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, split.Source, loadErr.Path)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
