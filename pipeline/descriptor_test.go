package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/go-nmt/datasets"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyDescriptor() datasets.Descriptor {
	return datasets.Descriptor{
		Name:       "tiny",
		SourceLang: "src",
		TargetLang: "tgt",
		Train:      "train",
		Test:       []string{"test2013", "test2012"},
		Vocab:      "vocab",
	}
}

func TestFromDescriptor(t *testing.T) {
	f := newFixture(t)
	f.addSplit(t, "test2012", []string{"a"}, []string{"x"})
	f.addSplit(t, "test2013", []string{"b", "c"}, []string{"y", "z"})
	d := tinyDescriptor()

	p, err := FromDescriptor(NewConfig(5, 2), Test, d, f.dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []Split{f.split("test2013"), f.split("test2012")}, p.Splits())
	assert.Equal(t, 9, p.SourceEncoder().VocabSize())
	assert.Equal(t, 7, p.TargetEncoder().VocabSize())

	p, err = FromDescriptor(NewConfig(5, 2), Test, d, f.dir, nil, "test2012")
	require.NoError(t, err)
	assert.Equal(t, []Split{f.split("test2012")}, p.Splits())

	p, err = FromDescriptor(NewConfig(5, 2), Train, d, f.dir, nil, "test2012")
	require.NoError(t, err)
	assert.Equal(t, []Split{f.split("train")}, p.Splits())

	// The tokenizer configuration must match the vocabulary files.
	config := api.DefaultConfig()
	config.UnkToken = "[UNK]"
	_, err = FromDescriptor(NewConfig(5, 2), Test, d, f.dir, config)
	require.Error(t, err)
}

func TestLoadTokenizersCustomConfig(t *testing.T) {
	dir := t.TempDir()
	writeLines(t, filepath.Join(dir, "vocab.src"), []string{"[UNK]", "[S]", "[/S]", "a", "", "b"})
	writeLines(t, filepath.Join(dir, "vocab.tgt"), []string{"[UNK]", "[S]", "[/S]", "x"})
	d := tinyDescriptor()

	_, _, err := LoadTokenizers(d, dir, nil)
	require.Error(t, err)

	config, err := api.ParseConfigContent([]byte(
		`{"unk_token": "[UNK]", "bos_token": "[S]", "eos_token": "[/S]", "skip_empty_lines": true}`))
	require.NoError(t, err)
	source, target, err := LoadTokenizers(d, dir, config)
	require.NoError(t, err)
	assert.Equal(t, 6, source.VocabSize())
	assert.Equal(t, 5, target.VocabSize())

	config.SkipEmptyLines = false
	source, _, err = LoadTokenizers(d, dir, config)
	require.NoError(t, err)
	assert.Equal(t, 7, source.VocabSize())
}
