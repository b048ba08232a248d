package pipeline

import (
	"github.com/gomlx/go-nmt/datasets"
	"github.com/gomlx/go-nmt/tokenizers"
	"github.com/gomlx/go-nmt/tokenizers/api"
	"github.com/pkg/errors"
)

// LoadTokenizers creates the source and target tokenizers from the vocabulary files of the dataset
// stored in dir. The target tokenizer uses the target language vocabulary.
//
// If config is nil, api.DefaultConfig is used. The descriptor's TokenizerClass, if set, takes precedence.
func LoadTokenizers(d datasets.Descriptor, dir string, config *api.Config) (source, target api.Tokenizer, err error) {
	if config == nil {
		config = api.DefaultConfig()
	}
	configCopy := *config
	if d.TokenizerClass != "" {
		configCopy.TokenizerClass = d.TokenizerClass
	}
	sourceFile, targetFile := d.VocabFiles(dir)
	if source, err = tokenizers.New(&configCopy, sourceFile); err != nil {
		return nil, nil, errors.WithMessagef(err, "dataset %q source vocabulary", d.Name)
	}
	if target, err = tokenizers.New(&configCopy, targetFile); err != nil {
		return nil, nil, errors.WithMessagef(err, "dataset %q target vocabulary", d.Name)
	}
	return source, target, nil
}

// SplitsOf returns the splits of the dataset stored in dir for the given mode: the training split, or
// the test splits. In Test mode, testPrefixes, if given, replace the descriptor's test splits.
func SplitsOf(d datasets.Descriptor, dir string, mode Mode, testPrefixes ...string) []Split {
	prefixes := []string{d.Train}
	if mode == Test {
		prefixes = d.Test
		if len(testPrefixes) > 0 {
			prefixes = testPrefixes
		}
	}
	splits := make([]Split, 0, len(prefixes))
	for _, prefix := range prefixes {
		source, target := d.SplitFiles(dir, prefix)
		splits = append(splits, Split{Name: prefix, Source: source, Target: target})
	}
	return splits
}

// FromDescriptor creates the pipeline over the dataset stored in dir, with its own vocabularies
// loaded with tokenizerConfig (api.DefaultConfig if nil). See SplitsOf for the splits used.
func FromDescriptor(config *Config, mode Mode, d datasets.Descriptor, dir string, tokenizerConfig *api.Config,
	testPrefixes ...string) (*Pipeline, error) {
	source, target, err := LoadTokenizers(d, dir, tokenizerConfig)
	if err != nil {
		return nil, err
	}
	p, err := New(config, mode, source, target, SplitsOf(d, dir, mode, testPrefixes...)...)
	if err != nil {
		return nil, errors.WithMessagef(err, "dataset %q", d.Name)
	}
	return p, nil
}
