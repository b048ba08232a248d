package datasets

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownDataset is returned by Registry.Lookup for names not registered.
var ErrUnknownDataset = errors.New("unknown dataset")

// Descriptor of a translation dataset: its languages, its files and how they are organized.
//
// Corpus files are named "<prefix>.<lang>", and vocabulary files "<vocab>.<lang>".
type Descriptor struct {
	Name       string `yaml:"name"`
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`

	// URL is the location where Files can be downloaded from: the file URL is URL + "/" + file name.
	URL   string   `yaml:"url"`
	Files []string `yaml:"files"`

	// Train is the file prefix of the training split.
	Train string `yaml:"train"`

	// Test are the file prefixes of the test splits, in the order they are evaluated.
	Test []string `yaml:"test"`

	// Vocab is the file prefix of the vocabularies.
	Vocab string `yaml:"vocab"`

	// TokenizerClass to use for the vocabulary files, see tokenizers.New. Defaults to "WordLevel".
	TokenizerClass string `yaml:"tokenizer_class,omitempty"`
}

// cleanRelativeFilePath cleans fileName as a relative path, never going above its root.
func cleanRelativeFilePath(fileName string) string {
	return filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+fileName), "/"))
}

// Validate checks that the required fields are set, and that file names don't escape the dataset directory.
func (d Descriptor) Validate() error {
	for _, field := range []struct{ name, value string }{
		{"name", d.Name}, {"source_lang", d.SourceLang}, {"target_lang", d.TargetLang},
		{"train", d.Train}, {"vocab", d.Vocab},
	} {
		if field.value == "" {
			return errors.Errorf("dataset %q: field %q is required", d.Name, field.name)
		}
	}
	if len(d.Test) == 0 {
		return errors.Errorf("dataset %q: at least one test split is required", d.Name)
	}
	for _, fileName := range d.Files {
		if path.IsAbs(fileName) || cleanRelativeFilePath(fileName) != filepath.FromSlash(fileName) {
			return errors.Errorf("dataset %q contains illegal file name %q -- it cannot be an absolute path, nor contain \"..\"",
				d.Name, fileName)
		}
	}
	return nil
}

// FileURL returns the URL from where to download fileName.
func (d Descriptor) FileURL(fileName string) string {
	return strings.TrimSuffix(d.URL, "/") + "/" + fileName
}

// SplitFiles returns the source and target corpus files of the split with the given prefix, under dir.
func (d Descriptor) SplitFiles(dir, prefix string) (source, target string) {
	base := path.Join(dir, prefix)
	return base + "." + d.SourceLang, base + "." + d.TargetLang
}

// VocabFiles returns the source and target vocabulary files under dir.
func (d Descriptor) VocabFiles(dir string) (source, target string) {
	return d.SplitFiles(dir, d.Vocab)
}

func (d Descriptor) clone() Descriptor {
	d.Files = slices.Clone(d.Files)
	d.Test = slices.Clone(d.Test)
	return d
}

// Registry of dataset descriptors, by name. It is immutable once created, and safe for concurrent use.
type Registry struct {
	names  []string
	byName map[string]Descriptor
}

// NewRegistry validates the descriptors and returns a Registry with them.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, found := r.byName[d.Name]; found {
			return nil, errors.Errorf("dataset %q defined more than once", d.Name)
		}
		r.byName[d.Name] = d.clone()
		r.names = append(r.names, d.Name)
	}
	return r, nil
}

// Lookup returns a copy of the descriptor of the named dataset.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, found := r.byName[name]
	if !found {
		return Descriptor{}, errors.WithMessagef(ErrUnknownDataset, "dataset %q (known datasets: %q)", name, r.names)
	}
	return d.clone(), nil
}

// Names of the registered datasets, in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

type registryFile struct {
	Datasets []Descriptor `yaml:"datasets"`
}

// ParseRegistry parses YAML content with a top-level "datasets" list of descriptors.
func ParseRegistry(content []byte) (*Registry, error) {
	var parsed registryFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, errors.Wrapf(err, "failed to parse datasets registry")
	}
	return NewRegistry(parsed.Datasets...)
}

// LoadRegistry reads the YAML registry in filePath, see ParseRegistry.
func LoadRegistry(filePath string) (*Registry, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %q", filePath)
	}
	r, err := ParseRegistry(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "read from file %q", filePath)
	}
	return r, nil
}

// DefaultRegistry returns the registry with the datasets prepared by the Stanford NLP group
// (https://nlp.stanford.edu/projects/nmt/).
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Descriptor{
			Name:       "iwslt15",
			SourceLang: "en",
			TargetLang: "vi",
			URL:        "https://nlp.stanford.edu/projects/nmt/data/iwslt15.en-vi/",
			Files: []string{
				"train.en", "train.vi", "tst2012.en", "tst2012.vi", "tst2013.en",
				"tst2013.vi", "vocab.en", "vocab.vi",
			},
			Train: "train",
			Test:  []string{"tst2012", "tst2013"},
			Vocab: "vocab",
		},
		Descriptor{
			Name:       "wmt14",
			SourceLang: "en",
			TargetLang: "de",
			URL:        "https://nlp.stanford.edu/projects/nmt/data/wmt14.en-de/",
			Files: []string{
				"train.en", "train.de", "train.align", "newstest2012.en",
				"newstest2012.de", "newstest2013.en", "newstest2013.de",
				"newstest2014.en", "newstest2014.de", "newstest2015.en",
				"newstest2015.de", "vocab.50K.en", "vocab.50K.de", "dict.en-de",
			},
			Train: "train",
			Test:  []string{"newstest2012", "newstest2013", "newstest2014", "newstest2015"},
			Vocab: "vocab.50K",
		},
		Descriptor{
			Name:       "wmt15",
			SourceLang: "en",
			TargetLang: "cs",
			URL:        "https://nlp.stanford.edu/projects/nmt/data/wmt15.en-cs/",
			Files: []string{
				"train.en", "train.cs", "newstest2013.en", "newstest2013.cs",
				"newstest2014.en", "newstest2014.cs", "newstest2015.en",
				"newstest2015.cs", "vocab.1K.en", "vocab.1K.cs", "vocab.10K.en",
				"vocab.10K.cs", "vocab.20K.en", "vocab.20K.cs", "vocab.50K.en",
				"vocab.50K.cs",
			},
			Train: "train",
			Test:  []string{"newstest2013", "newstest2014", "newstest2015"},
			Vocab: "vocab.50K",
		},
	)
	if err != nil {
		panicf("invalid default datasets registry: %+v", err)
	}
	return r
}
