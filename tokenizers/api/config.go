package api

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config holds how a tokenizer spells its reserved tokens, and how it normalizes text.
//
// It mirrors the fields of a HuggingFace "tokenizer_config.json" relevant to word-level vocabularies,
// so the same file format can be used.
//
// The extra field ConfigFile holds the path to the file with the config, if it was read from one.
type Config struct {
	ConfigFile     string `json:"-"`
	TokenizerClass string `json:"tokenizer_class"`

	UnkToken string `json:"unk_token"`
	BosToken string `json:"bos_token"`
	EosToken string `json:"eos_token"`
	PadToken string `json:"pad_token"`

	DoLowerCase bool `json:"do_lower_case"`

	// NormalizeUnicode composes accents (Unicode NFC) of vocabulary entries and of the encoded text,
	// so precomposed and decomposed spellings of a word share one id.
	NormalizeUnicode bool `json:"normalize_unicode"`

	// SkipEmptyLines drops blank vocabulary lines after the reserved entries, instead of giving
	// the empty word an id.
	SkipEmptyLines bool `json:"skip_empty_lines"`
}

// DefaultConfig returns the configuration of the vocabularies distributed with the Stanford NMT datasets:
// "<pad>" is inserted at id 0, and the file is expected to start with "<unk>", "<s>" and "</s>".
func DefaultConfig() *Config {
	return &Config{
		TokenizerClass: "WordLevel",
		UnkToken:       "<unk>",
		BosToken:       "<s>",
		EosToken:       "</s>",
		PadToken:       "<pad>",
		DoLowerCase:    true,
	}
}

// ParseConfigFile parses the given file (a tokenizer_config.json file) into a Config structure.
// Fields missing from the file keep the values of DefaultConfig.
func ParseConfigFile(filePath string) (*Config, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file %q", filePath)
	}
	config, err := ParseConfigContent(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "read from file %q", filePath)
	}
	config.ConfigFile = filePath
	return config, nil
}

// ParseConfigContent parses the given json content (of a tokenizer_config.json file) into a Config structure.
// Fields missing from the content keep the values of DefaultConfig.
func ParseConfigContent(jsonContent []byte) (*Config, error) {
	config := DefaultConfig()
	err := json.Unmarshal(jsonContent, config)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer_config json content")
	}
	return config, nil
}
