package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigContent(t *testing.T) {
	config, err := ParseConfigContent([]byte(`{"unk_token": "[UNK]", "do_lower_case": false}`))
	require.NoError(t, err)
	assert.Equal(t, "[UNK]", config.UnkToken)
	assert.Equal(t, "<s>", config.BosToken)
	assert.Equal(t, "<pad>", config.PadToken)
	assert.False(t, config.DoLowerCase)
	assert.False(t, config.NormalizeUnicode)
	assert.False(t, config.SkipEmptyLines)

	config, err = ParseConfigContent([]byte(`{"normalize_unicode": true, "skip_empty_lines": true}`))
	require.NoError(t, err)
	assert.True(t, config.NormalizeUnicode)
	assert.True(t, config.SkipEmptyLines)
	assert.True(t, config.DoLowerCase)

	_, err = ParseConfigContent([]byte(`{`))
	require.Error(t, err)
}

func TestParseConfigFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "tokenizer_config.json")
	require.NoError(t, os.WriteFile(filePath, []byte(`{"tokenizer_class": "SentencePiece"}`), 0644))
	config, err := ParseConfigFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "SentencePiece", config.TokenizerClass)
	assert.Equal(t, filePath, config.ConfigFile)

	_, err = ParseConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestSpecialTokenString(t *testing.T) {
	assert.Equal(t, "pad", TokPad.String())
	assert.Equal(t, "end_of_sentence", TokEndOfSentence.String())
	assert.Equal(t, "SpecialToken(17)", SpecialToken(17).String())
}
