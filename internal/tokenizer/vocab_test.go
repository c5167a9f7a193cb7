package tokenizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabEncodeLongestMatch(t *testing.T) {
	t.Parallel()
	v, err := NewVocab([]string{"</s>", "a", "b", "ab", "abc"}, "</s>")
	require.NoError(t, err)

	ids, err := v.Encode("abcab")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3}, ids)

	text, err := v.Decode([]int{4, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "abca", text)
}

func TestVocabEncodeUnknown(t *testing.T) {
	t.Parallel()
	v, err := NewVocab([]string{"</s>", "a"}, "</s>")
	require.NoError(t, err)

	_, err = v.Encode("ax")
	require.ErrorIs(t, err, ErrUnknownToken)

	_, err = v.Decode([]int{7})
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestNewVocabValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		tokens []string
		eos    string
	}{
		{"empty", nil, "</s>"},
		{"missing eos", []string{"a"}, "</s>"},
		{"duplicate", []string{"</s>", "a", "a"}, "</s>"},
		{"blank token", []string{"</s>", ""}, "</s>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVocab(tt.tokens, tt.eos)
			assert.Error(t, err)
		})
	}
}

func TestVocabularyIsCopy(t *testing.T) {
	t.Parallel()
	v, err := NewVocab([]string{"</s>", "a"}, "</s>")
	require.NoError(t, err)
	m := v.Vocabulary()
	m["zzz"] = 9
	_, ok := v.Vocabulary()["zzz"]
	assert.False(t, ok)
	assert.Equal(t, 0, v.EOSTokenID())
	assert.True(t, v.IsSpecial(0))
}

func TestParseVocabJSONHuggingFace(t *testing.T) {
	t.Parallel()
	raw := []byte(`{
		"model": {"type": "BPE", "vocab": {"hello": 0, "Ġworld": 1, "!": 3}},
		"added_tokens": [{"id": 4, "content": "<|endoftext|>", "special": true}]
	}`)
	v, err := ParseVocabJSON(raw, "<|endoftext|>")
	require.NoError(t, err)

	assert.Equal(t, 4, v.EOSTokenID())
	assert.Equal(t, 5, v.Size())
	assert.True(t, v.IsSpecial(2), "gap ids are special placeholders")

	ids, err := v.Encode("hello world!")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 3}, ids)
}

func TestLoadVocabJSONFlat(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"<eos>": 0, "x": 1, "y": 2}`), 0o644))

	v, err := LoadVocabJSON(path, "<eos>")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"<eos>": 0, "x": 1, "y": 2}, v.Vocabulary())
}
