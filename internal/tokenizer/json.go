package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Load reads a tokenizer file. A tokenizer.json with a BPE model and merges
// yields a BPE tokenizer (configPath, if set, is its tokenizer_config.json);
// anything else is read as a vocabulary by ParseVocabJSON.
func Load(path, configPath, eos string) (Sized, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc hfDocument
	if err := json.Unmarshal(raw, &doc); err == nil && strings.EqualFold(doc.Model.Type, "BPE") && len(doc.Model.Merges) > 0 {
		var cfg []byte
		if configPath != "" {
			if cfg, err = os.ReadFile(configPath); err != nil {
				return nil, err
			}
		}
		bpe, err := ParseBPE(raw, cfg, eos)
		if err != nil {
			return nil, err
		}
		return bpe, nil
	}
	vocab, err := ParseVocabJSON(raw, eos)
	if err != nil {
		return nil, err
	}
	return vocab, nil
}

// LoadVocabJSON reads the vocabulary of a HuggingFace tokenizer.json file (or
// a bare {"token": id} object) into a Vocab. Byte-level (Ġ) and
// sentencepiece (▁) space markers are rewritten to plain spaces so the guide
// sees the text a token actually decodes to.
func LoadVocabJSON(path, eos string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseVocabJSON(raw, eos)
}

// ParseVocabJSON is LoadVocabJSON over an in-memory document.
func ParseVocabJSON(raw []byte, eos string) (*Vocab, error) {
	var doc hfDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	vocab := doc.Model.Vocab
	if len(vocab) == 0 {
		var flat map[string]int
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, fmt.Errorf("tokenizer json has no model.vocab and is not a flat vocab: %w", err)
		}
		vocab = flat
	}

	specials := make(map[string]bool)
	for _, at := range doc.AddedTokens {
		if _, ok := vocab[at.Content]; !ok {
			vocab[at.Content] = at.ID
		}
		if at.Special {
			specials[at.Content] = true
		}
	}

	maxID := -1
	for _, id := range vocab {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer json: negative id %d", id)
		}
		maxID = max(maxID, id)
	}
	tokens := make([]string, maxID+1)
	var unused []string
	for tok, id := range vocab {
		if specials[tok] || tok == eos {
			tokens[id] = tok
			continue
		}
		tokens[id] = normalizePiece(tok)
	}
	for id, tok := range tokens {
		if tok == "" {
			tokens[id] = fmt.Sprintf("<unused_%d>", id)
			unused = append(unused, tokens[id])
		}
	}

	v, err := NewVocab(tokens, eos)
	if err != nil {
		return nil, err
	}
	for tok := range specials {
		if tok == eos {
			continue
		}
		if err := v.MarkSpecial(tok); err != nil {
			return nil, err
		}
	}
	if err := v.MarkSpecial(unused...); err != nil {
		return nil, err
	}
	return v, nil
}

func normalizePiece(tok string) string {
	tok = strings.ReplaceAll(tok, "Ġ", " ")
	tok = strings.ReplaceAll(tok, "▁", " ")
	tok = strings.ReplaceAll(tok, "Ċ", "\n")
	return tok
}
