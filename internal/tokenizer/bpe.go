package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// BPE is a byte-level BPE tokenizer loaded from a HuggingFace tokenizer.json.
// Vocabulary reports each token by the bytes it decodes to, so guides see
// " hello" rather than "Ġhello". Safe for concurrent use.
type BPE struct {
	encoder      map[string]int
	decoder      []string
	bpeRanks     map[Pair]int
	byteEncoder  map[byte]string
	byteDecoder  map[string]byte
	pattern      *regexp.Regexp
	addBOS       bool
	bosID        int
	eosID        int
	unkID        int
	ignoreMerges bool
	special      map[int]bool
	specialTexts []string

	mu    sync.Mutex
	cache map[string][]string
}

type hfPreTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers"`
}

type hfDocument struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer  hfPreTokenizer `json:"pre_tokenizer"`
	PostProcessor struct {
		Processors []struct {
			Type          string `json:"type"`
			SpecialTokens map[string]struct {
				IDs []int `json:"ids"`
			} `json:"special_tokens"`
		} `json:"processors"`
	} `json:"post_processor"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type hfTokenizerConfig struct {
	AddBOS bool   `json:"add_bos_token"`
	BOS    string `json:"bos_token"`
	EOS    string `json:"eos_token"`
}

// LoadBPE reads tokenizer.json and, if tokConfig is non-empty,
// tokenizer_config.json. eos overrides the config's eos_token when set.
func LoadBPE(tokJSON, tokConfig, eos string) (*BPE, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if tokConfig != "" {
		if cfg, err = os.ReadFile(tokConfig); err != nil {
			return nil, err
		}
	}
	return ParseBPE(data, cfg, eos)
}

func ParseBPE(tokJSON, tokConfig []byte, eos string) (*BPE, error) {
	var doc hfDocument
	if err := json.Unmarshal(tokJSON, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	if strings.ToUpper(doc.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %q", doc.Model.Type)
	}

	encoder := make(map[string]int, len(doc.Model.Vocab)+len(doc.AddedTokens))
	maxID := -1
	for tok, id := range doc.Model.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("tokenizer json: negative id %d", id)
		}
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	special := make(map[int]bool)
	for _, at := range doc.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
		if at.Special {
			special[at.ID] = true
		}
	}
	decoder := make([]string, maxID+1)
	for tok, id := range encoder {
		decoder[id] = tok
	}

	var cfg hfTokenizerConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("parse tokenizer config: %w", err)
		}
	}
	if eos == "" {
		eos = cfg.EOS
	}
	eosID, ok := encoder[eos]
	if !ok {
		return nil, fmt.Errorf("bpe: eos token %q not in vocabulary", eos)
	}
	special[eosID] = true

	bosID := -1
	if id, ok := encoder[cfg.BOS]; ok && cfg.BOS != "" {
		bosID = id
	}
	addBOS := cfg.AddBOS
	for _, proc := range doc.PostProcessor.Processors {
		if proc.Type != "TemplateProcessing" {
			continue
		}
		for _, spec := range proc.SpecialTokens {
			if len(spec.IDs) > 0 {
				bosID = spec.IDs[0]
				addBOS = true
				break
			}
		}
	}

	unkID := -1
	if id, ok := encoder[doc.Model.UnkToken]; ok && doc.Model.UnkToken != "" {
		unkID = id
	}

	byteEncoder, byteDecoder := bytesToUnicode()
	t := &BPE{
		encoder:      encoder,
		decoder:      decoder,
		bpeRanks:     parseMerges(doc.Model.Merges),
		byteEncoder:  byteEncoder,
		byteDecoder:  byteDecoder,
		pattern:      buildPretokenizer(doc.PreTokenizer),
		addBOS:       addBOS && bosID >= 0,
		bosID:        bosID,
		eosID:        eosID,
		unkID:        unkID,
		ignoreMerges: doc.Model.IgnoreMerges,
		special:      special,
		cache:        make(map[string][]string),
	}
	for id := range special {
		if id != eosID {
			t.specialTexts = append(t.specialTexts, decoder[id])
		}
	}
	sortLongestFirst(t.specialTexts)
	return t, nil
}

func parseMerges(raw []any) map[Pair]int {
	ranks := make(map[Pair]int, len(raw))
	rank := 0
	for _, m := range raw {
		line := ""
		switch v := m.(type) {
		case string:
			line = v
		case []any:
			if len(v) == 2 {
				a, aok := v[0].(string)
				b, bok := v[1].(string)
				if aok && bok {
					line = a + " " + b
				}
			}
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, b, ok := strings.Cut(line, " ")
		if !ok || strings.Contains(b, " ") {
			continue
		}
		p := Pair{A: a, B: b}
		if _, seen := ranks[p]; !seen {
			ranks[p] = rank
			rank++
		}
	}
	return ranks
}

// Encode tokenizes text. Special token texts embedded in text are emitted
// as their ids; BOS is prepended when the config asks for it.
func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	if t.addBOS {
		ids = append(ids, t.bosID)
	}
	for _, part := range splitSpecials(text, t.specialTexts) {
		if part.isSpecial {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, piece := range t.pattern.FindAllString(part.text, -1) {
			for _, sub := range t.bpe(t.byteEncode(piece)) {
				id, ok := t.encoder[sub]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("bpe piece %q: %w", sub, ErrUnknownToken)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Decode skips special tokens.
func (t *BPE) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id %d: %w", id, ErrUnknownToken)
		}
		if t.special[id] {
			continue
		}
		b = t.appendDecoded(b, t.decoder[id])
	}
	return string(b), nil
}

func (t *BPE) appendDecoded(b []byte, token string) []byte {
	for _, r := range token {
		if by, ok := t.byteDecoder[string(r)]; ok {
			b = append(b, by)
		} else {
			b = utf8.AppendRune(b, r)
		}
	}
	return b
}

// Vocabulary maps decoded token text to id. When two tokens decode to the
// same text the lower id wins; special tokens keep their literal text.
func (t *BPE) Vocabulary() map[string]int {
	out := make(map[string]int, len(t.decoder))
	for id, tok := range t.decoder {
		if tok == "" {
			continue
		}
		text := tok
		if !t.special[id] {
			text = string(t.appendDecoded(nil, tok))
		}
		if prev, ok := out[text]; ok && prev < id {
			continue
		}
		out[text] = id
	}
	return out
}

func (t *BPE) EOSTokenID() int { return t.eosID }

func (t *BPE) IsSpecial(id int) bool { return t.special[id] }

// Size is one past the largest token id.
func (t *BPE) Size() int { return len(t.decoder) }

func (t *BPE) byteEncode(s string) string {
	var b strings.Builder
	for _, by := range []byte(s) {
		b.WriteString(t.byteEncoder[by])
	}
	return b.String()
}

func (t *BPE) bpe(token string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache[token]; ok {
		return v
	}
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			out := []string{token}
			t.cache[token] = out
			return out
		}
	}
	word := splitRunes(token)
	pairs := getPairs(word)
	for len(pairs) > 0 {
		bestRank := int(^uint(0) >> 1)
		bestPair := Pair{}
		found := false
		for p := range pairs {
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank = rank
				bestPair = p
				found = true
			}
		}
		if !found {
			break
		}
		word = mergePair(word, bestPair)
		if len(word) == 1 {
			break
		}
		pairs = getPairs(word)
	}
	t.cache[token] = word
	return word
}

const gpt2Split = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

// llama3Split approximates the Llama 3 split regex without lookahead.
const llama3Split = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`

func buildPretokenizer(pre hfPreTokenizer) *regexp.Regexp {
	pat := gpt2Split
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = llama3Split
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(gpt2Split)
	}
	return re
}
