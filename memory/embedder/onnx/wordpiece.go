package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// maxWordRunes matches the BERT reference tokenizer: longer words map
// to [UNK] without a vocabulary search.
const maxWordRunes = 100

// Tokenizer is an uncased BERT WordPiece tokenizer.
type Tokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
	pad   int64
}

// NewTokenizer builds a tokenizer over vocab. The special tokens must
// be present.
func NewTokenizer(vocab map[string]int64) (*Tokenizer, error) {
	t := &Tokenizer{vocab: vocab}
	for name, dst := range map[string]*int64{"[CLS]": &t.cls, "[SEP]": &t.sep, "[UNK]": &t.unk, "[PAD]": &t.pad} {
		id, ok := vocab[name]
		if !ok {
			return nil, fmt.Errorf("vocabulary has no %s token", name)
		}
		*dst = id
	}
	return t, nil
}

// LoadTokenizer reads the vocabulary from a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Model struct {
			Type  string           `json:"type"`
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Model.Type != "" && doc.Model.Type != "WordPiece" {
		return nil, fmt.Errorf("%s: model type %q is not WordPiece", path, doc.Model.Type)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("%s: empty vocabulary", path)
	}
	return NewTokenizer(doc.Model.Vocab)
}

// Tokenize returns the WordPiece ids of text without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// Encode frames text as [CLS] tokens [SEP], truncated and padded to
// maxLen, and returns the ids with their attention mask.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	for i := range ids {
		ids[i] = t.pad
	}
	ids[0] = t.cls
	copy(ids[1:], tokens)
	ids[len(tokens)+1] = t.sep
	for i := 0; i < len(tokens)+2; i++ {
		mask[i] = 1
	}
	return ids, mask
}

// splitWords lowercases, strips accents and control characters, and
// splits on whitespace with each punctuation rune as its own word.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.Is(unicode.Mn, r), unicode.IsControl(r), r == 0xFFFD:
		case isPunct(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(unaccent(r))
		}
	}
	flush()
	return words
}

func isPunct(r rune) bool {
	if r < 128 {
		return (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126)
	}
	return unicode.IsPunct(r)
}

// unaccent folds the common precomposed Latin letters to their base.
// Decomposed accents are already dropped as Mn runes.
func unaccent(r rune) rune {
	if r < 0xC0 || r > 0x17F {
		return r
	}
	if base, ok := latinBase[r]; ok {
		return base
	}
	return r
}

var latinBase = func() map[rune]rune {
	groups := map[rune]string{
		'a': "àáâãäåāăą",
		'c': "çćĉċč",
		'e': "èéêëēĕėęě",
		'i': "ìíîïĩīĭįı",
		'n': "ñńņňŉ",
		'o': "òóôõöøōŏő",
		'u': "ùúûüũūŭůűų",
		'y': "ýÿŷ",
		's': "śŝşš",
		'z': "źżž",
	}
	m := make(map[rune]rune)
	for base, variants := range groups {
		for _, v := range variants {
			m[v] = base
		}
	}
	return m
}()

// wordPiece splits one word greedily into the longest vocabulary
// pieces. A word with any unmatched span becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordRunes {
		return []int64{t.unk}
	}
	if id, ok := t.vocab[word]; ok {
		return []int64{id}
	}

	var pieces []int64
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64
		found := false
		for ; end > start; end-- {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, found = t.vocab[piece]; found {
				break
			}
		}
		if !found {
			return []int64{t.unk}
		}
		pieces = append(pieces, id)
		start = end
	}
	return pieces
}
