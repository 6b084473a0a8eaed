package embedding

import (
	"hash/fnv"
	"strings"
)

// Encoding is the BERT-style model input for one text, padded to a fixed length.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Len returns the number of attended positions, including the special tokens.
func (e Encoding) Len() int {
	n := 0
	for _, m := range e.AttentionMask {
		n += int(m)
	}
	return n
}

// Tokenizer turns text into model input of exactly maxTokens positions.
type Tokenizer interface {
	Encode(text string, maxTokens int) Encoding
}

const (
	tokenCLS       = 101
	tokenSEP       = 102
	firstWordToken = 1000
	vocabularySize = 30000
)

// WordHashTokenizer assigns each lowercased word a token ID by hashing it into the
// vocabulary. It needs no vocab file, at the cost of occasional collisions.
type WordHashTokenizer struct{}

// Encode frames the words of text with CLS and SEP and zero-pads the rest.
func (WordHashTokenizer) Encode(text string, maxTokens int) Encoding {
	if maxTokens < 2 {
		maxTokens = 256
	}
	enc := Encoding{
		InputIDs:      make([]int64, maxTokens),
		AttentionMask: make([]int64, maxTokens),
		TokenTypeIDs:  make([]int64, maxTokens),
	}

	ids := append([]int64{tokenCLS}, wordTokens(text, maxTokens-2)...)
	ids = append(ids, tokenSEP)
	for i, id := range ids {
		enc.InputIDs[i] = id
		enc.AttentionMask[i] = 1
	}
	return enc
}

func wordTokens(text string, limit int) []int64 {
	words := tokenizeWords(text)
	if len(words) > limit {
		words = words[:limit]
	}
	ids := make([]int64, len(words))
	for i, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		ids[i] = firstWordToken + int64(h.Sum32()%(vocabularySize-firstWordToken))
	}
	return ids
}

// TruncateToTokens keeps at most maxTokens whitespace-separated words of text.
func TruncateToTokens(text string, maxTokens int) string {
	words := strings.Fields(text)
	if maxTokens <= 0 || len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}
