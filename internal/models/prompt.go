package models

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/words"
)

// Prompt is the immutable user query for one request. Created once per request
// and only ever read after that.
type Prompt struct {
	Text   string   `json:"text"`
	Tags   []string `json:"tags,omitempty"`
	Filter DisasterFilter
}

func NewPrompt(text string, tags []string) *Prompt {
	return &Prompt{
		Text:   strings.TrimSpace(text),
		Tags:   tags,
		Filter: ParseDisasterPrompt(text),
	}
}

func (p *Prompt) IsEmpty() bool {
	return p.Text == ""
}

// stopwords excluded from trigger matching and relevance scoring. Deliberately
// small; the scoring strategy behind the synthesizer is replaceable anyway.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "do": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "to": {}, "was": {}, "what": {},
	"with": {},
}

// Tokens segments text into normalized word tokens: unicode word boundaries,
// lowercased, punctuation-only and stopword tokens dropped.
func Tokens(text string) []string {
	var tokens []string
	seg := words.NewSegmenter([]byte(text))
	for seg.Next() {
		token := normalizeToken(string(seg.Bytes()))
		if token == "" {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// TokenSet is Tokens deduplicated into set form, for overlap counting.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range Tokens(text) {
		set[token] = struct{}{}
	}
	return set
}

// NormalizeText rejoins the normalized tokens of text with single spaces. Two
// snippets with the same normalized text are considered duplicates.
func NormalizeText(text string) string {
	return strings.Join(Tokens(text), " ")
}

func normalizeToken(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	for _, r := range token {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return token
		}
	}
	return ""
}

// TokenSetOf returns the prompt's token set including its topic tags.
func (p *Prompt) TokenSetOf() map[string]struct{} {
	set := TokenSet(p.Text)
	for _, tag := range p.Tags {
		for _, token := range Tokens(tag) {
			set[token] = struct{}{}
		}
	}
	return set
}
