// Package tokenizer turns free text into the normalized terms used as index
// keys. The same Normalizer must analyze documents and queries; an index
// stores the Options it was built with so query time can rebuild it.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenRunes is the shortest token kept after splitting.
const minTokenRunes = 3

// Options selects the optional parts of the pipeline.
type Options struct {
	// KeepDigits keeps digit runs such as model years as tokens. When false
	// they are replaced by whitespace before splitting.
	KeepDigits bool `json:"keep_digits" cbor:"keep_digits" yaml:"keepDigits"`
	// Stemmer is one of StemmerSuffix (default), StemmerSnowball or StemmerNone.
	Stemmer string `json:"stemmer" cbor:"stemmer" yaml:"stemmer"`
}

// DefaultOptions strips digits and uses the suffix stemmer.
func DefaultOptions() Options {
	return Options{KeepDigits: false, Stemmer: StemmerSuffix}
}

// Normalizer is a stateless text analysis pipeline. It is safe for
// concurrent use.
type Normalizer struct {
	opts Options
	stem stemFunc
}

// New returns a Normalizer for opts. An unknown stemmer name is rejected.
func New(opts Options) (*Normalizer, error) {
	stem, err := stemmerFor(opts.Stemmer)
	if err != nil {
		return nil, err
	}
	if opts.Stemmer == "" {
		opts.Stemmer = StemmerSuffix
	}
	return &Normalizer{opts: opts, stem: stem}, nil
}

// Default returns a Normalizer with DefaultOptions.
func Default() *Normalizer {
	return &Normalizer{opts: DefaultOptions(), stem: stemSuffix}
}

// Options returns the options the Normalizer was created with.
func (n *Normalizer) Options() Options {
	return n.opts
}

// Normalize lowercases text, removes punctuation and symbols (and digits
// unless KeepDigits), splits on whitespace, drops stop-words and short
// tokens, and stems what is left. Duplicates are preserved in order.
func (n *Normalizer) Normalize(text string) []string {
	if text == "" {
		return []string{}
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			return ' '
		case !n.opts.KeepDigits && unicode.IsDigit(r):
			return ' '
		}
		return r
	}, strings.ToLower(text))

	words := strings.Fields(cleaned)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if utf8.RuneCountInString(word) < minTokenRunes {
			continue
		}
		if IsStopWord(word) {
			continue
		}
		stemmed := n.stem(word)
		if stemmed == "" {
			continue
		}
		terms = append(terms, stemmed)
	}
	return terms
}

// Normalize analyzes text with the default pipeline.
func Normalize(text string) []string {
	return Default().Normalize(text)
}
