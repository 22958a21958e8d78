package tokenizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/portuguese"

	apperrors "github.com/Adithya-Monish-Kumar-K/carsearch/pkg/errors"
)

// Stemmer names accepted in Options.Stemmer.
const (
	StemmerSuffix   = "suffix"
	StemmerSnowball = "snowball"
	StemmerNone     = "none"
)

// stemFunc reduces a lowercased token to its root. An empty result means the
// token was all suffix and is dropped by the caller.
type stemFunc func(word string) string

// suffixes are stripped one at a time, longest match first.
var suffixes = func() []string {
	s := []string{
		"s", "es", "ns", "ais", "is", "os", "as", "eis", "res",
		"mente", "dade", "ção", "ções", "ico", "ica", "icos", "icas",
	}
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
	return s
}()

// stemSuffix removes the single longest inflectional or derivational suffix.
func stemSuffix(word string) string {
	for _, suffix := range suffixes {
		if strings.HasSuffix(word, suffix) {
			return word[:len(word)-len(suffix)]
		}
	}
	return word
}

func stemSnowball(word string) string {
	env := snowballstem.NewEnv(word)
	portuguese.Stem(env)
	return env.Current()
}

func stemNone(word string) string {
	return word
}

func stemmerFor(name string) (stemFunc, error) {
	switch name {
	case "", StemmerSuffix:
		return stemSuffix, nil
	case StemmerSnowball:
		return stemSnowball, nil
	case StemmerNone:
		return stemNone, nil
	default:
		return nil, fmt.Errorf("unknown stemmer %q: %w", name, apperrors.ErrInvalidInput)
	}
}
