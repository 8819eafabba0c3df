// Package stem normalizes vocabulary values to their stemmed form.
package stem

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/kljensen/snowball"

	"github.com/cognicore/gazette/pkg/gazette/gazetteer"
)

// Stemmer maps a string and a language code to its stemmed form. It must be
// a pure function.
type Stemmer interface {
	Stem(text, language string) string
}

// Func adapts a plain function to the Stemmer interface.
type Func func(text, language string) string

// Stem implements Stemmer.
func (f Func) Stem(text, language string) string { return f(text, language) }

// DefaultCacheSize is the number of memoized (language, word) stems kept by
// a Snowball stemmer.
const DefaultCacheSize = 10000

// snowballLanguages maps ISO 639-1 codes to Snowball algorithm names.
var snowballLanguages = map[string]string{
	"en": "english",
	"fr": "french",
	"es": "spanish",
	"ru": "russian",
	"sv": "swedish",
	"no": "norwegian",
	"nb": "norwegian",
	"hu": "hungarian",
}

// Snowball stems every word of a string with the Snowball algorithm of the
// language. Words of unsupported languages are only lower-cased.
type Snowball struct {
	cache *lru.Cache[string, string]
}

// NewSnowball creates a Snowball stemmer memoizing up to cacheSize words.
// A non-positive size selects DefaultCacheSize.
func NewSnowball(cacheSize int) *Snowball {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Snowball{cache: cache}
}

// Supports reports whether a Snowball algorithm exists for the language.
func Supports(language string) bool {
	_, ok := snowballLanguages[strings.ToLower(language)]
	return ok
}

// Stem implements Stemmer. Text is split into words the way the gazetteer
// tokenizes it, so "running-shoes" stems to "run shoe". Words are separated
// by a single space in the output.
func (s *Snowball) Stem(text, language string) string {
	tokens := gazetteer.Tokenize(text)
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = s.stemWord(tok.Text, strings.ToLower(language))
	}
	return strings.Join(words, " ")
}

func (s *Snowball) stemWord(word, language string) string {
	word = strings.ToLower(word)
	key := language + "\x00" + word
	if stemmed, ok := s.cache.Get(key); ok {
		return stemmed
	}

	stemmed := word
	if algo, ok := snowballLanguages[language]; ok {
		if out, err := snowball.Stem(word, algo, true); err == nil && out != "" {
			stemmed = out
		}
	}
	s.cache.Add(key, stemmed)
	return stemmed
}
