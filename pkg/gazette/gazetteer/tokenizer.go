package gazetteer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token is a normalized word together with its character span in the
// original text.
type Token struct {
	Text  string
	Start int // rune offset, inclusive
	End   int // rune offset, exclusive
}

// Tokenize splits text into normalized tokens. A token is a maximal run of
// letters, digits, combining marks or underscores; everything else is a
// separator. Offsets are rune offsets into text.
func Tokenize(text string) []Token {
	var tokens []Token
	var current strings.Builder
	start := -1
	pos := 0

	for _, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = pos
			}
			current.WriteRune(r)
		} else if start >= 0 {
			tokens = append(tokens, Token{Text: Normalize(current.String()), Start: start, End: pos})
			current.Reset()
			start = -1
		}
		pos++
	}

	// Don't forget the last token
	if start >= 0 {
		tokens = append(tokens, Token{Text: Normalize(current.String()), Start: start, End: pos})
	}

	return tokens
}

// Normalize applies NFC composition and Unicode case folding.
// A Caser carries state, so one is built per call.
func Normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '_'
}

func tokenTexts(text string) []string {
	toks := Tokenize(text)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}
