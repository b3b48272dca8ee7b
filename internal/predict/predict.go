// Package predict offers next-word suggestions keyed on the last typed word.
package predict

import (
	"strings"
	"unicode"
)

var table = map[string][]string{
	"hello": {"there", "everyone", "world", "friend", "how are you"},
	"hi":    {"there", "everyone", "world", "friend", "how are you"},
	"hey":   {"there", "everyone", "world", "friend", "how are you"},
	"i":     {"am", "will", "would", "could", "have"},
	"am":    {"not", "going", "trying", "planning", "thinking"},
	"you":   {"are", "can", "should", "will", "might"},
	"how":   {"are", "is", "do", "does", "can"},
	"what":  {"is", "are", "do", "about", "should"},
	"the":   {"most", "best", "world", "way", "time"},
	"to":    {"get", "make", "see", "be", "do"},
	"it":    {"is", "was", "will", "should", "could"},
}

var fallback = []string{"and", "also", "what", "yes", "no"}

// Suggest returns up to five candidates for the word following text.
func Suggest(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	src := fallback
	if len(words) > 0 {
		if hits, ok := table[words[len(words)-1]]; ok {
			src = hits
		}
	}
	return append([]string(nil), src...)
}
