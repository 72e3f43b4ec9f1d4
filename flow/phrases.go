package flow

import (
	"strings"
	"unicode"
)

var followPhrases = []string{
	"already following", "already follow", "already followed", "following already",
	"i'm following", "im following", "i am following", "following you", "follow you",
	"yes following", "i followed", "i've followed", "ive followed", "just followed",
	"followed you", "following now", "did it", "got it",
}

var followWords = map[string]struct{}{
	"done": {}, "followed": {}, "finished": {}, "complete": {}, "completed": {},
	"yes": {}, "yep": {}, "yup": {}, "yeah": {}, "ok": {}, "okay": {}, "sure": {},
}

var followExact = map[string]struct{}{
	"follow": {}, "y": {}, "k": {},
}

var followSymbols = []string{"👍", "✅", "✓"}

// IsFollowConfirmation reports whether a reply claims the sender now follows the account.
// Single words match whole words only so an address like done@shop.io is not a confirmation.
func IsFollowConfirmation(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, s := range followSymbols {
		if strings.Contains(lower, s) {
			return true
		}
	}
	if strings.Contains(lower, "@") {
		return false
	}

	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	if len(words) == 1 {
		if _, ok := followExact[words[0]]; ok {
			return true
		}
	}
	for _, w := range words {
		if _, ok := followWords[w]; ok {
			return true
		}
	}

	joined := " " + strings.Join(words, " ") + " "
	for _, p := range followPhrases {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}
