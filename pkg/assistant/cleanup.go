package assistant

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	markupPattern     = regexp.MustCompile(`[*#]`)

	junkPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfor\s+(men|women|kids|boys|girls|ladies)\b`),
		regexp.MustCompile(`(?i)\b(new|hot|sale|2024|2025|2026)\b`),
		regexp.MustCompile(`(?i)\b(high quality|free shipping|fast shipping)\b`),
		regexp.MustCompile(`(?i)\d+\s*(pcs|pieces|pack|set)\b`),
	}
)

// fallbackHooks are used when the model cannot write an intro line.
var fallbackHooks = []string{
	"Friends, check out this crazy deal!",
	"This one is too good to skip!",
	"A real bargain, grab it while it lasts!",
	"Special offer for our channel, don't miss it!",
	"Found you something great today!",
	"Honestly worth it, take a look!",
	"Low price, solid quality, what are you waiting for?",
	"Deal of the day, just click!",
	"A golden chance, don't let it slip!",
	"I liked this one so much I had to share it!",
	"Unbelievable price for this quality!",
	"The deal you've been waiting for is here!",
	"Check this out before it's gone!",
	"Hot pick at a very reasonable price!",
	"Today's offer is serious, don't be late!",
}

// CleanupTitle normalizes a listing title without a model: commas and
// extra whitespace collapse, common marketplace filler is removed and the
// first letter is capitalized.
func CleanupTitle(title string) string {
	cleaned := strings.ReplaceAll(title, ",", " ")
	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))

	for _, p := range junkPatterns {
		cleaned = strings.TrimSpace(p.ReplaceAllString(cleaned, ""))
	}
	cleaned = strings.TrimSpace(whitespacePattern.ReplaceAllString(cleaned, " "))

	r, size := utf8.DecodeRuneInString(cleaned)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(r)) + cleaned[size:]
}

// stripMarkup removes markdown emphasis and heading characters.
func stripMarkup(s string) string {
	return strings.TrimSpace(markupPattern.ReplaceAllString(s, ""))
}

func randomHook() string {
	return fallbackHooks[rand.IntN(len(fallbackHooks))]
}
