package textutil

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	htmlTagRe     = regexp.MustCompile(`<.*?>`)
	specialCharRe = regexp.MustCompile(`[^\p{L}\p{N}\s.,!?\-:;']`)
)

// StripHTML removes HTML tags from text.
func StripHTML(text string) string {
	return htmlTagRe.ReplaceAllString(text, "")
}

// CleanText strips HTML tags, collapses whitespace and drops special
// characters while keeping basic punctuation.
func CleanText(text string) string {
	text = StripHTML(text)
	text = strings.Join(strings.Fields(text), " ")
	text = specialCharRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractDomain returns the host of a URL without the "www." prefix, or an
// empty string when the URL cannot be parsed.
func ExtractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

// Truncate shortens text to maxLen, cutting at the last word boundary and
// appending an ellipsis.
func Truncate(text string, maxLen int) string {
	const suffix = "..."
	if len(text) <= maxLen {
		return text
	}
	cut := text[:maxLen-len(suffix)]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + suffix
}

// Relevance scores how relevant a title/content pair is to a company name.
// A title match contributes a fixed 0.5; each content occurrence adds 0.1 up
// to another 0.5. The result is clamped to [0, 1].
func Relevance(title, content, companyName string) float64 {
	if companyName == "" {
		return 0
	}

	score := 0.0
	company := strings.ToLower(companyName)

	if strings.Contains(strings.ToLower(title), company) {
		score += 0.5
	}

	occurrences := strings.Count(strings.ToLower(content), company)
	if occurrences > 0 {
		bonus := float64(occurrences) * 0.1
		if bonus > 0.5 {
			bonus = 0.5
		}
		score += bonus
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
