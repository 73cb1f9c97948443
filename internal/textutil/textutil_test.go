package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "Hello world", StripHTML("<p>Hello <b>world</b></p>"))
	assert.Equal(t, "no tags here", StripHTML("no tags here"))
}

func TestCleanText(t *testing.T) {
	// The percent sign is outside the kept character set.
	assert.Equal(t, "Profit up 20, analysts say.",
		CleanText("<div>  Profit up   20%, analysts\n say. </div>"))
	assert.Equal(t, "", CleanText("   "))
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.com", ExtractDomain("https://www.example.com/news/1"))
	assert.Equal(t, "rbc.ru", ExtractDomain("https://rbc.ru/story?id=5"))
	assert.Equal(t, "", ExtractDomain("://broken"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))

	out := Truncate("one two three four five", 14)
	assert.Equal(t, "one two...", out)
	assert.LessOrEqual(t, len(out), 14)
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    float64
	}{
		{"title and content", "Sberbank posts profit", "Sberbank grew. Sberbank paid dividends.", 0.7},
		{"title only", "Sberbank posts profit", "the bank grew", 0.5},
		{"content only", "Bank posts profit", "Sberbank grew", 0.1},
		{"content bonus capped", "Bank posts profit", "Sberbank Sberbank Sberbank Sberbank Sberbank Sberbank Sberbank", 0.5},
		{"no match", "Weather today", "sunny all day", 0.0},
		{"case insensitive", "SBERBANK profit", "sberbank grew", 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Relevance(tt.title, tt.content, "Sberbank"), 0.001)
		})
	}
}

func TestRelevanceEmptyCompany(t *testing.T) {
	assert.Zero(t, Relevance("title", "content", ""))
}
