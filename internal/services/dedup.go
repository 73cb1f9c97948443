package services

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/v0idhrt/radar/internal/models"
)

// DefaultSimilarityThreshold is the content-similarity ratio above which two
// items are considered the same underlying article.
const DefaultSimilarityThreshold = 0.85

// NormalizeURL reduces a URL to a comparable form: the "www." prefix, the
// trailing slash and the query string are irrelevant for identity.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
	path := strings.TrimSuffix(parsed.Path, "/")
	return fmt.Sprintf("%s://%s%s", parsed.Scheme, host, path)
}

// Similarity computes a character-level sequence similarity ratio in
// [0.0, 1.0]. The comparison is case-insensitive and symmetric: matched
// characters are found by locating the longest common substring and
// recursing on the unmatched flanks, then ratio = 2*matches/(len_a+len_b).
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	matches := matchingChars(ra, rb)
	return 2.0 * float64(matches) / float64(len(ra)+len(rb))
}

// matchingChars counts characters covered by recursively chosen longest
// common substrings.
func matchingChars(a, b []rune) int {
	aStart, bStart, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingChars(a[:aStart], b[:bStart])
	total += matchingChars(a[aStart+size:], b[bStart+size:])
	return total
}

// longestCommonBlock finds the longest common substring of a and b using a
// rolling DP row. Ties resolve to the earliest position in a, then b.
func longestCommonBlock(a, b []rune) (aStart, bStart, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					aStart = i - size
					bStart = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return aStart, bStart, size
}

// Deduplicate merges duplicate news items into clusters and returns one
// representative per cluster. Pass one removes exact URL duplicates; pass
// two folds items whose title or content similarity with an accepted
// representative meets the threshold. Comparisons are O(n^2), which is fine
// at per-company batch sizes of tens to low hundreds.
//
// The function is pure apart from assigning DedupGroup on its results:
// applying it to its own output is a no-op.
func Deduplicate(items []models.NewsItem, threshold float64) []models.NewsItem {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	urlGroups := make(map[string]string)
	survivors := make([]models.NewsItem, 0, len(items))

	for _, item := range items {
		normalized := NormalizeURL(item.URL)
		if _, seen := urlGroups[normalized]; seen {
			continue
		}
		item.DedupGroup = dedupGroupID(item.URL, item.Title)
		urlGroups[normalized] = item.DedupGroup
		survivors = append(survivors, item)
	}

	out := make([]models.NewsItem, 0, len(survivors))
	for _, item := range survivors {
		duplicate := false
		for _, accepted := range out {
			if Similarity(item.Title, accepted.Title) >= threshold ||
				Similarity(item.Content, accepted.Content) >= threshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, item)
		}
	}
	return out
}

// SortByRelevance orders items descending by relevance score, then by
// publish date (falling back to collection time). The sort is stable so
// remaining ties keep their input order.
func SortByRelevance(items []models.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RelevanceScore != items[j].RelevanceScore {
			return items[i].RelevanceScore > items[j].RelevanceScore
		}
		return items[i].EffectiveDate().After(items[j].EffectiveDate())
	})
}

// dedupGroupID derives a deterministic cluster id from the first
// occurrence's URL and title.
func dedupGroupID(rawURL, title string) string {
	sum := sha256.Sum256([]byte(rawURL + "|" + title))
	return fmt.Sprintf("%x", sum[:8])
}
