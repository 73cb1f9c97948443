package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/v0idhrt/radar/internal/models"
)

const googleSearchURL = "https://www.googleapis.com/customsearch/v1"

// googleMaxPageSize is the hard per-request cap of the Custom Search API.
const googleMaxPageSize = 10

// GoogleProvider queries the Google Custom Search JSON API.
type GoogleProvider struct {
	apiKey string
	cx     string
	client *http.Client
	retry  int
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Pagemap struct {
			Metatags []map[string]string `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

// NewGoogleProvider creates the adapter. It stays unconfigured without both
// the API key and the search engine id.
func NewGoogleProvider(apiKey, cx string, timeout time.Duration, maxRetries int) *GoogleProvider {
	return &GoogleProvider{
		apiKey: apiKey,
		cx:     cx,
		client: &http.Client{Timeout: timeout},
		retry:  maxRetries,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Configured() bool { return p.apiKey != "" && p.cx != "" }

func (p *GoogleProvider) Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error) {
	if !p.Configured() {
		return nil, nil
	}

	var items []models.NewsItem
	seen := make(map[string]struct{})

	for offset := 0; len(items) < maxResults && offset < maxResults; offset += googleMaxPageSize {
		pageSize := maxResults - len(items)
		if pageSize > googleMaxPageSize {
			pageSize = googleMaxPageSize
		}

		build := func() (*http.Request, error) {
			params := url.Values{}
			params.Set("key", p.apiKey)
			params.Set("cx", p.cx)
			params.Set("q", fmt.Sprintf("%q news", companyName))
			params.Set("num", strconv.Itoa(pageSize))
			params.Set("start", strconv.Itoa(offset+1))
			return http.NewRequest(http.MethodGet, googleSearchURL+"?"+params.Encode(), nil)
		}

		var resp googleResponse
		if err := doJSON(ctx, p.client, build, p.retry, &resp); err != nil {
			return nil, fmt.Errorf("google search: %w", err)
		}
		if len(resp.Items) == 0 {
			break
		}

		now := time.Now().UTC()
		for _, result := range resp.Items {
			if result.Link == "" {
				continue
			}
			if _, dup := seen[result.Link]; dup {
				continue
			}
			seen[result.Link] = struct{}{}

			item := models.NewsItem{
				CompanyName: companyName,
				Title:       result.Title,
				Content:     result.Snippet,
				URL:         result.Link,
				Source:      p.Name(),
				CollectedAt: now,
			}
			if published := googlePublishDate(result.Pagemap.Metatags); published != nil {
				if !withinWindow(*published, start, end) {
					continue
				}
				item.PublishDate = published
			}
			items = append(items, item)
			if len(items) >= maxResults {
				break
			}
		}
	}

	return items, nil
}

// googlePublishDate pulls a publish timestamp out of page metatags when the
// site exposes one.
func googlePublishDate(metatags []map[string]string) *time.Time {
	for _, tags := range metatags {
		for _, key := range []string{"article:published_time", "og:published_time", "date"} {
			if raw, ok := tags[key]; ok {
				if ts, err := time.Parse(time.RFC3339, raw); err == nil {
					ts = ts.UTC()
					return &ts
				}
			}
		}
	}
	return nil
}
