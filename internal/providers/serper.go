package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/v0idhrt/radar/internal/models"
)

const serperNewsURL = "https://google.serper.dev/news"

// SerperProvider queries the Serper news search API.
type SerperProvider struct {
	apiKey string
	client *http.Client
	retry  int
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperResponse struct {
	News []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
		Source  string `json:"source"`
	} `json:"news"`
}

func NewSerperProvider(apiKey string, timeout time.Duration, maxRetries int) *SerperProvider {
	return &SerperProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		retry:  maxRetries,
	}
}

func (p *SerperProvider) Name() string { return "serper" }

func (p *SerperProvider) Configured() bool { return p.apiKey != "" }

func (p *SerperProvider) Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error) {
	if !p.Configured() {
		return nil, nil
	}

	build := func() (*http.Request, error) {
		body, err := json.Marshal(serperRequest{
			Query: fmt.Sprintf("%q news", companyName),
			Num:   maxResults,
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, serperNewsURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", p.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var resp serperResponse
	if err := doJSON(ctx, p.client, build, p.retry, &resp); err != nil {
		return nil, fmt.Errorf("serper search: %w", err)
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	items := make([]models.NewsItem, 0, len(resp.News))

	for _, result := range resp.News {
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
		// Serper dates are relative ("2 hours ago") or absolute; only keep
		// ones that parse cleanly.
		if ts, err := time.Parse(time.RFC3339, result.Date); err == nil {
			ts = ts.UTC()
			if !withinWindow(ts, start, end) {
				continue
			}
			item.PublishDate = &ts
		}
		items = append(items, item)
		if len(items) >= maxResults {
			break
		}
	}

	return items, nil
}
