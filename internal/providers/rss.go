package providers

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/textutil"
)

// RSSProvider scans a configured set of news feeds for items mentioning the
// company. Feeds need no credentials, so the provider is configured whenever
// at least one feed URL is present.
type RSSProvider struct {
	feeds  []string
	parser *gofeed.Parser
}

func NewRSSProvider(feeds []string) *RSSProvider {
	return &RSSProvider{
		feeds:  feeds,
		parser: gofeed.NewParser(),
	}
}

func (p *RSSProvider) Name() string { return "rss" }

func (p *RSSProvider) Configured() bool { return len(p.feeds) > 0 }

func (p *RSSProvider) Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error) {
	if !p.Configured() {
		return nil, nil
	}

	company := strings.ToLower(companyName)
	now := time.Now().UTC()

	var items []models.NewsItem
	var lastErr error

	for _, feedURL := range p.feeds {
		if len(items) >= maxResults {
			break
		}

		feed, err := p.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			// One broken feed must not sink the rest.
			lastErr = err
			continue
		}

		for _, entry := range feed.Items {
			if len(items) >= maxResults {
				break
			}

			title := strings.ToLower(entry.Title)
			description := strings.ToLower(entry.Description)
			if !strings.Contains(title, company) && !strings.Contains(description, company) {
				continue
			}

			item := models.NewsItem{
				CompanyName: companyName,
				Title:       entry.Title,
				Content:     textutil.CleanText(entry.Description),
				URL:         entry.Link,
				Source:      p.Name(),
				CollectedAt: now,
			}
			if entry.PublishedParsed != nil {
				ts := entry.PublishedParsed.UTC()
				if !withinWindow(ts, start, end) {
					continue
				}
				item.PublishDate = &ts
			}
			items = append(items, item)
		}
	}

	if len(items) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return items, nil
}
