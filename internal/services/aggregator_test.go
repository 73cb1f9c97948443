package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0idhrt/radar/internal/config"
	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/providers"
)

type fakeProvider struct {
	name       string
	configured bool
	items      []models.NewsItem
	err        error
}

func (p *fakeProvider) Name() string     { return p.name }
func (p *fakeProvider) Configured() bool { return p.configured }

func (p *fakeProvider) Search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, error) {
	return p.items, p.err
}

type fakeStore struct {
	mu         sync.Mutex
	saved      []models.NewsItem
	duplicates map[string]bool
	companies  []string
	searched   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{duplicates: make(map[string]bool)}
}

func (s *fakeStore) AddCompany(ctx context.Context, name, ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies = append(s.companies, name)
	return nil
}

func (s *fakeStore) AddNews(ctx context.Context, item models.NewsItem) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicates[item.URL] {
		return 0, nil
	}
	s.saved = append(s.saved, item)
	return int64(len(s.saved)), nil
}

func (s *fakeStore) UpdateCompanyLastSearched(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searched = append(s.searched, name)
	return nil
}

func testLimiters() *ServiceRateLimiters {
	return NewServiceRateLimiters(config.RateLimitConfig{
		Default: config.RateLimitPolicy{MaxRequests: 100, WindowSeconds: 60},
	}, testLogger())
}

func providerItem(title, url string) models.NewsItem {
	now := time.Now().UTC()
	return models.NewsItem{
		CompanyName: "Sberbank",
		Title:       title,
		Content:     title + ". Sberbank announced results.",
		URL:         url,
		Source:      "fake",
		PublishDate: &now,
		CollectedAt: now,
	}
}

func TestCollectGathersAllProviders(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://a.example.com/1"),
		}},
		&fakeProvider{name: "serper", configured: true, items: []models.NewsItem{
			providerItem("Central bank raises key rate to 20 percent", "https://b.example.com/2"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, 2, result.Saved)
	assert.Zero(t, result.Duplicates)
	assert.Len(t, result.Sources, 2)
	assert.Equal(t, []string{"Sberbank"}, store.companies)
	assert.Equal(t, []string{"Sberbank"}, store.searched)
}

func TestCollectSurvivesProviderFailure(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, err: errors.New("quota exhausted")},
		&fakeProvider{name: "serper", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://b.example.com/2"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err, "one failed provider must not fail the batch")

	assert.Len(t, result.Items, 1)

	bySource := make(map[string]models.SourceResult)
	for _, src := range result.Sources {
		bySource[src.Source] = src
	}
	assert.False(t, bySource["google"].OK())
	assert.Contains(t, bySource["google"].Error, "quota exhausted")
	assert.True(t, bySource["serper"].OK())
	assert.Equal(t, 1, bySource["serper"].Count)
}

func TestCollectSkipsUnconfiguredProviders(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: false, items: []models.NewsItem{
			providerItem("should never appear", "https://a.example.com/1"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Items)
	assert.Empty(t, result.Sources)
}

func TestCollectDeduplicatesAcrossProviders(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://www.example.com/story"),
		}},
		&fakeProvider{name: "serper", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://example.com/story/"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err)

	assert.Len(t, result.Items, 1, "the same story from two providers collapses to one")
	assert.Equal(t, 1, result.Saved)
}

func TestCollectCountsDatabaseDuplicates(t *testing.T) {
	store := newFakeStore()
	store.duplicates["https://a.example.com/1"] = true

	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://a.example.com/1"),
			providerItem("Central bank raises key rate to 20 percent", "https://b.example.com/2"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Saved)
	assert.Equal(t, 1, result.Duplicates)
}

func TestCollectScoresRelevance(t *testing.T) {
	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, items: []models.NewsItem{
			providerItem("Sberbank posts record profit for the quarter", "https://a.example.com/1"),
		}},
	}, testLimiters(), store, testLogger())

	result, err := agg.Collect(context.Background(), "Sberbank", 10, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Greater(t, result.Items[0].RelevanceScore, 0.5, "title and content both mention the company")
}

func TestCollectFiltersByDateWindow(t *testing.T) {
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	stale := providerItem("Sberbank posts record profit for the quarter", "https://a.example.com/old")
	stale.PublishDate = &old
	stale.CollectedAt = old

	store := newFakeStore()
	agg := NewAggregator([]providers.Provider{
		&fakeProvider{name: "google", configured: true, items: []models.NewsItem{
			stale,
			providerItem("Central bank raises key rate to 20 percent", "https://b.example.com/new"),
		}},
	}, testLimiters(), store, testLogger())

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	result, err := agg.Collect(context.Background(), "Sberbank", 10, &cutoff, nil)
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, "https://b.example.com/new", result.Items[0].URL)
}
