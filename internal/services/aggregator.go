package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/models"
	"github.com/v0idhrt/radar/internal/providers"
	"github.com/v0idhrt/radar/internal/textutil"
)

// NewsStore is the persistence surface the aggregator needs.
type NewsStore interface {
	AddCompany(ctx context.Context, name, ticker string) error
	AddNews(ctx context.Context, item models.NewsItem) (int64, error)
	UpdateCompanyLastSearched(ctx context.Context, name string) error
}

// CollectionResult summarises one aggregation batch for a company.
type CollectionResult struct {
	CompanyName string                `json:"company_name"`
	Items       []models.NewsItem     `json:"items"`
	Sources     []models.SourceResult `json:"sources"`
	Saved       int                   `json:"saved"`
	Duplicates  int                   `json:"duplicates"`
}

// Aggregator fans a company search out to every configured provider in
// parallel, scores and deduplicates the combined results and persists the
// survivors. A failed provider is reported per source and never fails the
// batch.
type Aggregator struct {
	providers []providers.Provider
	limiters  *ServiceRateLimiters
	store     NewsStore
	logger    *logrus.Logger
}

func NewAggregator(provs []providers.Provider, limiters *ServiceRateLimiters, store NewsStore, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		providers: provs,
		limiters:  limiters,
		store:     store,
		logger:    logger,
	}
}

// Sources lists provider names and whether each is configured.
func (a *Aggregator) Sources() map[string]bool {
	out := make(map[string]bool, len(a.providers))
	for _, p := range a.providers {
		out[p.Name()] = p.Configured()
	}
	return out
}

// Collect runs the full pipeline for one company: parallel provider search,
// relevance scoring, date filtering, deduplication, ordering, persistence.
func (a *Aggregator) Collect(ctx context.Context, companyName string, maxResults int, start, end *time.Time) (*CollectionResult, error) {
	items, sources := a.search(ctx, companyName, maxResults, start, end)

	filtered := items[:0]
	for _, item := range items {
		if !inWindow(item, start, end) {
			continue
		}
		item.RelevanceScore = textutil.Relevance(item.Title, item.Content, companyName)
		filtered = append(filtered, item)
	}

	deduped := Deduplicate(filtered, DefaultSimilarityThreshold)
	SortByRelevance(deduped)

	result := &CollectionResult{
		CompanyName: companyName,
		Items:       deduped,
		Sources:     sources,
	}

	if err := a.persist(ctx, companyName, deduped, result); err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"company":     companyName,
		"collected":   len(items),
		"after_dedup": len(deduped),
		"saved":       result.Saved,
		"duplicates":  result.Duplicates,
	}).Info("Collection batch complete")

	return result, nil
}

// search runs every configured provider concurrently and gathers results.
// Each provider passes through its own rate limiter before making requests.
func (a *Aggregator) search(ctx context.Context, companyName string, maxResults int, start, end *time.Time) ([]models.NewsItem, []models.SourceResult) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		items   []models.NewsItem
		sources []models.SourceResult
	)

	for _, p := range a.providers {
		if !p.Configured() {
			continue
		}

		wg.Add(1)
		go func(p providers.Provider) {
			defer wg.Done()

			result := models.SourceResult{Source: p.Name()}

			if !a.limiters.Acquire(ctx, p.Name(), true) {
				result.Error = "rate limit exceeded"
				mu.Lock()
				sources = append(sources, result)
				mu.Unlock()
				return
			}

			found, err := p.Search(ctx, companyName, maxResults, start, end)
			if err != nil {
				a.logger.WithFields(logrus.Fields{
					"source":  p.Name(),
					"company": companyName,
				}).WithError(err).Warn("Provider search failed")
				result.Error = err.Error()
			}
			result.Count = len(found)

			mu.Lock()
			items = append(items, found...)
			sources = append(sources, result)
			mu.Unlock()
		}(p)
	}

	wg.Wait()

	sort.Slice(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })
	return items, sources
}

// persist saves deduplicated items, counting fresh inserts against rows the
// database already held.
func (a *Aggregator) persist(ctx context.Context, companyName string, items []models.NewsItem, result *CollectionResult) error {
	if err := a.store.AddCompany(ctx, companyName, ""); err != nil {
		return err
	}

	for _, item := range items {
		id, err := a.store.AddNews(ctx, item)
		if err != nil {
			a.logger.WithField("url", item.URL).WithError(err).Warn("Failed to save news item")
			continue
		}
		if id == 0 {
			result.Duplicates++
		} else {
			result.Saved++
		}
	}

	return a.store.UpdateCompanyLastSearched(ctx, companyName)
}

// inWindow checks an item's effective date against optional request bounds.
func inWindow(item models.NewsItem, start, end *time.Time) bool {
	ts := item.EffectiveDate()
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}
