package models

import "time"

// NewsItem represents a single collected news article about a company.
type NewsItem struct {
	ID             int64      `json:"id,omitempty"`
	CompanyName    string     `json:"company_name"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	URL            string     `json:"url"`
	Source         string     `json:"source"`
	PublishDate    *time.Time `json:"publish_date,omitempty"`
	CollectedAt    time.Time  `json:"collected_at"`
	RelevanceScore float64    `json:"relevance_score,omitempty"`
	DedupGroup     string     `json:"dedup_group,omitempty"`
}

// EffectiveDate returns the publish date when known, falling back to the
// collection timestamp for ordering purposes.
func (n *NewsItem) EffectiveDate() time.Time {
	if n.PublishDate != nil {
		return *n.PublishDate
	}
	return n.CollectedAt
}

// Company tracks a company that news has been collected for.
type Company struct {
	ID           int64      `json:"id,omitempty"`
	Name         string     `json:"name"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSearched *time.Time `json:"last_searched,omitempty"`
}

// SourceResult reports the outcome of a single provider within one collection
// batch. A failed provider contributes zero items without failing the batch.
type SourceResult struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the provider completed without an error.
func (r SourceResult) OK() bool {
	return r.Error == ""
}
