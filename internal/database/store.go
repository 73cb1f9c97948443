package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/v0idhrt/radar/internal/models"
)

// querier is the subset of pgx.Conn the store needs; tests substitute a mock.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists companies, collected news and anomaly events through the
// bounded connection pool. News inserts are individually atomic with
// insert-or-ignore semantics on (url, company_name).
type Store struct {
	pool   *ConnPool
	logger *logrus.Logger
}

func NewStore(pool *ConnPool, logger *logrus.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		ticker TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL,
		last_searched TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS news (
		id BIGSERIAL PRIMARY KEY,
		company_name TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		publish_date TIMESTAMPTZ,
		collected_at TIMESTAMPTZ NOT NULL,
		relevance_score DOUBLE PRECISION,
		dedup_group TEXT,
		UNIQUE (url, company_name)
	)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT NOT NULL,
		z_score DOUBLE PRECISION NOT NULL,
		delta NUMERIC NOT NULL,
		price NUMERIC NOT NULL,
		timeframe TEXT,
		score DOUBLE PRECISION NOT NULL,
		is_significant BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_news_company ON news (company_name)`,
	`CREATE INDEX IF NOT EXISTS idx_news_source ON news (source)`,
	`CREATE INDEX IF NOT EXISTS idx_news_publish_date ON news (publish_date)`,
	`CREATE INDEX IF NOT EXISTS idx_news_dedup_group ON news (dedup_group)`,
	`CREATE INDEX IF NOT EXISTS idx_anomalies_ticker ON anomalies (ticker)`,
}

// InitSchema creates tables and indexes if they do not exist.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		for _, stmt := range schemaStatements {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("init schema: %w", err)
			}
		}
		s.logger.Info("Database schema initialized")
		return nil
	})
}

// HealthCheck verifies a pooled handle can serve a trivial query.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		var one int
		return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
	})
}

// AddCompany inserts a company if it is not already known.
func (s *Store) AddCompany(ctx context.Context, name, ticker string) error {
	return s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		return insertCompany(ctx, conn, name, ticker)
	})
}

func insertCompany(ctx context.Context, q querier, name, ticker string) error {
	var tickerArg any
	if ticker != "" {
		tickerArg = ticker
	}
	_, err := q.Exec(ctx,
		`INSERT INTO companies (name, ticker, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, tickerArg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert company: %w", err)
	}
	return nil
}

// GetCompanyByTicker looks up a company by ticker symbol. A missing company
// yields (nil, nil).
func (s *Store) GetCompanyByTicker(ctx context.Context, ticker string) (*models.Company, error) {
	var company *models.Company
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		found, err := selectCompany(ctx, conn,
			`SELECT id, name, created_at, last_searched FROM companies WHERE ticker = $1`, ticker)
		company = found
		return err
	})
	return company, err
}

// GetCompany looks up a company by name. A missing company yields (nil, nil).
func (s *Store) GetCompany(ctx context.Context, name string) (*models.Company, error) {
	var company *models.Company
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		found, err := selectCompany(ctx, conn,
			`SELECT id, name, created_at, last_searched FROM companies WHERE name = $1`, name)
		company = found
		return err
	})
	return company, err
}

func selectCompany(ctx context.Context, q querier, query string, arg any) (*models.Company, error) {
	var company models.Company
	err := q.QueryRow(ctx, query, arg).Scan(
		&company.ID, &company.Name, &company.CreatedAt, &company.LastSearched,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select company: %w", err)
	}
	return &company, nil
}

// UpdateCompanyLastSearched stamps the company's last collection time.
func (s *Store) UpdateCompanyLastSearched(ctx context.Context, name string) error {
	return s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`UPDATE companies SET last_searched = $1 WHERE name = $2`,
			time.Now().UTC(), name,
		)
		if err != nil {
			return fmt.Errorf("update company last searched: %w", err)
		}
		return nil
	})
}

// AddNews inserts one news item, returning its id. A zero id with a nil
// error signals the (url, company) pair already existed and the insert was
// ignored.
func (s *Store) AddNews(ctx context.Context, item models.NewsItem) (int64, error) {
	var id int64
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		inserted, err := insertNews(ctx, conn, item)
		id = inserted
		return err
	})
	return id, err
}

func insertNews(ctx context.Context, q querier, item models.NewsItem) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO news (company_name, title, content, url, source,
			publish_date, collected_at, relevance_score, dedup_group)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (url, company_name) DO NOTHING
		 RETURNING id`,
		item.CompanyName, item.Title, item.Content, item.URL, item.Source,
		item.PublishDate, item.CollectedAt, item.RelevanceScore, item.DedupGroup,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Duplicate; the insert was ignored.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("insert news: %w", err)
	}
	return id, nil
}

// AddAnomaly records an evaluated anomaly event and returns its id.
func (s *Store) AddAnomaly(ctx context.Context, event models.AnomalyEvent, score models.AnomalyScore) (int64, error) {
	var id int64
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		return conn.QueryRow(ctx,
			`INSERT INTO anomalies (ticker, z_score, delta, price, timeframe, score, is_significant, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			event.Ticker, event.ZScore, event.Delta.String(), event.Price.String(),
			event.Timeframe, score.Score, score.IsSignificant, event.ParsedTimestamp(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert anomaly: %w", err)
	}
	return id, nil
}

// GetNewsByCompany returns stored news for a company, optionally bounded by
// a publish-date window, newest first.
func (s *Store) GetNewsByCompany(ctx context.Context, companyName string, start, end *time.Time, limit int) ([]models.NewsItem, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, company_name, title, content, url, source,
			publish_date, collected_at, relevance_score, dedup_group
		FROM news WHERE company_name = $1`
	args := []any{companyName}

	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND COALESCE(publish_date, collected_at) >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND COALESCE(publish_date, collected_at) <= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY publish_date DESC NULLS LAST, collected_at DESC LIMIT $%d", len(args))

	var items []models.NewsItem
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("select news: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var item models.NewsItem
			var relevance *float64
			var dedupGroup *string
			if err := rows.Scan(
				&item.ID, &item.CompanyName, &item.Title, &item.Content,
				&item.URL, &item.Source, &item.PublishDate, &item.CollectedAt,
				&relevance, &dedupGroup,
			); err != nil {
				return fmt.Errorf("scan news row: %w", err)
			}
			if relevance != nil {
				item.RelevanceScore = *relevance
			}
			if dedupGroup != nil {
				item.DedupGroup = *dedupGroup
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	return items, err
}

// CompanyNewsStats summarises stored coverage for one company.
type CompanyNewsStats struct {
	TotalArticles int            `json:"total_articles"`
	BySource      map[string]int `json:"by_source"`
}

// GetCompanyStats aggregates article counts per source for a company.
func (s *Store) GetCompanyStats(ctx context.Context, companyName string) (*CompanyNewsStats, error) {
	stats := &CompanyNewsStats{BySource: make(map[string]int)}
	err := s.pool.WithConn(ctx, func(ctx context.Context, conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT source, COUNT(*) FROM news WHERE company_name = $1 GROUP BY source`,
			companyName,
		)
		if err != nil {
			return fmt.Errorf("select company stats: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var source string
			var count int
			if err := rows.Scan(&source, &count); err != nil {
				return fmt.Errorf("scan stats row: %w", err)
			}
			stats.BySource[source] = count
			stats.TotalArticles += count
		}
		return rows.Err()
	})
	return stats, err
}
