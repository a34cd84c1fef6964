package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"newscrawler/internal/domain"
)

// PostgresSink persists emitted article records. Delivery is at-least-once
// within a run; the upsert keeps repeats harmless.
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(connStr string) (*PostgresSink, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresSink) Close() {
	s.db.Close()
}

// Deliver upserts one article record keyed by its source URL.
func (s *PostgresSink) Deliver(ctx context.Context, rec domain.ArticleRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO articles
		   (site, title, description, author, article_text,
		    date_published, date_modified, paywall, source_url, crawled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (source_url) DO UPDATE SET
		   title = EXCLUDED.title,
		   description = EXCLUDED.description,
		   author = EXCLUDED.author,
		   article_text = EXCLUDED.article_text,
		   date_published = EXCLUDED.date_published,
		   date_modified = EXCLUDED.date_modified,
		   paywall = EXCLUDED.paywall,
		   crawled_at = EXCLUDED.crawled_at`,
		rec.Site, rec.Title, rec.Description, rec.Author, rec.ArticleText,
		rec.DatePublished, rec.DateModified, rec.Paywall, rec.SourceURL, rec.CrawledAt,
	)
	return err
}
