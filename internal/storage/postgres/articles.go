package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/insight-discovery/internal/discovery"
)

// InsertArticle persists an accepted article.
func (s *Store) InsertArticle(ctx context.Context, a discovery.Article) error {
	const query = `
INSERT INTO articles (
	id, task_id, title, url, account_name, account_fakeid,
	publish_time, similarity, insight, relevance_score, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.pool.Exec(ctx, query,
		a.ID,
		a.TaskID,
		a.Title,
		a.URL,
		a.AccountName,
		a.AccountID,
		a.PublishedAt,
		a.Similarity,
		a.Insight,
		a.RelevanceScore,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// ListArticles returns a task's articles, most similar first.
func (s *Store) ListArticles(ctx context.Context, taskID string) ([]discovery.Article, error) {
	const query = `
SELECT id, task_id, title, url, account_name, account_fakeid,
	publish_time, similarity, insight, relevance_score, created_at
FROM articles
WHERE task_id = $1
ORDER BY similarity DESC NULLS LAST, created_at ASC`
	rows, err := s.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := []discovery.Article{}
	for rows.Next() {
		var a discovery.Article
		if err := rows.Scan(
			&a.ID,
			&a.TaskID,
			&a.Title,
			&a.URL,
			&a.AccountName,
			&a.AccountID,
			&a.PublishedAt,
			&a.Similarity,
			&a.Insight,
			&a.RelevanceScore,
			&a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}
