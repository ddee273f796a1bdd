package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"qrquest/internal/domain"
)

// CatalogLoader loads the question catalog from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, prompt, options, correct, media FROM questions ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q   domain.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.Prompt, &raw, &q.Correct, &q.Media); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(raw, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options of %s: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// SeedQuestions inserts questions that are not in the table yet and reports how many were added.
// Existing rows are left untouched so a running quest never sees its catalog change.
func (l *CatalogLoader) SeedQuestions(ctx context.Context, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return 0, fmt.Errorf("question %q: %w", q.ID, err)
		}
		options, err := json.Marshal(q.Options)
		if err != nil {
			return 0, fmt.Errorf("marshal options of %s: %w", q.ID, err)
		}
		batch.Queue(`
			INSERT INTO questions (id, prompt, options, correct, media, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Prompt, options, q.Correct, q.Media, i)
	}

	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range questions {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("seed questions: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
