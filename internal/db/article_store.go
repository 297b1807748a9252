package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ArticleRow is one persisted article candidate. ContentHash is stored as
// NULL when empty so legacy rows without a fingerprint never collide.
type ArticleRow struct {
	ID          int64
	Text        string
	Source      string
	PublishedAt time.Time
	ContentHash string
}

// ExistingIDs returns the subset of candidate ids already present in the
// articles table, in a single round trip.
func (p *Pool) ExistingIDs(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	existing := make(map[int64]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	const q = `SELECT id FROM articles WHERE id = ANY($1)`

	rows, err := p.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("query existing article ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan existing article id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing article ids: %w", err)
	}

	return existing, nil
}

// InsertIgnore writes one chunk of rows with a single multi-row insert.
// Conflicts on the primary key or the content_hash unique index are silently
// skipped, so the call is idempotent. Returns the ids actually inserted.
func (p *Pool) InsertIgnore(ctx context.Context, rows []ArticleRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO articles (id, text, source, published_at, content_hash, created_at) VALUES `)

	args := make([]any, 0, len(rows)*5)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, now())", base+1, base+2, base+3, base+4, base+5)
		args = append(args,
			row.ID,
			row.Text,
			normalizeNullableString(row.Source),
			normalizeNullableTime(row.PublishedAt),
			normalizeNullableString(row.ContentHash),
		)
	}
	sb.WriteString(` ON CONFLICT DO NOTHING RETURNING id`)

	result, err := p.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert articles chunk: %w", err)
	}
	defer result.Close()

	inserted := make([]int64, 0, len(rows))
	for result.Next() {
		var id int64
		if err := result.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan inserted article id: %w", err)
		}
		inserted = append(inserted, id)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate inserted article ids: %w", err)
	}
	return inserted, nil
}

// CountArticles reports the total number of persisted articles.
func (p *Pool) CountArticles(ctx context.Context) (int64, error) {
	var count int64
	if err := p.QueryRow(ctx, `SELECT count(*) FROM articles`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// IsTransient reports whether a store error is in the rate-limit class:
// connection exhaustion, admission throttling, or a statement kicked out by
// the server under load. These are worth one delayed retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 53 insufficient_resources, 57014 query_canceled,
		// 08XXX connection exceptions.
		switch {
		case strings.HasPrefix(pgErr.Code, "53"):
			return true
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == "57014":
			return true
		}
		return false
	}

	return errors.Is(err, context.DeadlineExceeded)
}

func normalizeNullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeNullableTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
