package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the pages table. It is the fallback when
// Meilisearch is absent or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pageMatch = `
	FROM pages
	WHERE world_id = $1
	  AND (to_tsvector('simple', title) @@ plainto_tsquery('simple', $2) OR title ILIKE $3)`

// Search matches page titles by token and by substring, ranking token
// matches first.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" || q.WorldID == "" {
		return nil, 0, nil
	}
	args := []any{q.WorldID, text, "%" + escapeLike(text) + "%"}
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*)"+pageMatch, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	dataSQL := fmt.Sprintf(`SELECT id, world_id, title, icon,
		ts_headline('simple', title, plainto_tsquery('simple', $2), 'StartSel=<mark>,StopSel=</mark>') AS snippet
		%s
		ORDER BY ts_rank(to_tsvector('simple', title), plainto_tsquery('simple', $2)) DESC, title ASC
		LIMIT %d OFFSET %d`, pageMatch, q.normalizedLimit(), q.normalizedOffset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.WorldID, &r.Title, &r.Emoji, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every page for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, world_id, title, icon FROM pages`)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	pages := make([]PageRecord, 0)
	for rows.Next() {
		var page PageRecord
		if err := rows.Scan(&page.ID, &page.WorldID, &page.Title, &page.Icon); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
