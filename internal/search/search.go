// Package search maintains and queries the messages_fts full-text index.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Napageneral/chatlog/internal/db"
)

const defaultLimit = 20

// Rebuild replaces the full-text index with one row per stored message.
// It runs once after a load rather than per batch, so repeated runs never duplicate rows.
func Rebuild(ctx context.Context, d *sql.DB) (int64, error) {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin index tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages_fts`); err != nil {
		return 0, fmt.Errorf("failed to clear messages_fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages_fts (message_id, content)
		SELECT id, content FROM messages
	`); err != nil {
		return 0, fmt.Errorf("failed to populate messages_fts: %w", err)
	}
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages_fts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages_fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit index: %w", err)
	}
	return n, nil
}

// Search runs an FTS5 query over message content, best matches first.
func Search(ctx context.Context, d *sql.DB, req Request) (Response, error) {
	if d == nil {
		return Response{}, errors.New("search: db is nil")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{}, errors.New("search: query is required")
	}
	ftsQuery := escapeFTS5Query(query)
	resp := Response{Query: query, FTSQuery: ftsQuery, Hits: []Hit{}}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	if req.Role == "" && req.ConversationID == "" {
		titles, err := matchTitles(ctx, d, query, limit)
		if err != nil {
			return resp, err
		}
		resp.Titles = titles
	}

	q := `
		SELECT m.id, m.conversation_id, COALESCE(c.title, ''), m.role,
		       snippet(messages_fts, 1, '[', ']', '...', 16),
		       CAST(m.create_time AS TEXT),
		       bm25(messages_fts) AS score
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.message_id
		JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?`
	args := []any{ftsQuery}
	if req.Role != "" {
		q += " AND m.role = ?"
		args = append(args, req.Role)
	}
	if req.ConversationID != "" {
		q += " AND m.conversation_id = ?"
		args = append(args, req.ConversationID)
	}
	q += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := d.QueryContext(ctx, q, args...)
	if err != nil {
		return resp, fmt.Errorf("search: query messages_fts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			h       Hit
			created sql.NullString
			score   float64
		)
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.ConversationTitle, &h.Role, &h.Snippet, &created, &score); err != nil {
			return resp, fmt.Errorf("search: scan hit: %w", err)
		}
		if created.Valid {
			h.CreateTime, _ = db.ParseTime(created.String)
		}
		// BM25 returns negative scores, lower is better. Negate for consistency.
		h.Score = -score
		resp.Hits = append(resp.Hits, h)
	}
	if err := rows.Err(); err != nil {
		return resp, fmt.Errorf("search: failed iterating hits: %w", err)
	}
	return resp, nil
}

// matchTitles finds conversations whose title contains query as a substring, newest first.
// Matching is case-insensitive for ASCII, like SQLite LIKE.
func matchTitles(ctx context.Context, d *sql.DB, query string, limit int) ([]TitleHit, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(CAST(create_time AS TEXT), '')
		FROM conversations
		WHERE title LIKE ? ESCAPE '\'
		ORDER BY create_time DESC
		LIMIT ?
	`, "%"+escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search: query titles: %w", err)
	}
	defer rows.Close()

	out := []TitleHit{}
	for rows.Next() {
		var h TitleHit
		var created string
		if err := rows.Scan(&h.ConversationID, &h.Title, &created); err != nil {
			return nil, fmt.Errorf("search: scan title: %w", err)
		}
		h.CreateTime, _ = db.ParseTime(created)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: failed iterating titles: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// escapeFTS5Query quotes every term so FTS5 operators in user input are matched literally.
// Terms are ANDed.
func escapeFTS5Query(query string) string {
	terms := strings.Fields(query)
	escaped := make([]string, 0, len(terms))
	for _, term := range terms {
		escaped = append(escaped, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(escaped, " ")
}
