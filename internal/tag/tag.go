// Package tag derives topical labels for conversations from their titles.
package tag

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Separator joins labels in the stored tags column.
const Separator = ", "

// Category is a label and the keywords that select it.
type Category struct {
	Name     string
	Keywords []string
}

// Categories are evaluated in order. New categories go at the end.
var Categories = []Category{
	{Name: "Coding", Keywords: []string{"python", "code", "programming", "程式", "編程", "script"}},
	{Name: "Data", Keywords: []string{"data", "database", "sql", "資料"}},
	{Name: "Web Development", Keywords: []string{"web", "html", "css", "javascript", "flask", "django"}},
	{Name: "AI/ML", Keywords: []string{"ai", "ml", "machine learning", "deep learning", "機器學習"}},
}

// Labels returns every category whose keywords occur in title, case-insensitively.
func Labels(title string) []string {
	lower := strings.ToLower(title)
	var out []string
	for _, c := range Categories {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

// Generate returns the stored tag string for title ("" when nothing matches).
func Generate(title string) string {
	return strings.Join(Labels(title), Separator)
}

// Split parses a stored tag string back into labels.
func Split(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Count is the number of conversations carrying a label.
type Count struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Counts returns per-label conversation counts, most frequent first.
func Counts(ctx context.Context, db *sql.DB) ([]Count, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tags, COUNT(*)
		FROM conversations
		WHERE tags IS NOT NULL AND tags != ''
		GROUP BY tags
	`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	byTag := make(map[string]int)
	for rows.Next() {
		var tags string
		var n int
		if err := rows.Scan(&tags, &n); err != nil {
			return nil, fmt.Errorf("scan tags: %w", err)
		}
		for _, t := range Split(tags) {
			byTag[t] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating tags: %w", err)
	}

	out := make([]Count, 0, len(byTag))
	for t, n := range byTag {
		out = append(out, Count{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}
