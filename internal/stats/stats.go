package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/linearize"
	"github.com/Napageneral/chatlog/internal/tag"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

// MonthCount holds the number of conversations created in one month
type MonthCount struct {
	Month string `json:"month"` // YYYY-MM
	Count int    `json:"count"`
}

// Summary aggregates the whole store
type Summary struct {
	Conversations int          `json:"conversations"`
	Messages      int          `json:"messages"`
	Characters    int64        `json:"characters"`
	AvgMessages   float64      `json:"avg_messages"` // per conversation
	MostActive    *MonthCount  `json:"most_active_month,omitempty"`
	ByMonth       []MonthCount `json:"by_month"`
	ByTag         []tag.Count  `json:"by_tag"`
}

// Collect computes store-wide statistics
func Collect(ctx context.Context, d *sql.DB) (Summary, error) {
	var s Summary
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(total_char_count), 0) FROM conversations`).Scan(&s.Conversations, &s.Characters); err != nil {
		return s, fmt.Errorf("failed to count conversations: %w", err)
	}
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&s.Messages); err != nil {
		return s, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := d.QueryContext(ctx, `
		SELECT strftime('%Y-%m', create_time) AS month, COUNT(*)
		FROM conversations
		WHERE month IS NOT NULL
		GROUP BY month
		ORDER BY month DESC
	`)
	if err != nil {
		return s, fmt.Errorf("failed to query months: %w", err)
	}
	for rows.Next() {
		var m MonthCount
		if err := rows.Scan(&m.Month, &m.Count); err != nil {
			rows.Close()
			return s, fmt.Errorf("failed to scan month: %w", err)
		}
		s.ByMonth = append(s.ByMonth, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return s, fmt.Errorf("failed iterating months: %w", err)
	}
	rows.Close()

	if s.Conversations > 0 {
		s.AvgMessages = float64(s.Messages) / float64(s.Conversations)
	}
	// Ties go to the later month.
	for i := range s.ByMonth {
		if s.MostActive == nil || s.ByMonth[i].Count > s.MostActive.Count {
			s.MostActive = &s.ByMonth[i]
		}
	}

	s.ByTag, err = tag.Counts(ctx, d)
	if err != nil {
		return s, err
	}
	return s, nil
}

// Detail is a conversation with its messages
type Detail struct {
	linearize.Conversation
	Messages []linearize.Message `json:"messages"`
}

// Conversation loads one conversation and its messages ordered by create_time.
func Conversation(ctx context.Context, d *sql.DB, id string) (Detail, error) {
	var out Detail
	var created string
	err := d.QueryRowContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(CAST(create_time AS TEXT), ''), COALESCE(tags, ''), COALESCE(total_char_count, 0)
		FROM conversations
		WHERE id = ?
	`, id).Scan(&out.ID, &out.Title, &created, &out.Tags, &out.TotalCharCount)
	if err == sql.ErrNoRows {
		return out, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return out, fmt.Errorf("failed to load conversation: %w", err)
	}
	out.CreateTime, _ = db.ParseTime(created)

	rows, err := d.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, COALESCE(CAST(create_time AS TEXT), '')
		FROM messages
		WHERE conversation_id = ?
		ORDER BY create_time ASC, rowid ASC
	`, id)
	if err != nil {
		return out, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m linearize.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ts); err != nil {
			return out, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreateTime, _ = db.ParseTime(ts)
		out.Messages = append(out.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("failed iterating messages: %w", err)
	}
	return out, nil
}

// Recent lists conversations newest first, optionally restricted to one tag.
func Recent(ctx context.Context, d *sql.DB, limit int, label string) ([]linearize.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `
		SELECT id, COALESCE(title, ''), COALESCE(CAST(create_time AS TEXT), ''), COALESCE(tags, ''), COALESCE(total_char_count, 0)
		FROM conversations`
	args := []any{}
	if label != "" {
		// Match whole labels inside the ", "-joined column.
		q += ` WHERE ', ' || tags || ', ' LIKE ?`
		args = append(args, "%, "+label+", %")
	}
	q += ` ORDER BY create_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []linearize.Conversation
	for rows.Next() {
		var c linearize.Conversation
		var created string
		if err := rows.Scan(&c.ID, &c.Title, &created, &c.Tags, &c.TotalCharCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreateTime, _ = db.ParseTime(created)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating conversations: %w", err)
	}
	return out, nil
}
