package search

import "time"

// Request describes a full-text query over message content.
type Request struct {
	Query          string
	Role           string // "user" or "assistant"; empty matches both
	ConversationID string
	Limit          int
}

// Hit is one matching message.
type Hit struct {
	MessageID         string    `json:"message_id"`
	ConversationID    string    `json:"conversation_id"`
	ConversationTitle string    `json:"conversation_title"`
	Role              string    `json:"role"`
	Snippet           string    `json:"snippet"`
	CreateTime        time.Time `json:"create_time"`
	Score             float64   `json:"score"`
}

// TitleHit is a conversation whose title contains the query.
type TitleHit struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	CreateTime     time.Time `json:"create_time"`
}

// Response groups hits with the query actually sent to FTS5.
type Response struct {
	Query    string     `json:"query"`
	FTSQuery string     `json:"fts_query"`
	Titles   []TitleHit `json:"titles"`
	Hits     []Hit      `json:"hits"`
}
