// Package linearize flattens a conversation's node mapping into an ordered list of
// user and assistant messages.
package linearize

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Napageneral/chatlog/internal/export"
	"github.com/Napageneral/chatlog/internal/tag"
)

// DefaultTitle is stored for conversations without a title.
const DefaultTitle = "Untitled"

// ErrMissingID is returned for records with neither id nor conversation_id.
var ErrMissingID = errors.New("conversation record has no id or conversation_id")

// Order selects how mapping nodes are sequenced.
type Order string

const (
	// OrderTree walks parent/children links depth-first from the roots.
	OrderTree Order = "tree"
	// OrderMapping uses the key order of the mapping object.
	OrderMapping Order = "mapping"
)

// TimeFallback selects the conversation time used when the record has no create_time.
type TimeFallback string

const (
	// FallbackNow uses the ingestion wall clock. Re-ingesting changes the stored time.
	FallbackNow TimeFallback = "now"
	// FallbackEpoch uses the Unix epoch, so re-ingesting is deterministic.
	FallbackEpoch TimeFallback = "epoch"
)

// ParseOrder validates an order name.
func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case OrderTree, OrderMapping:
		return Order(s), nil
	}
	return "", fmt.Errorf("unknown order %q", s)
}

// ParseTimeFallback validates a fallback name.
func ParseTimeFallback(s string) (TimeFallback, error) {
	switch TimeFallback(s) {
	case FallbackNow, FallbackEpoch:
		return TimeFallback(s), nil
	}
	return "", fmt.Errorf("unknown time fallback %q", s)
}

// Options controls linearization. The zero value uses tree order and the wall clock.
type Options struct {
	Order        Order
	TimeFallback TimeFallback
	Now          func() time.Time
}

// Conversation is the summary row stored for a record.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	CreateTime     time.Time `json:"create_time"`
	Tags           string    `json:"tags"`
	TotalCharCount int       `json:"total_char_count"`
}

// Message is one retained user or assistant message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreateTime     time.Time `json:"create_time"`
}

// Linearize converts one export record. Malformed or disqualified nodes are dropped
// silently; only record-level problems are returned as errors.
func Linearize(rec *export.Record, opts Options) (Conversation, []Message, error) {
	if rec == nil {
		return Conversation{}, nil, ErrMissingID
	}
	convID := rec.ID
	if convID == "" {
		convID = rec.ConversationID
	}
	if convID == "" {
		return Conversation{}, nil, ErrMissingID
	}

	title := DefaultTitle
	if rec.Title != nil {
		title = *rec.Title
	}

	conv := Conversation{
		ID:         convID,
		Title:      title,
		CreateTime: conversationTime(rec.CreateTime, opts),
		Tags:       tag.Generate(title),
	}

	// A repeated message id keeps its first position and its last value, the same row
	// the store ends up with after the upsert.
	var msgs []Message
	seen := make(map[string]int)
	for _, n := range orderNodes(rec.Mapping, opts.Order, rec.CurrentNode) {
		msg, ok := message(convID, n, rec.CreateTime, conv.CreateTime)
		if !ok {
			continue
		}
		if i, dup := seen[msg.ID]; dup {
			msgs[i] = msg
			continue
		}
		seen[msg.ID] = len(msgs)
		msgs = append(msgs, msg)
	}
	for _, m := range msgs {
		conv.TotalCharCount += utf8.RuneCountInString(m.Content)
	}
	return conv, msgs, nil
}

func conversationTime(epoch export.Epoch, opts Options) time.Time {
	if !epoch.IsZero() {
		return epoch.Time()
	}
	if opts.TimeFallback == FallbackEpoch {
		return time.Unix(0, 0).UTC()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	return now().UTC().Truncate(time.Microsecond)
}

func message(convID string, n decodedNode, convEpoch export.Epoch, convTime time.Time) (Message, bool) {
	p := n.node.Message
	if p == nil {
		return Message{}, false
	}
	role := p.Author.Role
	if role != "user" && role != "assistant" {
		return Message{}, false
	}
	content := export.ExtractText(p)
	if strings.TrimSpace(content) == "" {
		return Message{}, false
	}

	id := p.ID
	if id == "" {
		id = convID + "_" + n.id
	}

	ts := convTime
	switch {
	case !p.CreateTime.IsZero():
		ts = p.CreateTime.Time()
	case !convEpoch.IsZero():
		ts = convEpoch.Time()
	}

	return Message{
		ID:             id,
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreateTime:     ts,
	}, true
}
