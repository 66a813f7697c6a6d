package export

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ContentKind tags which shape a message's content had in the export.
type ContentKind int

const (
	// ContentNone is an absent, null or empty value.
	ContentNone ContentKind = iota
	// ContentText is a plain JSON string.
	ContentText
	// ContentParts is an object carrying a "parts" array.
	ContentParts
	// ContentObject is an object without a "parts" array.
	ContentObject
	// ContentOther is any remaining value (number, bool, array).
	ContentOther
)

func (k ContentKind) String() string {
	switch k {
	case ContentNone:
		return "none"
	case ContentText:
		return "text"
	case ContentParts:
		return "parts"
	case ContentObject:
		return "object"
	case ContentOther:
		return "other"
	default:
		return "unknown"
	}
}

// Content is the decoded content field of a payload.
// Exactly one of Text, Parts or Raw is meaningful, selected by Kind.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []json.RawMessage
	Raw   json.RawMessage
}

// UnmarshalJSON classifies the value and never fails on shape.
func (c *Content) UnmarshalJSON(data []byte) error {
	*c = classify(bytes.TrimSpace(data))
	return nil
}

func classify(data []byte) Content {
	if isEmptyValue(data) {
		return Content{Kind: ContentNone}
	}
	raw := json.RawMessage(append([]byte(nil), data...))

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Content{Kind: ContentOther, Raw: raw}
		}
		return Content{Kind: ContentText, Text: s}
	case '{':
		var obj struct {
			Parts json.RawMessage `json:"parts"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return Content{Kind: ContentObject, Raw: raw}
		}
		var parts []json.RawMessage
		p := bytes.TrimSpace(obj.Parts)
		if len(p) > 0 && p[0] == '[' && json.Unmarshal(p, &parts) == nil {
			return Content{Kind: ContentParts, Parts: parts}
		}
		return Content{Kind: ContentObject, Raw: raw}
	default:
		return Content{Kind: ContentOther, Raw: raw}
	}
}

// PlainText renders the content as plain text.
func (c Content) PlainText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentParts:
		out := make([]string, 0, len(c.Parts))
		for _, part := range c.Parts {
			part = bytes.TrimSpace(part)
			if isEmptyValue(part) {
				continue
			}
			out = append(out, stringify(part))
		}
		return strings.Join(out, " ")
	case ContentObject, ContentOther:
		return stringify(c.Raw)
	default:
		return ""
	}
}

// ExtractText returns the plain text of a payload, or "" when there is none.
func ExtractText(p *Payload) string {
	if p == nil {
		return ""
	}
	return p.Content.PlainText()
}

// stringify returns string values unquoted and anything else as compact JSON.
func stringify(v json.RawMessage) string {
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// isEmptyValue reports null, "", 0, false, {} and [].
func isEmptyValue(v []byte) bool {
	if len(v) == 0 {
		return true
	}
	switch v[0] {
	case 'n', 'f':
		return true
	case '"':
		return len(v) == 2
	case '{', '[':
		inner := bytes.TrimSpace(v[1 : len(v)-1])
		return len(inner) == 0
	case 't':
		return false
	default:
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			return false
		}
		return f == 0
	}
}
