// Package export decodes records of a conversation archive export.
//
// The export is a JSON array of conversation objects. Each conversation carries a
// "mapping" of node id to node, where a node optionally holds a message payload and
// parent/children links. Decoding is lenient below the record level: a node that fails
// to decode is reported through Entry.Decode and can be skipped by the caller without
// losing the rest of the conversation.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one conversation in the export.
type Record struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Title          *string `json:"title"`
	CreateTime     Epoch   `json:"create_time"`
	CurrentNode    string  `json:"current_node"`
	Mapping        Mapping `json:"mapping"`
}

// DecodeRecord decodes a single raw array element.
func DecodeRecord(raw []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode conversation record: %w", err)
	}
	return &rec, nil
}

// Node is one entry of a conversation mapping.
type Node struct {
	ID       string   `json:"id"`
	Message  *Payload `json:"message"`
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
}

// HasLinks reports whether the node carries any parent or children reference.
func (n *Node) HasLinks() bool {
	return (n.Parent != nil && *n.Parent != "") || len(n.Children) > 0
}

// Payload is the message carried by a node.
type Payload struct {
	ID         string  `json:"id"`
	Author     Author  `json:"author"`
	CreateTime Epoch   `json:"create_time"`
	Content    Content `json:"content"`
}

// Author identifies who wrote a message.
type Author struct {
	Role string `json:"role"`
}

// Entry is a mapping entry whose node has not been decoded yet.
type Entry struct {
	NodeID string
	Raw    json.RawMessage
}

// Decode decodes the node. A JSON null node yields (nil, nil).
func (e Entry) Decode() (*Node, error) {
	var n *Node
	if err := json.Unmarshal(e.Raw, &n); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", e.NodeID, err)
	}
	return n, nil
}

// Mapping keeps the node entries in the order they appear in the source object.
type Mapping []Entry

// UnmarshalJSON preserves key order. Duplicate keys keep the first position and the last value.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mapping must be an object, got %v", tok)
	}

	out := Mapping{}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected mapping key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if i, dup := index[key]; dup {
			out[i].Raw = raw
			continue
		}
		index[key] = len(out)
		out = append(out, Entry{NodeID: key, Raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// Epoch is a Unix timestamp in seconds, possibly fractional.
// It accepts numbers, numeric strings and null (zero).
type Epoch float64

// Stored times use a four-digit year, so epochs are limited to years 0001 through 9999.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300799
)

func (e *Epoch) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*e = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*e = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid epoch %s", data)
	}
	if f < minEpoch || f > maxEpoch {
		return fmt.Errorf("epoch %s out of range", data)
	}
	*e = Epoch(f)
	return nil
}

// IsZero reports whether the epoch is absent or zero.
func (e Epoch) IsZero() bool {
	return e == 0
}

// Time converts the epoch to a UTC instant rounded to the microsecond.
func (e Epoch) Time() time.Time {
	micros := int64(math.Round(float64(e) * 1e6))
	return time.UnixMicro(micros).UTC()
}
