package klypt

import (
	"encoding/json"

	"github.com/a7m-1st/klypt-sub002/klypt_errors"
)

// Document is the generic representation every entity is stored and
// exported as. Bodies are JSON objects; numbers decode as float64 and
// lists as []any, so the typed accessors below normalize on read.
type Document map[string]any

const (
	fieldID   = "_id"
	fieldType = "type"
)

// DocID returns the document identifier. A missing or empty _id is the
// one decode failure that is not papered over with a default.
func (d Document) DocID() (string, error) {
	id, ok := d[fieldID].(string)
	if !ok || id == "" {
		return "", klypt_errors.ErrNoDocID
	}
	return id, nil
}

// String reads a string field, defaulting to "" on absence or wrong type.
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool reads a bool field, defaulting to false.
func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Int64 reads a numeric field. JSON numbers arrive as float64; documents
// built in-process may carry int or int64 directly.
func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Float64 reads a numeric field, defaulting to 0.
func (d Document) Float64(key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// StringList reads a list-of-strings field. Non-string elements are
// skipped rather than failing the whole list.
func (d Document) StringList(key string) []string {
	switch v := d[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// MapList reads a list-of-objects field (question lists, answer lists).
func (d Document) MapList(key string) []Document {
	switch v := d[key].(type) {
	case []Document:
		out := make([]Document, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]Document, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, Document(m))
			}
		}
		return out
	default:
		return nil
	}
}

func (d Document) marshal() ([]byte, error) {
	return json.Marshal(d)
}

func unmarshalDocument(body []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, klypt_errors.ErrBadDocument
	}
	return d, nil
}

// Entity is implemented by the five stored record kinds.
type Entity interface {
	DocumentID() string
	Kind() string
}

// Codec maps one entity kind to and from its Document form. Encode is
// total; Decode is defensive: every non-identifier field falls back to
// a zero value so records written by older schema versions still load.
type Codec[T Entity] interface {
	Kind() string
	Encode(T) Document
	Decode(Document) (T, error)
}
