package models

import (
	"sort"
	"strconv"
	"time"
)

// Listing is one emitted record. Fields maps a column name to a string,
// float64, bool or nil. A Listing is never modified after emission.
type Listing struct {
	URL       string
	Site      string
	RunID     string
	ScrapedAt time.Time
	Fields    map[string]any
	Partial   bool
	Missing   []string
}

// Value formats a field for flat outputs such as CSV. nil becomes "".
func (l Listing) Value(field string) string {
	return FormatValue(l.Fields[field])
}

// FieldNames returns the record's field names in sorted order.
func (l Listing) FieldNames() []string {
	names := make([]string, 0, len(l.Fields))
	for k := range l.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// ListItem is one entry of a list page: the detail URL plus whatever
// fields the list payload already carried.
type ListItem struct {
	URL    string
	Fields map[string]any
}

// PageCursor identifies a list page. Page is 1-based.
type PageCursor struct {
	URL  string
	Page int
}
