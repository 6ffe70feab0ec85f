package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// Extract evaluates every rule against the page. Each rule's candidates
// are tried in order and the first hit wins. A field whose candidates all
// miss is present in the result with a nil value.
func Extract(p *Page, rules []Rule) map[string]any {
	out := make(map[string]any, len(rules))
	for _, r := range rules {
		out[r.Field] = nil
		if p == nil {
			continue
		}
		for _, c := range r.Candidates {
			if v, ok := c.eval(p); ok {
				out[r.Field] = v
				break
			}
		}
	}
	return out
}

// Empty returns the all-nil record for rules.
func Empty(rules []Rule) map[string]any {
	return Extract(nil, rules)
}

// Missing lists required fields that are nil in record, in rule order.
func Missing(record map[string]any, rules []Rule) []string {
	var missing []string
	for _, r := range rules {
		if r.Required && record[r.Field] == nil {
			missing = append(missing, r.Field)
		}
	}
	return missing
}

// Columns returns rule field names in declaration order.
func Columns(rules []Rule) []string {
	cols := make([]string, len(rules))
	for i, r := range rules {
		cols[i] = r.Field
	}
	return cols
}

var embeddedObject = regexp.MustCompile(`(?s)\s*(\{.*\})`)

// DecodeJSON decodes body into v. Bodies that wrap the JSON object in
// markup (a rendered <pre>, a script tag) are retried on the outermost
// {...} span before giving up with ErrMalformedPage.
func DecodeJSON(body []byte, v any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty json body", ErrMalformedPage)
	}

	err := json.Unmarshal(trimmed, v)
	if err == nil {
		return nil
	}

	m := embeddedObject.FindSubmatch(trimmed)
	if m == nil {
		return fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}
	if err := json.Unmarshal(m[1], v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPage, err)
	}
	return nil
}
