package validation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/sidecar/internal/types"
)

// Collector accumulates structured field errors without failing on the
// first. Validation is total: callers get every problem at once, and the
// same list lands in the audit entry for the rejected write.
type Collector struct {
	errors []types.FieldError
}

// Add appends an error to the collector.
func (c *Collector) Add(field string, kind types.ErrorKind, message string) {
	c.errors = append(c.errors, types.FieldError{Field: field, Kind: kind, Message: message})
}

// AddDetail appends an error carrying extra detail.
func (c *Collector) AddDetail(field string, kind types.ErrorKind, message, detail string) {
	c.errors = append(c.errors, types.FieldError{Field: field, Kind: kind, Message: message, Detail: detail})
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated errors.
func (c *Collector) Errors() []types.FieldError {
	return c.errors
}

// requireString checks that the key is present and a non-blank string.
// Returns the value and whether it passed.
func requireString(c *Collector, m map[string]any, field string) (string, bool) {
	v, ok := m[field]
	if !ok {
		c.Add(field, types.ErrMissing, "is required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.Add(field, types.ErrInvalid, "must be a string")
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		c.Add(field, types.ErrInvalid, "must not be blank")
		return "", false
	}
	return s, true
}

// optionalString checks that the key, when present, is a string.
func optionalString(c *Collector, m map[string]any, field string) {
	v, ok := m[field]
	if !ok {
		return
	}
	if _, ok := v.(string); !ok {
		c.Add(field, types.ErrInvalid, "must be a string")
	}
}

// requireEnum checks that the key is present and one of the allowed values.
func requireEnum(c *Collector, m map[string]any, field string, allowed []string) {
	s, ok := requireString(c, m, field)
	if !ok {
		return
	}
	for _, a := range allowed {
		if s == a {
			return
		}
	}
	c.AddDetail(field, types.ErrInvalid,
		fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), s)
}

// requireRange checks that the key is present, numeric, and within [min, max].
func requireRange(c *Collector, m map[string]any, field string, min, max float64) {
	v, ok := m[field]
	if !ok {
		c.Add(field, types.ErrMissing, "is required")
		return
	}
	f, ok := v.(float64)
	if !ok {
		c.Add(field, types.ErrInvalid, "must be a number")
		return
	}
	if f < min || f > max {
		c.AddDetail(field, types.ErrInvalid,
			fmt.Sprintf("must be between %.1f and %.1f", min, max),
			fmt.Sprintf("%v", f))
	}
}

// requireCollection checks that the key is present and a JSON array or object.
func requireCollection(c *Collector, m map[string]any, field string) {
	v, ok := m[field]
	if !ok {
		c.Add(field, types.ErrMissing, "is required")
		return
	}
	switch v.(type) {
	case []any, map[string]any:
	default:
		c.Add(field, types.ErrInvalid, "must be a collection")
	}
}

// requireTimestamp checks that the key is present and an RFC 3339 timestamp.
func requireTimestamp(c *Collector, m map[string]any, field string) {
	v, ok := m[field]
	if !ok {
		c.Add(field, types.ErrMissing, "is required")
		return
	}
	s, ok := v.(string)
	if !ok {
		c.Add(field, types.ErrInvalid, "must be an RFC 3339 timestamp")
		return
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		c.AddDetail(field, types.ErrInvalid, "must be an RFC 3339 timestamp", s)
	}
}

// rejectUnknown collects keys outside the allowed set into a single
// unknown-fields error with the sorted offenders in Detail.
func rejectUnknown(c *Collector, m map[string]any, allowed map[string]struct{}) {
	var unknown []string
	for k := range m {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return
	}
	sort.Strings(unknown)
	c.AddDetail("unknown-fields", types.ErrUnknown,
		"payload carries unrecognized fields", strings.Join(unknown, ", "))
}
