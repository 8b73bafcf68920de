package httpmsg

import "strings"

// Field is a single header as it appeared on the wire.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered multimap: insertion order is preserved (so
// writing a message back out reproduces the original field order) but
// lookups are case-insensitive, per RFC 7230 section 3.2.
type Headers []Field

// Get returns the value of the first header matching name, folded
// case-insensitively, and whether it was found.
func (h Headers) Get(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// GetDefault is Get but returns the empty string when absent.
func (h Headers) GetDefault(name string) string {
	v, _ := h.Get(name)
	return v
}

// Add appends a new header field, regardless of whether one by that
// name already exists.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces the value of the first header matching name, or
// appends a new one if none exists.
func (h *Headers) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	h.Add(name, value)
}

// Extend appends ", value" to an existing header with this name, or
// inserts a new header with just value if one is not already present.
// This is how X-Forwarded-For grows across hops.
func (h *Headers) Extend(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = (*h)[i].Value + ", " + value
			return
		}
	}
	h.Add(name, value)
}

// Len reports the number of header fields.
func (h Headers) Len() int { return len(h) }
