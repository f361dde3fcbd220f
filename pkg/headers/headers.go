// Package headers implements a case-insensitive, insertion-order-preserving
// HTTP header map, following the canonicalization idiom the teacher uses
// when reading header blocks off the wire (net/textproto's canonical form
// plus case-insensitive comparison).
package headers

import (
	"net/textproto"
	"strings"
)

type entry struct {
	name  string // as first inserted, not re-canonicalized on Set
	value string
}

// Map is an ordered header collection. The zero value is ready to use.
type Map struct {
	entries []entry
	index   map[string]int // canonical name -> index into entries
}

// New returns an empty header map.
func New() *Map {
	return &Map{index: make(map[string]int)}
}

func canon(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

func (m *Map) ensureIndex() {
	if m.index == nil {
		m.index = make(map[string]int)
	}
}

// Set inserts or replaces the header named name with value. Name comparison
// is case-insensitive; the first spelling used for a given name is kept.
func (m *Map) Set(name, value string) {
	m.ensureIndex()
	key := canon(name)
	if i, ok := m.index[key]; ok {
		m.entries[i].value = value
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, entry{name: name, value: value})
}

// SetRaw behaves exactly like Set; it marks call sites storing a value that
// was already formatted exactly as it must appear on the wire (e.g. a
// pre-built Authorization value). The value is stored verbatim and any
// existing entry under the same case-insensitive name is replaced.
func (m *Map) SetRaw(name, value string) { m.Set(name, value) }

// Get returns the value stored for name (case-insensitive) and whether it
// was present.
func (m *Map) Get(name string) (string, bool) {
	if m.index == nil {
		return "", false
	}
	i, ok := m.index[canon(name)]
	if !ok {
		return "", false
	}
	return m.entries[i].value, true
}

// Has reports whether name is present, case-insensitively.
func (m *Map) Has(name string) bool {
	if m.index == nil {
		return false
	}
	_, ok := m.index[canon(name)]
	return ok
}

// Del removes name (case-insensitively) if present.
func (m *Map) Del(name string) {
	if m.index == nil {
		return
	}
	key := canon(name)
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, key)
	for k, v := range m.index {
		if v > i {
			m.index[k] = v - 1
		}
	}
}

// Len returns the number of headers stored.
func (m *Map) Len() int { return len(m.entries) }

// Range calls fn for each header in insertion order. Stops early if fn
// returns false.
func (m *Map) Range(fn func(name, value string) bool) {
	for _, e := range m.entries {
		if !fn(e.name, e.value) {
			return
		}
	}
}

// EqualFold reports whether name case-insensitively equals value — a
// small helper mirroring the comparisons this package's callers (the
// message codec, chunked decoder) need against known header names.
func EqualFold(name, value string) bool {
	return strings.EqualFold(name, value)
}

// String renders the header block, one "Name: value\r\n" line per entry in
// insertion order, suitable for direct inclusion in a request message.
func (m *Map) String() string {
	var b strings.Builder
	m.Range(func(name, value string) bool {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
		return true
	})
	return b.String()
}
