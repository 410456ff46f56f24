package domain

import (
	"sort"
	"strings"
)

// ColumnRef identifies a source column of one file.
type ColumnRef struct {
	File   string `json:"file"`
	Header string `json:"header"`
}

// ColumnMapping maps source columns to field keys. An empty key means unmapped.
type ColumnMapping map[ColumnRef]string

// ColumnMappingEntry is the list form of a ColumnMapping entry used on the wire.
type ColumnMappingEntry struct {
	File   string `json:"file" yaml:"file" validate:"required"`
	Header string `json:"header" yaml:"header" validate:"required"`
	Field  string `json:"field" yaml:"field"`
}

func (m ColumnMapping) Clone() ColumnMapping {
	cp := make(ColumnMapping, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// Entries returns the mapping sorted by file and header.
func (m ColumnMapping) Entries() []ColumnMappingEntry {
	out := make([]ColumnMappingEntry, 0, len(m))
	for ref, field := range m {
		out = append(out, ColumnMappingEntry{File: ref.File, Header: ref.Header, Field: field})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Header < out[j].Header
	})
	return out
}

func ColumnMappingFromEntries(entries []ColumnMappingEntry) ColumnMapping {
	m := make(ColumnMapping, len(entries))
	for _, e := range entries {
		m[ColumnRef{File: e.File, Header: e.Header}] = strings.TrimSpace(e.Field)
	}
	return m
}

// ValueMapping maps field key to raw source value to canonical value.
type ValueMapping map[string]map[string]string

func (v ValueMapping) Clone() ValueMapping {
	cp := make(ValueMapping, len(v))
	for field, values := range v {
		inner := make(map[string]string, len(values))
		for raw, canonical := range values {
			inner[raw] = canonical
		}
		cp[field] = inner
	}
	return cp
}

// Canonical returns the canonical value for raw, or raw itself when no entry exists.
func (v ValueMapping) Canonical(field, raw string) string {
	if values, ok := v[field]; ok {
		if canonical, ok := values[raw]; ok {
			return canonical
		}
	}
	return raw
}
