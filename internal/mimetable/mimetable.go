// Package mimetable maps a file extension to a Content-Type. It is an
// out-of-scope collaborator per the specification: its exact coverage is
// not load-bearing to the design, only its presence as an interface the
// handler can call.
package mimetable

import "strings"

const defaultType = "application/octet-stream"

var builtin = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".txt":  "text/plain",
	".gif":  "image/gif",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".css":  "text/css",
	".js":   "application/javascript",
}

// Table is a lookup of extension (including the leading dot, case
// insensitive) to Content-Type, seeded with the built-in set and
// extensible with operator-supplied overrides.
type Table struct {
	entries map[string]string
}

// New constructs a Table from the built-in entries plus overrides. Keys in
// overrides take precedence over the built-in set.
func New(overrides map[string]string) *Table {
	t := &Table{entries: make(map[string]string, len(builtin)+len(overrides))}
	for k, v := range builtin {
		t.entries[k] = v
	}
	for k, v := range overrides {
		t.entries[strings.ToLower(k)] = v
	}
	return t
}

// Lookup returns the Content-Type for ext (which may or may not include
// the leading dot), falling back to application/octet-stream when the
// extension is unknown.
func (t *Table) Lookup(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	if ct, ok := t.entries[ext]; ok {
		return ct
	}
	return defaultType
}
