// Package fileproc provides pluggable parsers for uploaded sample files.
//
// A Processor turns one physical file into a header row plus data rows.
// Format-specific behavior (delimiters, sheets, encodings) lives entirely
// inside the processor; the ingestion pipeline only sees Parsed.
package fileproc

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Parsed is the format-independent result of parsing one file.
type Parsed struct {
	Headers []string
	Rows    [][]string
}

// Processor parses a single uploaded file.
type Processor interface {
	// Extensions returns the lowercase file extensions (with dot) this
	// processor handles.
	Extensions() []string

	// Parse reads the file and returns its header row and data rows.
	Parse(r io.Reader) (*Parsed, error)
}

// Registry maps file extensions to processors.
type Registry struct {
	byExt map[string]Processor
}

// NewRegistry returns a registry with the default CSV and XLSX processors
// installed.
func NewRegistry() *Registry {
	reg := &Registry{byExt: make(map[string]Processor)}
	reg.Install(NewCSVProcessor())
	reg.Install(NewXLSXProcessor())
	return reg
}

// Install registers a processor for each of its extensions, replacing any
// previous processor for the same extension.
func (r *Registry) Install(p Processor) {
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// ForFile returns the processor for the given filename's extension.
func (r *Registry) ForFile(filename string) (Processor, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	p, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
	return p, nil
}

// Supported returns the sorted list of supported extensions for error
// messages and validation.
func (r *Registry) Supported() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
