// Package source defines how foreign export containers are turned into
// transfer entities.
package source

import (
	"context"
	"fmt"
	"sort"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
	"github.com/xxxsen/journiv/internal/transfer"
)

// Warning is a non-fatal problem found while parsing a container.
type Warning struct {
	Category string
	Message  string
}

// Journal is one parsed journal. A journal whose manifest could not be read
// carries Err and no DTO; siblings are unaffected.
type Journal struct {
	Name           string
	SourceFile     string
	DTO            *transfer.JournalDTO
	Err            error
	EntriesSkipped int
	// EntryTotal is the entry count declared by the manifest, including
	// skipped entries.
	EntryTotal int
}

type Result struct {
	Journals     []Journal
	MediaRoot    string
	Warnings     []Warning
	MediaSkipped int
}

// EntryCount is the number of entries the import will walk, used as the
// progress denominator.
func (r *Result) EntryCount() int {
	n := 0
	for i := range r.Journals {
		n += r.Journals[i].EntryTotal
	}
	return n
}

func (r *Result) AddWarning(category, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, Warning{Category: category, Message: fmt.Sprintf(format, args...)})
}

// Adapter parses an already extracted container directory.
type Adapter interface {
	// Name returns the import source identifier, e.g. "dayone".
	Name() string
	// Parse reads the container rooted at dir. Errors that affect the whole
	// container are returned; per-journal failures are reported in Result.
	Parse(ctx context.Context, dir string) (*Result, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrUnsupportedSource, name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
