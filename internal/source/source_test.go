package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/journiv/internal/pkg/errors"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string { return s.name }

func (s stubAdapter) Parse(ctx context.Context, dir string) (*Result, error) {
	return &Result{}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubAdapter{name: "dayone"}, stubAdapter{name: "other"})
	a, err := r.Get("dayone")
	require.NoError(t, err)
	assert.Equal(t, "dayone", a.Name())
	assert.Equal(t, []string{"dayone", "other"}, r.Names())

	_, err = r.Get("markdown")
	assert.True(t, errors.Is(err, appErr.ErrUnsupportedSource))
}

func TestResultEntryCount(t *testing.T) {
	r := &Result{Journals: []Journal{{EntryTotal: 2}, {EntryTotal: 3, Err: errors.New("bad")}}}
	assert.Equal(t, 5, r.EntryCount())
	r.AddWarning("media_missing", "photo %s", "p1")
	assert.Equal(t, Warning{Category: "media_missing", Message: "photo p1"}, r.Warnings[0])
}
