// Package storage loads the raw recipe corpus from wherever it lives.
package storage

import (
	"context"
	"errors"
)

// RecipeSource returns the raw bytes of a recipe corpus.
type RecipeSource interface {
	Load(ctx context.Context) ([]byte, error)
}

// TestRecipeSource is a simple in-memory implementation for testing
type TestRecipeSource struct {
	data []byte
	err  error
}

func NewTestRecipeSource(data []byte) *TestRecipeSource {
	return &TestRecipeSource{data: data}
}

func NewTestRecipeSourceWithError() *TestRecipeSource {
	return &TestRecipeSource{err: errors.New("not found")}
}

func (t *TestRecipeSource) Load(ctx context.Context) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}
