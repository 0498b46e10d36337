package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FileRecipeSource struct {
	FilePath string
}

func NewFileRecipeSource(filePath string) *FileRecipeSource {
	return &FileRecipeSource{FilePath: filePath}
}

func (r *FileRecipeSource) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(r.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipes file: %w", err)
	}
	return b, nil
}

// Format guesses the corpus encoding from a file name or object key.
func Format(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
