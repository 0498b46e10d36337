package sqlite

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mealprep"
)

// filterColumns are the recipe columns a search filter may constrain.
var filterColumns = map[string]string{
	"diet_pref": "diet_pref",
	"dessert":   "dessert",
}

// UpsertRecipe inserts the recipe or, when the title already exists, replaces its contents,
// metadata and embedding while keeping the original id.
func (s *Store) UpsertRecipe(ctx context.Context, r mealprep.RecipeRow, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipes (id, title, contents, diet_pref, dessert, embedding) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			contents = excluded.contents,
			diet_pref = excluded.diet_pref,
			dessert = excluded.dessert,
			embedding = excluded.embedding`,
		r.ID, r.Title, r.Contents, r.DietPref, r.Dessert, float32SliceToByteSlice(embedding))
	if err != nil {
		return fmt.Errorf("upsert recipe %q: %w", r.Title, err)
	}
	return nil
}

func (s *Store) CountRecipes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	return n, nil
}

// Search embeds the terms and returns the limit recipes closest by cosine similarity, best first.
// filter restricts rows by exact match on diet_pref or dessert.
func (s *Store) Search(ctx context.Context, terms []string, limit int, filter map[string]string) ([]mealprep.RecipeRow, error) {
	ctx, span := otel.Tracer(mealprep.TracerNameStore).Start(ctx, "Store.Search")
	defer span.End()

	if s.embedder == nil {
		return nil, errors.New("search: no embedder configured")
	}
	query := strings.Join(terms, ", ")
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where, args, err := whereClause(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, contents, diet_pref, dessert, embedding FROM recipes`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}
	defer rows.Close()

	var scored []mealprep.RecipeRow
	for rows.Next() {
		var (
			r    mealprep.RecipeRow
			blob []byte
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Contents, &r.DietPref, &r.Dessert, &blob); err != nil {
			return nil, fmt.Errorf("search recipes: %w", err)
		}
		embed, err := byteSliceToFloat32Slice(blob)
		if err != nil {
			slog.Warn("STORE: Skipping recipe with bad embedding", "id", r.ID, "error", err)
			continue
		}
		r.Score = cosineSimilarity(vec, embed)
		scored = append(scored, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search recipes: %w", err)
	}

	slices.SortStableFunc(scored, func(a, b mealprep.RecipeRow) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}

	span.SetAttributes(attribute.Int("search.results", len(scored)))
	slog.Info("STORE: Searched recipes", "query", query, "results", len(scored))
	return scored, nil
}

func whereClause(filter map[string]string) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var (
		conds []string
		args  []any
	)
	for _, k := range keys {
		col, ok := filterColumns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown filter %q", mealprep.ErrInvalidRequest, k)
		}
		conds = append(conds, col+" = ?")
		if col == "dessert" {
			args = append(args, filter[k] == "true" || filter[k] == "1")
			continue
		}
		args = append(args, filter[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// DiverseRecipes returns a random sample, restricted to contents containing dietary when it is set.
func (s *Store) DiverseRecipes(ctx context.Context, limit int, dietary string) ([]mealprep.RecipeRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, contents, diet_pref, dessert FROM recipes WHERE contents LIKE ? ORDER BY RANDOM() LIMIT ?`,
		"%"+dietary+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("diverse recipes: %w", err)
	}
	defer rows.Close()

	var out []mealprep.RecipeRow
	for rows.Next() {
		var r mealprep.RecipeRow
		if err := rows.Scan(&r.ID, &r.Title, &r.Contents, &r.DietPref, &r.Dessert); err != nil {
			return nil, fmt.Errorf("diverse recipes: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("diverse recipes: %w", err)
	}
	return out, nil
}

func float32SliceToByteSlice(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(floats))
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(f))
	}
	return buf
}

func byteSliceToFloat32Slice(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, errors.New("byte slice length is not a multiple of 4")
	}
	floats := make([]float32, len(b)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return floats, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
