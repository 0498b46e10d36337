package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"mealprep"
)

const defaultMealsLimit = 100

const mealColumns = `id, meal_plan_id, day_number, meal_name, ingredients, recipe, date, accepted, feedback`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeal(row rowScanner) (mealprep.MealRecord, error) {
	var (
		rec         mealprep.MealRecord
		planID      sql.NullInt64
		ingredients string
		recipe      string
		date        int64
	)
	if err := row.Scan(&rec.ID, &planID, &rec.DayNumber, &rec.MealName, &ingredients, &recipe, &date, &rec.Accepted, &rec.Feedback); err != nil {
		return mealprep.MealRecord{}, err
	}
	rec.MealPlanID = planID.Int64
	rec.Date = fromMillis(date)
	if err := json.Unmarshal([]byte(ingredients), &rec.Ingredients); err != nil {
		return mealprep.MealRecord{}, fmt.Errorf("meal %d ingredients: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(recipe), &rec.Recipe); err != nil {
		return mealprep.MealRecord{}, fmt.Errorf("meal %d recipe: %w", rec.ID, err)
	}
	return rec, nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMeal(ctx context.Context, db execer, rec mealprep.MealRecord) (int64, error) {
	ingredients, err := encodeList(rec.Ingredients)
	if err != nil {
		return 0, fmt.Errorf("encode ingredients: %w", err)
	}
	recipe, err := encodeList(rec.Recipe)
	if err != nil {
		return 0, fmt.Errorf("encode recipe: %w", err)
	}

	var planID sql.NullInt64
	if rec.MealPlanID != 0 {
		planID = sql.NullInt64{Int64: rec.MealPlanID, Valid: true}
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO meals (meal_plan_id, day_number, meal_name, ingredients, recipe, date, accepted, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		planID, rec.DayNumber, rec.MealName, ingredients, recipe, toMillis(rec.Date), rec.Accepted, rec.Feedback)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) queryMeals(ctx context.Context, query string, args ...any) ([]mealprep.MealRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []mealprep.MealRecord
	for rows.Next() {
		rec, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		meals = append(meals, rec)
	}
	return meals, rows.Err()
}

// RecentMealNames returns the names of meals dated within the last daysBack days, newest first.
// Unnamed placeholder days saved with a plan are skipped.
func (s *Store) RecentMealNames(ctx context.Context, daysBack int) ([]string, error) {
	threshold := s.now().Add(-time.Duration(daysBack) * 24 * time.Hour)

	rows, err := s.db.QueryContext(ctx,
		`SELECT meal_name FROM meals WHERE date > ? AND TRIM(meal_name) <> '' ORDER BY date DESC`, toMillis(threshold))
	if err != nil {
		return nil, fmt.Errorf("recent meals: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("recent meals: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent meals: %w", err)
	}
	return names, nil
}

// RecordMeal appends a meal to the log.
func (s *Store) RecordMeal(ctx context.Context, rec mealprep.MealRecord) (int64, error) {
	if rec.Date.IsZero() {
		rec.Date = s.now()
	}
	id, err := insertMeal(ctx, s.db, rec)
	if err != nil {
		return 0, fmt.Errorf("record meal: %w", err)
	}
	slog.Info("STORE: Recorded meal", "id", id, "meal_name", rec.MealName)
	return id, nil
}

func (s *Store) updateMeal(ctx context.Context, id int64, column string, value any) error {
	res, err := s.db.ExecContext(ctx, `UPDATE meals SET `+column+` = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("update meal %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meal %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("meal %d: %w", id, mealprep.ErrNotFound)
	}
	return nil
}

func (s *Store) UpdateMealFeedback(ctx context.Context, id int64, feedback string) error {
	return s.updateMeal(ctx, id, "feedback", feedback)
}

func (s *Store) UpdateMealAcceptance(ctx context.Context, id int64, accepted bool) error {
	return s.updateMeal(ctx, id, "accepted", accepted)
}

// MealsByName returns every logged meal with exactly this name.
func (s *Store) MealsByName(ctx context.Context, name string) ([]mealprep.MealRecord, error) {
	meals, err := s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals WHERE meal_name = ? ORDER BY date DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("meals by name: %w", err)
	}
	return meals, nil
}

// AllMeals returns the newest meals, at most limit (100 when limit is not positive).
func (s *Store) AllMeals(ctx context.Context, limit int) ([]mealprep.MealRecord, error) {
	if limit <= 0 {
		limit = defaultMealsLimit
	}
	meals, err := s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("all meals: %w", err)
	}
	return meals, nil
}

// SavePlan stores the plan header and one meal row per day in a single transaction.
func (s *Store) SavePlan(ctx context.Context, plan mealprep.MealPlan, meta mealprep.PlanMeta) (int64, error) {
	ctx, span := otel.Tracer(mealprep.TracerNameStore).Start(ctx, "Store.SavePlan")
	defer span.End()

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	shopping, err := encodeList(plan.ShoppingList)
	if err != nil {
		return 0, fmt.Errorf("encode shopping list: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("save plan: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO meal_plans (name, num_days, num_people, dietary_preferences, shopping_list, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		meta.Name, meta.NumDays, meta.NumPeople, meta.DietaryPreferences, shopping, toMillis(meta.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("save plan: %w", err)
	}
	planID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("save plan: %w", err)
	}

	for _, e := range plan.Meals {
		if _, err := insertMeal(ctx, tx, mealprep.MealRecord{
			MealPlanID:  planID,
			DayNumber:   e.DayNumber,
			MealName:    e.MealName,
			Ingredients: e.Ingredients,
			Recipe:      e.Recipe,
			Date:        meta.CreatedAt,
		}); err != nil {
			return 0, fmt.Errorf("save plan day %d: %w", e.DayNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("save plan: %w", err)
	}
	span.SetAttributes(attribute.Int64("plan.id", planID), attribute.Int("plan.days", len(plan.Meals)))
	slog.Info("STORE: Saved meal plan", "id", planID, "days", len(plan.Meals))
	return planID, nil
}

// LatestPlan returns the newest plan with its meals in day order.
func (s *Store) LatestPlan(ctx context.Context) (*mealprep.StoredPlan, error) {
	var (
		sp       mealprep.StoredPlan
		shopping string
		created  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, num_days, num_people, dietary_preferences, shopping_list, created_at
		FROM meal_plans ORDER BY created_at DESC, id DESC LIMIT 1`).
		Scan(&sp.Plan.ID, &sp.Plan.Name, &sp.Plan.NumDays, &sp.Plan.NumPeople, &sp.Plan.DietaryPreferences, &shopping, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest plan: %w", mealprep.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest plan: %w", err)
	}
	sp.Plan.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(shopping), &sp.ShoppingList); err != nil {
		return nil, fmt.Errorf("plan %d shopping list: %w", sp.Plan.ID, err)
	}

	sp.Meals, err = s.queryMeals(ctx, `SELECT `+mealColumns+` FROM meals WHERE meal_plan_id = ? ORDER BY day_number, id`, sp.Plan.ID)
	if err != nil {
		return nil, fmt.Errorf("plan %d meals: %w", sp.Plan.ID, err)
	}
	return &sp, nil
}

// ReplaceMealInPlan deletes the old meal and inserts the new one on the same plan and day.
func (s *Store) ReplaceMealInPlan(ctx context.Context, oldMealID int64, meal mealprep.MealSuggestion) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("replace meal: %w", err)
	}
	defer tx.Rollback()

	var (
		planID sql.NullInt64
		day    int
	)
	err = tx.QueryRowContext(ctx, `SELECT meal_plan_id, day_number FROM meals WHERE id = ?`, oldMealID).Scan(&planID, &day)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("meal %d: %w", oldMealID, mealprep.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("replace meal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM meals WHERE id = ?`, oldMealID); err != nil {
		return 0, fmt.Errorf("replace meal: %w", err)
	}
	newID, err := insertMeal(ctx, tx, mealprep.MealRecord{
		MealPlanID:  planID.Int64,
		DayNumber:   day,
		MealName:    meal.MealName,
		Ingredients: meal.Ingredients,
		Recipe:      meal.Recipe,
		Date:        s.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("replace meal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("replace meal: %w", err)
	}
	slog.Info("STORE: Replaced meal", "old_id", oldMealID, "new_id", newID, "day", day)
	return newID, nil
}

func (s *Store) UpdateShoppingList(ctx context.Context, planID int64, list []string) error {
	shopping, err := encodeList(list)
	if err != nil {
		return fmt.Errorf("encode shopping list: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE meal_plans SET shopping_list = ? WHERE id = ?`, shopping, planID)
	if err != nil {
		return fmt.Errorf("update shopping list: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update shopping list: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("plan %d: %w", planID, mealprep.ErrNotFound)
	}
	return nil
}
