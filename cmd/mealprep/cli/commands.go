package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"mealprep"
	"mealprep/app"
	"mealprep/mcpserver"
	"mealprep/planner"
	"mealprep/tools"
)

var (
	ingredients []string
	rejected    []string
	numDays     int
	singleCall  bool
	save        bool
	postSlack   bool
	mealRecipe  []string
	accepted    bool
	rejectMeal  bool
	workers     int
	sample      int
	limit       int
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest one meal",
	Long: `Suggests a single meal that avoids everything eaten in the last --days-back days.

Example:
  mealprep suggest --ingredient chickpeas --ingredient spinach --diet vegetarian`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sug, err := a.Service.SuggestMeal(ctx, planner.SuggestRequest{
				Ingredients:        ingredients,
				DaysBack:           daysBack,
				NumPeople:          numPeople,
				DietaryPreferences: dietary,
				RejectedMeals:      rejected,
			})
			if err != nil {
				return err
			}
			if sug.Failed() {
				slog.Warn("PLANNER: No meal could be generated", "attempts", sug.Attempts)
			}
			return printResult(cmd, sug)
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a multi-day meal plan",
	Long: `Generates one meal per day with an aggregated shopping list.

By default each day is its own completion. --single-call asks for the whole
plan at once. --save stores the plan so that "latest" and "regenerate" can
find it, and --slack posts it to SLACK_WEBHOOK_URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			req := planner.PlanRequest{
				NumDays:            numDays,
				NumPeople:          numPeople,
				DaysBack:           daysBack,
				DietaryPreferences: dietary,
				Ingredients:        ingredients,
			}

			generate := a.Service.GenerateMealPlan
			if singleCall {
				generate = a.Service.GenerateMealPlanSingleCall
			}
			plan, err := generate(ctx, req)
			if err != nil {
				return err
			}

			if save {
				id, err := a.Service.SaveMealPlan(ctx, plan, mealprep.PlanMeta{
					NumDays:            numDays,
					NumPeople:          numPeople,
					DietaryPreferences: dietary,
				})
				if err != nil {
					return err
				}
				slog.Info("STORE: Meal plan saved", "meal_plan_id", id)
			}
			if postSlack {
				postPlan(ctx, a.Config.Slack, plan)
			}
			return printResult(cmd, plan)
		})
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate [day]",
	Short: "Replace one day of the latest saved plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: day must be a number: %w", mealprep.ErrInvalidRequest, err)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sug, mealID, err := a.Service.ReplacePlannedMeal(ctx, day, numPeople, dietary)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"meal_id": mealID, "suggestion": sug})
		})
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently saved plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stored, err := a.Service.LatestPlan(ctx)
			if errors.Is(err, mealprep.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "No meal plan saved yet.")
				return nil
			}
			if err != nil {
				return err
			}
			if postSlack {
				postPlan(ctx, a.Config.Slack, stored.MealPlan())
			}
			return printResult(cmd, stored)
		})
	},
}

var cookCmd = &cobra.Command{
	Use:   "cook [meal name]",
	Short: "Record a meal as cooked today",
	Long: `Adds the meal to the history so that suggestions avoid it for the next
--days-back days.

Example:
  mealprep cook "Bean Chili" --ingredient "kidney beans" --ingredient onion`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			id, err := a.Service.CookMeal(ctx, mealprep.MealSuggestion{
				MealName:    args[0],
				Ingredients: ingredients,
				Recipe:      mealRecipe,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]any{"meal_id": id})
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [meal name]",
	Short: "List cooked and planned meals, newest first",
	Long: `Lists the meal log with ids, feedback and acceptance. With a meal name only
meals with exactly that name are shown.

Example:
  mealprep history "Bean Chili"
  mealprep history --limit 10`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			meals, err := a.Service.MealHistory(ctx, name, limit)
			if err != nil {
				return err
			}
			if meals == nil {
				meals = []mealprep.MealRecord{}
			}
			return printResult(cmd, meals)
		})
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback [meal id] [feedback]",
	Short: "Attach feedback to a logged meal",
	Long: `Stores free-text feedback for a meal. --accepted or --rejected also
updates whether the meal was accepted.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: meal id must be a number: %w", mealprep.ErrInvalidRequest, err)
		}
		if accepted && rejectMeal {
			return fmt.Errorf("%w: --accepted and --rejected are exclusive", mealprep.ErrInvalidRequest)
		}
		if len(args) < 2 && !accepted && !rejectMeal {
			return fmt.Errorf("%w: nothing to record", mealprep.ErrInvalidRequest)
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if len(args) == 2 {
				if err := a.Service.AddFeedback(ctx, id, args[1]); err != nil {
					return err
				}
			}
			if accepted || rejectMeal {
				if err := a.Service.SetAccepted(ctx, id, accepted); err != nil {
					return err
				}
			}
			slog.Info("STORE: Feedback recorded", "meal_id", id)
			return nil
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the recipe corpus into the database",
	Long: `Reads recipes from ARTIFACTS_RECIPES_PATH, or from S3 when ARTIFACTS_S3_BUCKET
and ARTIFACTS_RECIPES_S3_KEY are set. Each recipe is classified, embedded and
upserted by title, so running it again refreshes the corpus.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Ingest(ctx, workers, sample)
			if err != nil {
				return err
			}
			slog.Info("INGEST: Done", "loaded", res.Loaded, "skipped", res.Skipped, "ingested", res.Ingested)
			return printResult(cmd, res)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the meal tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			slog.Info("MCP: Serving on stdio", "version", version)
			return mcpserver.New(a.Registry, a.Service, version).Run(ctx)
		})
	},
}

func init() {
	suggestCmd.Flags().StringSliceVarP(&ingredients, "ingredient", "i", nil, "Ingredients to use (repeatable)")
	suggestCmd.Flags().StringSliceVar(&rejected, "reject", nil, "Meal names to avoid besides recent history")

	planCmd.Flags().StringSliceVarP(&ingredients, "ingredient", "i", nil, "Ingredients to use (repeatable)")
	planCmd.Flags().IntVarP(&numDays, "days", "d", tools.DefaultNumDays, "Number of days to plan")
	planCmd.Flags().BoolVar(&singleCall, "single-call", false, "Generate the whole plan in one completion")
	planCmd.Flags().BoolVar(&save, "save", false, "Save the plan")
	planCmd.Flags().BoolVar(&postSlack, "slack", false, "Post the plan to Slack")

	latestCmd.Flags().BoolVar(&postSlack, "slack", false, "Post the plan to Slack")

	cookCmd.Flags().StringSliceVarP(&ingredients, "ingredient", "i", nil, "Ingredients used")
	cookCmd.Flags().StringSliceVar(&mealRecipe, "step", nil, "Recipe steps")

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of meals (default 100)")

	feedbackCmd.Flags().BoolVar(&accepted, "accepted", false, "Mark the meal as accepted")
	feedbackCmd.Flags().BoolVar(&rejectMeal, "rejected", false, "Mark the meal as rejected")

	ingestCmd.Flags().IntVar(&workers, "workers", 4, "Concurrent embedding calls")
	ingestCmd.Flags().IntVar(&sample, "sample", 0, "Ingest only this many random recipes")
}
