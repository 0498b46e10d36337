package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mealprep"
)

const validMealJSON = `{"meal_name": "Tacos", "ingredients": ["beef", "tortillas"], "recipe": ["Cook beef", "Assemble"]}`

func suggestionRequest() mealprep.CompletionRequest {
	return mealprep.CompletionRequest{
		System:      systemPrompt,
		Prompt:      "suggest something",
		Schema:      SuggestionSchema(),
		SchemaName:  SuggestionSchemaName,
		Temperature: 1.0,
	}
}

func TestInvoker_Invoke(t *testing.T) {
	tests := []struct {
		name         string
		responses    []completion
		wantState    AttemptState
		wantAttempts int
		wantRaw      string
		wantSleeps   int
	}{
		{
			name:         "first attempt valid",
			responses:    []completion{{text: validMealJSON}},
			wantState:    StateSuccess,
			wantAttempts: 1,
			wantRaw:      validMealJSON,
		},
		{
			name:         "invalid then valid",
			responses:    []completion{{text: `{"meal_name": "Tacos"}`}, {text: validMealJSON}},
			wantState:    StateSuccess,
			wantAttempts: 2,
			wantRaw:      validMealJSON,
			wantSleeps:   1,
		},
		{
			name:         "transport error then valid",
			responses:    []completion{{err: assert.AnError}, {text: validMealJSON}},
			wantState:    StateSuccess,
			wantAttempts: 2,
			wantRaw:      validMealJSON,
			wantSleeps:   1,
		},
		{
			name:         "always invalid keeps last text",
			responses:    []completion{{text: "meal_name: A"}, {text: "meal_name: B"}, {text: validMealJSON}},
			wantState:    StateExhausted,
			wantAttempts: 2,
			wantRaw:      "meal_name: B",
			wantSleeps:   1,
		},
		{
			name:         "always failing transport",
			responses:    []completion{{err: assert.AnError}, {err: assert.AnError}},
			wantState:    StateExhausted,
			wantAttempts: 2,
			wantSleeps:   1,
		},
		{
			name:         "extra properties are rejected",
			responses:    []completion{{text: `{"meal_name": "A", "ingredients": [], "recipe": [], "wine": "red"}`}, {text: "nope"}},
			wantState:    StateExhausted,
			wantAttempts: 2,
			wantRaw:      "nope",
			wantSleeps:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &mockCompleter{responses: tt.responses}
			logger := &recordingLogger{}
			var pauses []time.Duration

			inv := NewInvoker(completer, InvokerOptions{
				Logger: logger,
				Sleep: func(ctx context.Context, d time.Duration) error {
					pauses = append(pauses, d)
					return nil
				},
			})

			out := inv.Invoke(context.Background(), suggestionRequest(), "suggest_meal")

			assert.Equal(t, tt.wantState, out.State)
			assert.Equal(t, tt.wantAttempts, out.Attempts)
			assert.Equal(t, tt.wantRaw, out.Raw)
			assert.LessOrEqual(t, completer.callCount, 2, "never more than two upstream calls")
			assert.Len(t, completer.requests, tt.wantAttempts)
			assert.Len(t, pauses, tt.wantSleeps)
			for _, p := range pauses {
				assert.Equal(t, time.Second, p)
			}

			require.Len(t, logger.attempts, tt.wantAttempts)
			last := logger.attempts[len(logger.attempts)-1]
			assert.Equal(t, tt.wantState == StateSuccess, last.Valid)
			assert.Equal(t, "suggest_meal", last.Operation)

			if tt.wantState == StateSuccess {
				assert.Equal(t, "Tacos", out.Value["meal_name"])
			} else {
				assert.Nil(t, out.Value)
			}
		})
	}
}

func TestInvoker_InvokeStopsWhenPauseIsCancelled(t *testing.T) {
	completer := &mockCompleter{responses: []completion{{text: "bad"}, {text: validMealJSON}}}
	inv := NewInvoker(completer, InvokerOptions{
		Sleep: func(ctx context.Context, d time.Duration) error { return context.Canceled },
	})

	out := inv.Invoke(context.Background(), suggestionRequest(), "suggest_meal")

	assert.Equal(t, StateExhausted, out.State)
	assert.Equal(t, 1, completer.callCount)
	assert.Equal(t, "bad", out.Raw)
}

func TestInvoker_AttemptsAreCapped(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		wantCalls int
	}{
		{name: "default", attempts: 0, wantCalls: 2},
		{name: "single attempt", attempts: 1, wantCalls: 1},
		{name: "above the cap", attempts: 5, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &mockCompleter{responses: []completion{{text: "a"}, {text: "b"}, {text: validMealJSON}}}
			inv := NewInvoker(completer, InvokerOptions{Attempts: tt.attempts, Sleep: noSleep})

			out := inv.Invoke(context.Background(), suggestionRequest(), "suggest_meal")

			assert.Equal(t, StateExhausted, out.State)
			assert.Equal(t, tt.wantCalls, out.Attempts)
			assert.Equal(t, tt.wantCalls, completer.callCount)
		})
	}
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepContext(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

func TestValidate(t *testing.T) {
	_, err := Validate(SuggestionSchema(), `{"meal_name": "A", "ingredients": "eggs", "recipe": []}`)
	assert.ErrorIs(t, err, mealprep.ErrSchemaValidation)

	_, err = Validate(PlanSchema(2), `{"1": `+validMealJSON+`}`)
	assert.ErrorIs(t, err, mealprep.ErrSchemaValidation, "day 2 is required")

	v, err := Validate(PlanSchema(2), `{"1": `+validMealJSON+`, "2": `+validMealJSON+`}`)
	require.NoError(t, err)
	assert.Len(t, v, 2)

	_, err = Validate(nil, "null")
	assert.ErrorIs(t, err, mealprep.ErrSchemaValidation)
}
