package planner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mealprep"
)

const (
	maxAttempts  = 2
	defaultPause = time.Second
)

// AttemptState is where an invocation ended up.
type AttemptState int

const (
	StateAttempting AttemptState = iota
	StateSuccess
	StateExhausted
)

func (s AttemptState) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	default:
		return "attempting"
	}
}

// Outcome is the result of a structured invocation. Value is set only on StateSuccess.
// Raw holds the last text received, if any, for heuristic parsing.
type Outcome struct {
	State    AttemptState
	Value    map[string]any
	Raw      string
	Attempts int
}

// InvokerOptions tunes the retry loop. Attempts is capped at 2; zero values fall back to 2 attempts and
// a one second pause.
type InvokerOptions struct {
	Attempts int
	Pause    time.Duration
	Logger   mealprep.CoordinationLogger
	// Sleep waits between attempts; it must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Invoker calls a Completer with a declared schema and validates what comes back.
type Invoker struct {
	completer mealprep.Completer
	attempts  int
	pause     time.Duration
	logger    mealprep.CoordinationLogger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewInvoker(completer mealprep.Completer, opts InvokerOptions) *Invoker {
	inv := &Invoker{
		completer: completer,
		attempts:  opts.Attempts,
		pause:     opts.Pause,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
	}
	if inv.attempts <= 0 || inv.attempts > maxAttempts {
		inv.attempts = maxAttempts
	}
	if inv.pause <= 0 {
		inv.pause = defaultPause
	}
	if inv.logger == nil {
		inv.logger = mealprep.NewNoOpCoordinationLogger()
	}
	if inv.sleep == nil {
		inv.sleep = sleepContext
	}
	return inv
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Invoke makes up to the configured number of sequential attempts. It never returns an error:
// exhausting the attempts yields StateExhausted so the caller can fall back to heuristic parsing.
func (inv *Invoker) Invoke(ctx context.Context, req mealprep.CompletionRequest, operation string) Outcome {
	ctx, span := otel.Tracer(mealprep.TracerNameInvoker).Start(ctx, "Invoker.Invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("schema", req.SchemaName),
	)

	schemaText := ""
	if req.Schema != nil {
		if b, err := json.Marshal(req.Schema); err == nil {
			schemaText = string(b)
		}
	}

	out := Outcome{State: StateAttempting}
	for attempt := 1; out.State == StateAttempting; attempt++ {
		out.Attempts = attempt
		value, raw, err := inv.attempt(ctx, req, attempt)
		if raw != "" {
			out.Raw = raw
		}

		entry := mealprep.AttemptLog{
			Operation: operation,
			Attempt:   attempt,
			Timestamp: time.Now(),
			Schema:    schemaText,
			Prompt:    req.Prompt,
			Output:    raw,
			Valid:     err == nil,
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if lerr := inv.logger.LogAttempt(entry); lerr != nil {
			slog.Warn("INVOKER: Failed to log attempt", "error", lerr)
		}

		switch {
		case err == nil:
			out.State = StateSuccess
			out.Value = value
		case attempt >= inv.attempts:
			slog.Warn("INVOKER: Attempts exhausted", "operation", operation, "attempts", attempt, "error", err)
			out.State = StateExhausted
		default:
			slog.Warn("INVOKER: Attempt failed, retrying", "operation", operation, "attempt", attempt, "pause", inv.pause, "error", err)
			if serr := inv.sleep(ctx, inv.pause); serr != nil {
				out.State = StateExhausted
			}
		}
	}

	span.SetAttributes(
		attribute.Int("attempts", out.Attempts),
		attribute.String("state", out.State.String()),
	)
	if out.State == StateExhausted {
		span.SetStatus(codes.Error, "attempts exhausted")
	}
	return out
}

func (inv *Invoker) attempt(ctx context.Context, req mealprep.CompletionRequest, attempt int) (map[string]any, string, error) {
	ctx, span := otel.Tracer(mealprep.TracerNameInvoker).Start(ctx, "Invoker.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", attempt))

	raw, err := inv.completer.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}

	value, err := Validate(req.Schema, raw)
	if err != nil {
		span.RecordError(err)
		return nil, raw, err
	}
	return value, raw, nil
}
