// Package llm holds helpers shared by the completion providers.
package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"mealprep"
)

// Limited wraps a Completer so that calls never exceed a fixed rate.
type Limited struct {
	next    mealprep.Completer
	limiter *rate.Limiter
}

// NewLimited allows perMinute calls per minute with a burst of one. A non-positive rate returns next unchanged.
func NewLimited(next mealprep.Completer, perMinute int) mealprep.Completer {
	if perMinute <= 0 {
		return next
	}
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute)/60, 1),
	}
}

func (l *Limited) Complete(ctx context.Context, req mealprep.CompletionRequest) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Complete(ctx, req)
}
