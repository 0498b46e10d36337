// Package slack posts messages and meal plans to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"mealprep"
)

type Client struct {
	webhookURL string
	httpClient mealprep.HTTPClient
}

func NewClient(webhookURL string, httpClient mealprep.HTTPClient) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func (c *Client) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}

	return nil
}

// PostMealPlan posts the plan's meals and shopping list as one message.
func (c *Client) PostMealPlan(ctx context.Context, channel string, plan mealprep.MealPlan) error {
	return c.PostMessage(ctx, channel, FormatMealPlan(plan))
}

// FormatMealPlan renders a plan as Slack mrkdwn. Days without a meal are shown as missing.
func FormatMealPlan(plan mealprep.MealPlan) string {
	var b strings.Builder
	days := "days"
	if len(plan.Meals) == 1 {
		days = "day"
	}
	fmt.Fprintf(&b, "*Meal plan for %d %s*\n", len(plan.Meals), days)
	for _, m := range plan.Meals {
		name := m.MealName
		if name == "" {
			name = "_no meal could be generated_"
		}
		fmt.Fprintf(&b, "Day %d: %s\n", m.DayNumber, name)
	}

	if len(plan.ShoppingList) > 0 {
		b.WriteString("\n*Shopping list*\n")
		for _, item := range plan.ShoppingList {
			fmt.Fprintf(&b, "• %s\n", item)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
