package planner

import (
	"fmt"
	"strings"
)

// AggregateShoppingList groups ingredients case-insensitively in first-seen order. A group seen more
// than once renders as "<first spelling> (x<count>)". No quantities are parsed.
func AggregateShoppingList(ingredients []string) []string {
	type group struct {
		display string
		count   int
	}

	order := make([]string, 0, len(ingredients))
	groups := make(map[string]*group, len(ingredients))
	for _, ing := range ingredients {
		display := strings.TrimSpace(ing)
		if display == "" {
			continue
		}
		key := strings.ToLower(display)
		if g, ok := groups[key]; ok {
			g.count++
			continue
		}
		groups[key] = &group{display: display, count: 1}
		order = append(order, key)
	}

	list := make([]string, 0, len(order))
	for _, key := range order {
		g := groups[key]
		if g.count > 1 {
			list = append(list, fmt.Sprintf("%s (x%d)", g.display, g.count))
			continue
		}
		list = append(list, g.display)
	}
	return list
}
