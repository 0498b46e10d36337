package planner

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"mealprep"
)

// ParseStatus says how much of a suggestion could be trusted.
type ParseStatus int

const (
	// StatusValid means the text decoded as JSON with every field present.
	StatusValid ParseStatus = iota
	// StatusPartial means the fields were recovered heuristically and a name was found.
	StatusPartial
	// StatusFailed means no meal name could be recovered.
	StatusFailed
)

func (s ParseStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

func (s ParseStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ParseStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "valid":
		*s = StatusValid
	case "partial":
		*s = StatusPartial
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown parse status %q", text)
	}
	return nil
}

// Parsed is the outcome of parsing a single suggestion.
type Parsed struct {
	Status ParseStatus
	Meal   mealprep.MealSuggestion
}

var (
	fencePattern      = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	nameMarker        = regexp.MustCompile(`(?i)meal_name"?\s*:\s*`)
	ingredientsMarker = regexp.MustCompile(`(?i)ingredients"?\s*:\s*`)
	recipeMarker      = regexp.MustCompile(`(?i)recipe"?\s*:\s*`)
	stepEnumerator    = regexp.MustCompile(`(?:^|\s)\d+\.\s+`)
	quotedListSep     = regexp.MustCompile(`"\s*,\s*"`)
	bulletPrefix      = regexp.MustCompile(`^\s*(?:[-*•]+|\d+\))\s*`)

	// dayMarker matches a "day: N" field, a "Day N:" heading at the start of a line, or a "N": { key.
	dayMarker = regexp.MustCompile(`(?im)(?:\bday"?\s*:\s*"?(\d+))|(?:^[^\w\n]*day\s+(\d+)\s*[:.)\-])|(?:"(\d+)"\s*:\s*\{)`)
)

const fragmentCutset = " \t\r\n\"'[]{},"

// stripFence returns the body of the first fenced code block, or the trimmed text when there is none.
func stripFence(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// jsonCandidate narrows raw down to the outermost JSON value it appears to contain.
func jsonCandidate(raw string) string {
	s := stripFence(raw)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	i := strings.IndexAny(s, "{[")
	j := strings.LastIndexAny(s, "}]")
	if i >= 0 && j > i {
		return s[i : j+1]
	}
	return s
}

var singleChain = []func(string) (Parsed, bool){
	parseSingleJSON,
	parseSingleFields,
}

// ParseSingle recovers one meal from loosely structured text. It never fails: fields that cannot be
// found are left empty and the status reports how far recovery got.
func ParseSingle(raw string) Parsed {
	for _, parse := range singleChain {
		if p, ok := parse(raw); ok {
			slog.Debug("PARSER: Parsed suggestion", "status", p.Status, "meal_name", p.Meal.MealName)
			return p
		}
	}
	return Parsed{Status: StatusFailed, Meal: emptyMeal()}
}

func parseSingleJSON(raw string) (Parsed, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonCandidate(raw)), &obj); err != nil {
		return Parsed{}, false
	}
	meal, ok := mealFromObject(obj)
	if !ok {
		return Parsed{}, false
	}
	return Parsed{Status: StatusValid, Meal: meal}, true
}

func parseSingleFields(raw string) (Parsed, bool) {
	meal := extractFields(raw)
	if meal.MealName == "" {
		return Parsed{Status: StatusFailed, Meal: meal}, true
	}
	return Parsed{Status: StatusPartial, Meal: meal}, true
}

// mealFromObject accepts an object only when meal_name is a non-empty string and both ingredients
// and recipe are present as arrays. Empty arrays count as present.
func mealFromObject(obj map[string]any) (mealprep.MealSuggestion, bool) {
	name, ok := obj["meal_name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return mealprep.MealSuggestion{}, false
	}
	ingredients, ok := toStrings(obj["ingredients"])
	if !ok {
		return mealprep.MealSuggestion{}, false
	}
	recipe, ok := toStrings(obj["recipe"])
	if !ok {
		return mealprep.MealSuggestion{}, false
	}
	return mealprep.MealSuggestion{
		MealName:    strings.TrimSpace(name),
		Ingredients: ingredients,
		Recipe:      recipe,
	}, true
}

func toStrings(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			s = fmt.Sprint(item)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, true
}

// extractFields pulls meal_name, ingredients and recipe out of free text by their markers.
func extractFields(text string) mealprep.MealSuggestion {
	meal := emptyMeal()

	nameLoc := nameMarker.FindStringIndex(text)
	ingLoc := ingredientsMarker.FindStringIndex(text)
	recLoc := recipeMarker.FindStringIndex(text)

	if nameLoc != nil {
		rest := text[nameLoc[1]:]
		if ingLoc != nil && ingLoc[0] >= nameLoc[1] {
			rest = text[nameLoc[1]:ingLoc[0]]
		}
		if i := strings.IndexAny(rest, ",\n"); i >= 0 {
			rest = rest[:i]
		}
		meal.MealName = strings.Trim(rest, fragmentCutset)
	}

	if ingLoc != nil {
		end := len(text)
		if recLoc != nil && recLoc[0] >= ingLoc[1] {
			end = recLoc[0]
		}
		meal.Ingredients = splitIngredients(text[ingLoc[1]:end])
	}

	if recLoc != nil {
		meal.Recipe = splitSteps(text[recLoc[1]:])
	}

	return meal
}

func splitIngredients(fragment string) []string {
	out := []string{}
	for _, part := range strings.FieldsFunc(fragment, func(r rune) bool { return r == ',' || r == '\n' }) {
		part = bulletPrefix.ReplaceAllString(part, "")
		if part = strings.Trim(part, fragmentCutset); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitSteps recovers ordered steps from either a quoted list or an enumerated block.
func splitSteps(fragment string) []string {
	fragment = strings.Trim(fragment, fragmentCutset)

	var parts []string
	if quotedListSep.MatchString(fragment) {
		parts = quotedListSep.Split(fragment, -1)
	} else {
		for _, chunk := range stepEnumerator.Split(fragment, -1) {
			parts = append(parts, strings.Split(chunk, "\n")...)
		}
	}

	out := []string{}
	for _, p := range parts {
		p = bulletPrefix.ReplaceAllString(strings.TrimSpace(p), "")
		if p = strings.Trim(p, fragmentCutset); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func emptyMeal() mealprep.MealSuggestion {
	return mealprep.MealSuggestion{Ingredients: []string{}, Recipe: []string{}}
}

// ParsePlan recovers a day-numbered list of meals. The JSON shape is accepted only when every entry is
// complete; a single incomplete entry sends the whole text through day-segmented extraction.
// Entries are returned in ascending day order.
func ParsePlan(raw string) ([]mealprep.MealPlanEntry, ParseStatus) {
	if entries, ok := parsePlanJSON(raw); ok {
		slog.Debug("PARSER: Parsed plan", "status", StatusValid, "days", len(entries))
		return entries, StatusValid
	}

	entries := parsePlanSegments(raw)
	status := StatusFailed
	for _, e := range entries {
		if e.MealName != "" {
			status = StatusPartial
			break
		}
	}
	slog.Debug("PARSER: Parsed plan", "status", status, "days", len(entries))
	return entries, status
}

func parsePlanJSON(raw string) ([]mealprep.MealPlanEntry, bool) {
	var doc any
	if err := json.Unmarshal([]byte(jsonCandidate(raw)), &doc); err != nil {
		return nil, false
	}

	var entries []mealprep.MealPlanEntry
	seen := make(map[int]bool)
	add := func(day int, obj map[string]any) bool {
		meal, ok := mealFromObject(obj)
		if !ok || seen[day] {
			return false
		}
		seen[day] = true
		entries = append(entries, mealprep.MealPlanEntry{MealSuggestion: meal, DayNumber: day})
		return true
	}

	switch v := doc.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil, false
		}
		for key, value := range v {
			obj, ok := value.(map[string]any)
			if !ok {
				return nil, false
			}
			day, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				if day, ok = dayOf(obj["day"]); !ok {
					return nil, false
				}
			}
			if !add(day, obj) {
				return nil, false
			}
		}
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		for _, value := range v {
			obj, ok := value.(map[string]any)
			if !ok {
				return nil, false
			}
			day, ok := dayOf(obj["day"])
			if !ok || !add(day, obj) {
				return nil, false
			}
		}
	default:
		return nil, false
	}

	sortByDay(entries)
	return entries, true
}

func dayOf(v any) (int, bool) {
	switch d := v.(type) {
	case float64:
		return int(d), d >= 1
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(d))
		return n, err == nil && n >= 1
	default:
		return 0, false
	}
}

// parsePlanSegments splits text at day markers and extracts one meal per segment. A day can be marked
// more than once, as with a "day" field inside a "N": { object; its first segment with a meal name wins.
func parsePlanSegments(raw string) []mealprep.MealPlanEntry {
	text := stripFence(raw)

	type segment struct {
		day        int
		start, end int
	}
	var segments []segment
	for _, loc := range dayMarker.FindAllStringSubmatchIndex(text, -1) {
		var digits string
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] >= 0 {
				digits = text[loc[g]:loc[g+1]]
				break
			}
		}
		day, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n := len(segments); n > 0 {
			segments[n-1].end = loc[0]
		}
		segments = append(segments, segment{day: day, start: loc[1], end: len(text)})
	}

	entries := make([]mealprep.MealPlanEntry, 0, len(segments))
	index := make(map[int]int, len(segments))
	for _, seg := range segments {
		meal := extractFields(text[seg.start:seg.end])
		if i, ok := index[seg.day]; ok {
			if entries[i].MealName == "" && meal.MealName != "" {
				entries[i].MealSuggestion = meal
			}
			continue
		}
		index[seg.day] = len(entries)
		entries = append(entries, mealprep.MealPlanEntry{MealSuggestion: meal, DayNumber: seg.day})
	}

	sortByDay(entries)
	return entries
}

func sortByDay(entries []mealprep.MealPlanEntry) {
	slices.SortStableFunc(entries, func(a, b mealprep.MealPlanEntry) int {
		return a.DayNumber - b.DayNumber
	})
}
