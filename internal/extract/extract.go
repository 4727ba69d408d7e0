// Package extract recovers a single candidate SQL statement from the free
// text a language model returns. Strategies run most-specific first and the
// first one that produces exactly one candidate wins; two plausible
// candidates are reported as ambiguity, never resolved by guessing.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Strategy string

const (
	StrategyFencedBlock   Strategy = "fenced_block"
	StrategyJSONField     Strategy = "json_field"
	StrategyHeuristicScan Strategy = "heuristic_scan"
)

type Result struct {
	SQL      string
	Strategy Strategy
}

// NotFoundError reports why no candidate was extracted. Ambiguity and
// absence drive different corrective prompts upstream.
type NotFoundError struct {
	Ambiguous bool
	Detail    string
}

func (e *NotFoundError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("extract: multiple ambiguous SQL fragments: %s", e.Detail)
	}
	return fmt.Sprintf("extract: no SQL-like fragment: %s", e.Detail)
}

var (
	sqlFencePattern     = regexp.MustCompile("(?is)```sql\\s*(.*?)```")
	genericFencePattern = regexp.MustCompile("(?is)```\\s*(select\\b.*?)```")
	jsonObjectPattern   = regexp.MustCompile(`(?s)\{[^{}]*"sql(?:_query)?"[^{}]*\}`)
	selectRunPattern    = regexp.MustCompile(`(?is)\bselect\b.*?(?:;|\z)`)
)

type strategyFunc func(raw string) (Result, bool, error)

var strategies = []strategyFunc{
	scanFencedBlocks,
	scanJSONField,
	scanHeuristic,
}

// Extract runs the strategy chain over one raw model response.
func Extract(raw string) (Result, error) {
	if strings.TrimSpace(raw) == "" {
		return Result{}, &NotFoundError{Detail: "empty response"}
	}
	for _, strategy := range strategies {
		result, ok, err := strategy(raw)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return result, nil
		}
	}
	return Result{}, &NotFoundError{Detail: "no strategy matched"}
}

func scanFencedBlocks(raw string) (Result, bool, error) {
	matches := sqlFencePattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		matches = genericFencePattern.FindAllStringSubmatch(raw, -1)
	}
	switch len(matches) {
	case 0:
		return Result{}, false, nil
	case 1:
		sql := strings.TrimSpace(matches[0][1])
		if sql == "" {
			return Result{}, false, nil
		}
		return Result{SQL: sql, Strategy: StrategyFencedBlock}, true, nil
	default:
		return Result{}, false, &NotFoundError{Ambiguous: true, Detail: fmt.Sprintf("%d fenced SQL blocks", len(matches))}
	}
}

func scanJSONField(raw string) (Result, bool, error) {
	candidates := jsonObjectPattern.FindAllString(raw, -1)
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		candidates = append([]string{trimmed}, candidates...)
	}

	seen := map[string]bool{}
	var found []string
	for _, candidate := range candidates {
		var payload struct {
			SQL      string `json:"sql"`
			SQLQuery string `json:"sql_query"`
		}
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			continue
		}
		sql := strings.TrimSpace(payload.SQL)
		if sql == "" {
			sql = strings.TrimSpace(payload.SQLQuery)
		}
		if sql == "" || seen[strings.ToUpper(sql)] {
			continue
		}
		seen[strings.ToUpper(sql)] = true
		found = append(found, sql)
	}

	switch len(found) {
	case 0:
		return Result{}, false, nil
	case 1:
		return Result{SQL: found[0], Strategy: StrategyJSONField}, true, nil
	default:
		return Result{}, false, &NotFoundError{Ambiguous: true, Detail: fmt.Sprintf("%d JSON SQL fields", len(found))}
	}
}

func scanHeuristic(raw string) (Result, bool, error) {
	runs := selectRunPattern.FindAllString(raw, -1)
	switch len(runs) {
	case 0:
		return Result{}, false, nil
	case 1:
		return Result{SQL: strings.TrimSpace(runs[0]), Strategy: StrategyHeuristicScan}, true, nil
	default:
		return Result{}, false, &NotFoundError{Ambiguous: true, Detail: fmt.Sprintf("%d SELECT runs", len(runs))}
	}
}
