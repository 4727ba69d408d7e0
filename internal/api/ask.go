package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sqlward/sqlward/internal/pipeline"
	"github.com/sqlward/sqlward/internal/prompt"
)

type askExchange struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type askRequest struct {
	Question   string        `json:"question"`
	History    []askExchange `json:"history"`
	MaxResults int           `json:"max_results"`
}

type askResponse struct {
	SQL       string   `json:"sql"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
	Attempts  int      `json:"attempts"`
	DurationM int64    `json:"duration_ms"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, "asker"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if request.MaxResults < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_MAX_RESULTS", "max_results must not be negative", false, nil)
		return
	}

	history := make([]prompt.Exchange, 0, len(request.History))
	for _, exchange := range request.History {
		history = append(history, prompt.Exchange{Question: exchange.Question, SQL: exchange.SQL})
	}

	outcome := deps.Pipeline.Run(r.Context(), pipeline.Request{
		Question:   request.Question,
		History:    history,
		MaxResults: request.MaxResults,
	})

	switch outcome.Kind {
	case pipeline.OutcomeSucceeded:
		writeJSON(w, http.StatusOK, askResponse{
			SQL:       outcome.SQL,
			Columns:   outcome.Result.Columns,
			Rows:      outcome.Result.Rows,
			RowCount:  outcome.Result.RowCount,
			Truncated: outcome.Result.Truncated,
			Attempts:  len(outcome.Attempts),
			DurationM: outcome.Elapsed.Milliseconds(),
		})
	case pipeline.OutcomeExhaustedRetries:
		extra := map[string]any{"attempts": len(outcome.Attempts), "reason": outcome.LastReason}
		if outcome.LastViolation != nil {
			extra["violation"] = string(outcome.LastViolation.Kind)
			extra["detail"] = outcome.LastViolation.Detail
		}
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "RETRIES_EXHAUSTED", "no acceptable query was produced", false, extra)
	case pipeline.OutcomeUpstreamFailure:
		writeError(r.Context(), w, http.StatusServiceUnavailable, "COMPLETION_UNAVAILABLE", "completion service is unavailable", true, map[string]any{"reason": outcome.LastReason})
	case pipeline.OutcomeExecutionFailed:
		writeError(r.Context(), w, http.StatusBadRequest, "EXECUTION_FAILED", "accepted query failed during execution", false, map[string]any{"sql": outcome.SQL, "details": outcome.LastReason})
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "UNEXPECTED_OUTCOME", "pipeline returned an unknown outcome", false, nil)
	}
}
