// Package pipeline drives one question through the full chain: build the
// prompt, call the completion model, extract a candidate statement, validate
// it, and execute the accepted statement. Extraction and validation failures
// are retried with a corrective prompt under a fixed attempt bound; upstream
// completion failures are retried without one; execution failures are
// terminal for the request.
package pipeline

import (
	"time"

	"github.com/sqlward/sqlward/internal/prompt"
	"github.com/sqlward/sqlward/internal/query"
	"github.com/sqlward/sqlward/internal/validate"
)

type Request struct {
	Question string
	History  []prompt.Exchange
	// MaxResults tightens the configured row bound for this request only.
	// Zero or anything above the configured bound means the configured bound.
	MaxResults int
}

type OutcomeKind string

const (
	OutcomeSucceeded        OutcomeKind = "succeeded"
	OutcomeExhaustedRetries OutcomeKind = "exhausted_retries"
	OutcomeUpstreamFailure  OutcomeKind = "upstream_failure"
	OutcomeExecutionFailed  OutcomeKind = "execution_failed"
)

// Stages an attempt can fail in.
const (
	StageCompletion = "completion"
	StageExtraction = "extraction"
	StageValidation = "validation"
	StageExecution  = "execution"
)

// Attempt records one retry iteration: the prompt sent, the raw model
// response (empty when the completion call itself failed), the stage reached
// and how it ended. Appended to the outcome's history, never mutated after.
type Attempt struct {
	Index       int
	Prompt      string
	RawResponse string
	Stage       string
	SQL         string
	Failure     string
	Elapsed     time.Duration
}

type Outcome struct {
	Kind          OutcomeKind
	SQL           string
	Result        query.Result
	Attempts      []Attempt
	LastViolation *validate.Violation
	LastReason    string
	Elapsed       time.Duration
}
