package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sqlward/sqlward/internal/catalog"
	"github.com/sqlward/sqlward/internal/extract"
	"github.com/sqlward/sqlward/internal/llm"
	"github.com/sqlward/sqlward/internal/observability"
	"github.com/sqlward/sqlward/internal/prompt"
	"github.com/sqlward/sqlward/internal/query"
	"github.com/sqlward/sqlward/internal/validate"
)

type Config struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
	CompletionTimeout time.Duration
}

// FileSource lists the parquet files backing the catalog tables.
type FileSource interface {
	ListDataFiles(ctx context.Context) ([]catalog.DataFile, error)
}

type Deps struct {
	Client     llm.Client
	Builder    *prompt.Builder
	Descriptor *catalog.Descriptor
	Validator  *validate.Validator
	Executor   *query.Executor
	Files      FileSource
	Logger     *slog.Logger
}

type sleepFunc func(ctx context.Context, delay time.Duration) error

type Controller struct {
	cfg   Config
	deps  Deps
	sleep sleepFunc
}

func New(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{cfg: cfg, deps: deps, sleep: sleepWithContext}
}

// Run drives one request to a terminal outcome. It is safe to call
// concurrently from independent requests; all mutable state is local to the
// call.
func (c *Controller) Run(ctx context.Context, request Request) Outcome {
	start := time.Now()
	var (
		attempts      []Attempt
		correction    *prompt.Correction
		lastViolation *validate.Violation
		lastReason    string
		lastStage     string
	)

	finish := func(outcome Outcome) Outcome {
		outcome.Attempts = attempts
		outcome.Elapsed = time.Since(start)
		observability.ObservePipelineOutcome(string(outcome.Kind), len(attempts), outcome.Elapsed)
		return outcome
	}

	for index := 0; index < c.cfg.MaxAttempts; index++ {
		if index > 0 {
			if err := c.sleep(ctx, c.backoffDelay(index-1)); err != nil {
				return finish(Outcome{Kind: OutcomeUpstreamFailure, LastReason: "request cancelled during backoff"})
			}
		}
		if err := ctx.Err(); err != nil {
			return finish(Outcome{Kind: OutcomeUpstreamFailure, LastReason: "request cancelled"})
		}

		attemptStart := time.Now()
		promptText := c.deps.Builder.BuildWithLimit(request.Question, c.deps.Descriptor, request.History, correction, request.MaxResults)
		record := func(attempt Attempt) {
			attempt.Index = index
			attempt.Prompt = promptText
			attempt.Elapsed = time.Since(attemptStart)
			attempts = append(attempts, attempt)
		}

		raw, err := c.generate(ctx, promptText)
		if err != nil {
			lastStage = StageCompletion
			lastReason = upstreamReason(err)
			// Nothing to correct: the model never answered.
			correction = nil
			record(Attempt{Stage: StageCompletion, Failure: lastReason})
			c.deps.Logger.WarnContext(ctx, "completion call failed", "attempt", index, "reason", lastReason)
			continue
		}

		extracted, err := extract.Extract(raw)
		if err != nil {
			lastStage = StageExtraction
			lastViolation = nil
			correction, lastReason = extractionCorrection(err)
			record(Attempt{RawResponse: raw, Stage: StageExtraction, Failure: lastReason})
			c.deps.Logger.WarnContext(ctx, "no usable statement in completion", "attempt", index, "reason", lastReason)
			continue
		}
		observability.ObserveExtraction(string(extracted.Strategy))

		outcome := c.deps.Validator.ValidateWithLimit(extracted.SQL, request.MaxResults)
		if !outcome.Accepted() {
			lastStage = StageValidation
			lastViolation = outcome.Violation
			lastReason = outcome.Violation.Detail
			correction = &prompt.Correction{Kind: string(outcome.Violation.Kind), Detail: outcome.Violation.Detail}
			observability.ObserveValidationRejection(string(outcome.Violation.Kind))
			record(Attempt{RawResponse: raw, Stage: StageValidation, SQL: extracted.SQL, Failure: lastReason})
			c.deps.Logger.WarnContext(ctx, "statement rejected", "attempt", index, "violation", string(outcome.Violation.Kind), "detail", outcome.Violation.Detail)
			continue
		}

		result, err := c.execute(ctx, outcome)
		if err != nil {
			// The statement was structurally valid; generating a new one
			// would not fix an engine-level failure.
			record(Attempt{RawResponse: raw, Stage: StageExecution, SQL: outcome.NormalizedSQL, Failure: err.Error()})
			c.deps.Logger.ErrorContext(ctx, "execution failed", "attempt", index, "error", err)
			return finish(Outcome{Kind: OutcomeExecutionFailed, SQL: outcome.NormalizedSQL, LastReason: err.Error()})
		}

		record(Attempt{RawResponse: raw, Stage: StageExecution, SQL: outcome.NormalizedSQL})
		c.deps.Logger.InfoContext(ctx, "question answered", "attempt", index, "rows", result.RowCount, "truncated", result.Truncated)
		return finish(Outcome{Kind: OutcomeSucceeded, SQL: outcome.NormalizedSQL, Result: result})
	}

	if lastStage == StageCompletion {
		return finish(Outcome{Kind: OutcomeUpstreamFailure, LastReason: lastReason})
	}
	return finish(Outcome{Kind: OutcomeExhaustedRetries, LastViolation: lastViolation, LastReason: lastReason})
}

func (c *Controller) generate(ctx context.Context, promptText string) (string, error) {
	if c.cfg.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CompletionTimeout)
		defer cancel()
	}
	start := time.Now()
	raw, err := c.deps.Client.Generate(ctx, promptText)
	if err == nil {
		observability.ObserveCompletionLatency(time.Since(start))
	}
	return raw, err
}

func (c *Controller) execute(ctx context.Context, accepted validate.Outcome) (query.Result, error) {
	dataFiles, err := c.deps.Files.ListDataFiles(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("list data files: %w", err)
	}
	files := make([]query.TableFile, 0, len(dataFiles))
	for _, file := range dataFiles {
		files = append(files, query.TableFile{
			TableName:     file.TableName,
			ObjectPath:    file.ObjectPath,
			FileSizeBytes: file.FileSizeBytes,
		})
	}
	return c.deps.Executor.Execute(ctx, accepted.Receipt, accepted.NormalizedSQL, files)
}

// backoffDelay doubles from the base per completed attempt, capped, with up
// to ten percent jitter so concurrent retries spread out.
func (c *Controller) backoffDelay(completed int) time.Duration {
	delay := c.cfg.BackoffBase
	for i := 0; i < completed; i++ {
		delay *= 2
		if delay >= c.cfg.BackoffCap {
			delay = c.cfg.BackoffCap
			break
		}
	}
	if delay > c.cfg.BackoffCap {
		delay = c.cfg.BackoffCap
	}
	if delay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func upstreamReason(err error) string {
	var failure *llm.Failure
	if errors.As(err, &failure) {
		return string(failure.Kind)
	}
	return err.Error()
}

func extractionCorrection(err error) (*prompt.Correction, string) {
	var notFound *extract.NotFoundError
	if errors.As(err, &notFound) {
		if notFound.Ambiguous {
			return &prompt.Correction{Kind: prompt.CorrectionAmbiguousSQL, Detail: notFound.Detail}, notFound.Detail
		}
		return &prompt.Correction{Kind: prompt.CorrectionNoSQLFound, Detail: notFound.Detail}, notFound.Detail
	}
	return &prompt.Correction{Kind: prompt.CorrectionNoSQLFound}, err.Error()
}
