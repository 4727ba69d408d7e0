package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sqlward/sqlward/internal/observability"
	"github.com/sqlward/sqlward/internal/validate"
)

// ErrNoReceipt reports an execution attempt without a validation receipt.
var ErrNoReceipt = errors.New("query: validation receipt is required")

// Executor runs accepted statements against an engine. Every call must
// present a live receipt covering the exact statement text; the executor
// enforces its own timeout and row cap regardless of any bound the statement
// text carries.
type Executor struct {
	engine  Engine
	timeout time.Duration
	rowCap  int
}

func NewExecutor(engine Engine, timeout time.Duration, rowCap int) *Executor {
	return &Executor{engine: engine, timeout: timeout, rowCap: rowCap}
}

func (e *Executor) Execute(ctx context.Context, receipt *validate.Receipt, sql string, files []TableFile) (Result, error) {
	if receipt == nil {
		return Result{}, ErrNoReceipt
	}
	if err := receipt.Redeem(sql); err != nil {
		return Result{}, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := e.engine.Execute(ctx, Request{SQL: sql, RowCap: e.rowCap, Files: files})
	if err != nil {
		return Result{}, fmt.Errorf("execute statement: %w", err)
	}
	observability.ObserveExecution(result.Duration, result.RowCount)
	return result, nil
}
