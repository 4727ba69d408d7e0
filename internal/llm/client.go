// Package llm provides the completion capability consumed by the pipeline:
// a single Generate call against an external language model, with upstream
// failures classified so the retry controller can tell "nothing to correct"
// apart from a rejected draft.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureTransport   FailureKind = "transport"
	FailureRateLimited FailureKind = "rate_limited"
)

// Failure wraps an upstream completion error with its classification.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("completion %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Client is the completion capability: one flattened prompt in, raw model
// text out. Implementations must honor ctx cancellation and deadlines.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

func transportFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	return &Failure{Kind: FailureTransport, Err: err}
}

func statusFailure(status int, body string) error {
	err := fmt.Errorf("completion failed status=%d body=%s", status, body)
	if status == 429 {
		return &Failure{Kind: FailureRateLimited, Err: err}
	}
	return &Failure{Kind: FailureTransport, Err: err}
}
