package corelambda

import (
	"context"
	"log/slog"
	"os"
)

// Runner drives exactly one request/dispatch/report cycle, per spec §4.4.
// It is grounded in voker's handleInvocation/callHandler pair, restructured
// around the byte-buffer Handler contract and the explicit Invocation/
// RuntimeError types rather than voker's generic marshal/unmarshal and ad
// hoc fmt.Errorf wrapping.
type Runner struct {
	client *RuntimeClient
	logger *slog.Logger
}

// NewRunner builds a Runner over client.
func NewRunner(client *RuntimeClient, logger *slog.Logger) *Runner {
	return &Runner{client: client, logger: logger}
}

// RunOnce requests the next invocation, dispatches it to handler, and
// reports the outcome. An error returned here means the Runtime API
// interaction itself failed (bad status, upstream error, malformed
// invocation); the Lifecycle loop treats an upstream_error as transient and
// polls again, and stops on any other error, per spec §7's disposition
// table. A Handler failure is instead reported as report_failure and
// RunOnce returns nil.
func (r *Runner) RunOnce(ctx context.Context, handler Handler) error {
	inv, payload, err := r.client.RequestWork(ctx)
	if err != nil {
		return err
	}

	lc, err := lambdaContextFromInvocation(inv)
	if err != nil {
		return r.reportFailure(ctx, inv, err)
	}

	// lc.Deadline is exposed for the Handler to read via FromContext, not
	// enforced here: the core does not cancel the Handler's context at the
	// deadline, per spec §5.
	invokeCtx := NewContext(ctx, lc)

	response, handlerErr := r.invoke(invokeCtx, handler, payload)
	if handlerErr != nil {
		return r.reportFailure(ctx, inv, handlerErr)
	}

	return r.client.ReportSuccess(ctx, inv, response)
}

// invoke calls handler, recovering a panic into a PanicError exactly as
// voker.callHandler does, so a panicking Handler is reported the same way
// as any other Handler failure.
func (r *Runner) invoke(ctx context.Context, handler Handler, payload []byte) (response []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			response = nil
			err = newPanicError(rec)
		}
	}()

	return handler.Handle(ctx, payload)
}

func (r *Runner) reportFailure(ctx context.Context, inv *Invocation, handlerErr error) error {
	r.logger.ErrorContext(ctx, "invocation failed",
		"error", handlerErr,
		slog.Group("record",
			"requestId", inv.RequestID,
			"functionName", os.Getenv(envFunctionName),
			"functionVersion", os.Getenv(envFunctionVersion),
		),
	)

	return r.client.ReportFailure(ctx, inv, handlerErr)
}
