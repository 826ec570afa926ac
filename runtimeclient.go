package corelambda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	corelambdaVersion = "0.1.0"
	runtimeAPIVersion = "2018-06-01"

	contentTypeJSON = "application/json"

	headerUserAgent   = "User-Agent"
	headerContentType = "Content-Type"
)

var userAgent = fmt.Sprintf("corelambda/%s go/%s", corelambdaVersion, runtime.Version())

const (
	pathNext = "/" + runtimeAPIVersion + "/runtime/invocation/next"
	pathInit = "/" + runtimeAPIVersion + "/runtime/init/error"

	invocationPrefix = "/" + runtimeAPIVersion + "/runtime/invocation/"
	responseSuffix   = "/response"
	errorSuffix      = "/error"
)

// RuntimeClient wraps a Transport into the four logical operations of spec
// §4.3, translating transport errors into RuntimeErrors. It is grounded in
// voker's runtimeClient, generalized from typed JSON dispatch to the
// byte-buffer contract spec.md requires.
type RuntimeClient struct {
	transport Transport
	logger    *slog.Logger
}

// NewRuntimeClient builds a RuntimeClient over transport.
func NewRuntimeClient(transport Transport, logger *slog.Logger) *RuntimeClient {
	return &RuntimeClient{transport: transport, logger: logger}
}

// RequestWork performs the GET against .../invocation/next and parses the
// result via the Invocation Parser.
func (c *RuntimeClient) RequestWork(ctx context.Context) (*Invocation, []byte, error) {
	resp, err := c.transport.Get(ctx, pathNext)
	if err != nil {
		return nil, nil, classify(err)
	}

	inv, payload, perr := parseInvocation(resp)
	if perr != nil {
		return nil, nil, perr
	}

	return inv, payload, nil
}

// ReportSuccess POSTs the handler's response bytes (possibly empty) for
// inv. A single retry is attempted if the transport reports a peer reset,
// per the Open Question in spec §9; report_success is never retried more
// than once, and never after it has already succeeded.
func (c *RuntimeClient) ReportSuccess(ctx context.Context, inv *Invocation, response []byte) error {
	return c.postWithRetry(ctx, invocationPrefix+inv.RequestID+responseSuffix, response)
}

// ReportFailure POSTs a FunctionError ErrorResponse for inv describing err.
// Retried once on peer reset, same as ReportSuccess.
func (c *RuntimeClient) ReportFailure(ctx context.Context, inv *Invocation, handlerErr error) error {
	body := newFunctionError(handlerErr).bytes()
	return c.postWithRetry(ctx, invocationPrefix+inv.RequestID+errorSuffix, body)
}

// ReportInitError POSTs an InitializationError ErrorResponse. Per spec
// §4.5, this call is best-effort from Lifecycle's point of view: it is
// never retried, since a failed init report does not change what the
// Lifecycle ultimately returns.
func (c *RuntimeClient) ReportInitError(ctx context.Context, initErr error) error {
	body := newInitializationError(initErr).bytes()

	resp, err := c.transport.Post(ctx, pathInit, body)
	if err != nil {
		return classify(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return newBadStatusCode(resp.StatusCode)
	}
	return nil
}

// postWithRetry is the Retrying Reporter (SPEC_FULL §2): it POSTs body to
// path, and retries exactly once, after a short bounded backoff, if the
// transport error classifies as connectionResetByPeer. Any other outcome —
// success, a non-reset transport error, or a bad status code — returns
// immediately.
func (c *RuntimeClient) postWithRetry(ctx context.Context, path string, body []byte) error {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 1)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++

		resp, err := c.transport.Post(ctx, path, body)
		if err != nil {
			classified := classify(err)

			var re *RuntimeError
			if attempt == 1 && errors.As(classified, &re) && re.Kind == KindUpstreamError && re.Reason == reasonResetByPeer {
				c.logger.WarnContext(ctx, "connection reset by peer, retrying report once", "path", path)
				return classified
			}
			return backoff.Permanent(classified)
		}

		if resp.StatusCode != http.StatusAccepted {
			return backoff.Permanent(newBadStatusCode(resp.StatusCode))
		}

		return nil
	}, policy)
}

// classify maps a transport error into the RuntimeError taxonomy of spec
// §4.3: timeout and connection-reset become upstream_error with the
// platform's standard reason strings; anything else passes through
// unchanged, already wrapped by the transport layer, and is not retried.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var re *RuntimeError
	if errors.As(err, &re) {
		return re
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return newUpstreamError(reasonTimeout)
	case errors.Is(err, ErrConnectionReset):
		return newUpstreamError(reasonResetByPeer)
	default:
		return err
	}
}
