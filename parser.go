package corelambda

import "strconv"

// Header names the Runtime API uses on the next-invocation response, per
// spec §6. net/http.Header lookups are case-insensitive, so the exact
// casing here only matters for readability.
const (
	headerRequestID       = "Lambda-Runtime-Aws-Request-Id"
	headerDeadlineMS      = "Lambda-Runtime-Deadline-Ms"
	headerFunctionARN     = "Lambda-Runtime-Invoked-Function-Arn"
	headerTraceID         = "Lambda-Runtime-Trace-Id"
	headerClientContext   = "Lambda-Runtime-Client-Context"
	headerCognitoIdentity = "Lambda-Runtime-Cognito-Identity"
)

// Invocation is the immutable value the Invocation Parser produces once per
// cycle, per spec §3.
type Invocation struct {
	RequestID                string
	DeadlineMillisSinceEpoch int64
	InvokedFunctionArn       string
	TraceID                  string
	ClientContext            string // optional, empty if absent
	CognitoIdentity          string // optional, empty if absent
}

// parseInvocation validates resp per spec §4.2's six steps and builds an
// Invocation plus its payload. It has no network or logging side effects.
func parseInvocation(resp *Response) (*Invocation, []byte, *RuntimeError) {
	if resp.StatusCode != 200 {
		return nil, nil, newBadStatusCode(resp.StatusCode)
	}

	if resp.Body == nil {
		return nil, nil, newNoBody()
	}

	requestID := resp.Header.Get(headerRequestID)
	if requestID == "" {
		return nil, nil, newInvocationMissingHeader(headerRequestID)
	}

	deadlineRaw := resp.Header.Get(headerDeadlineMS)
	if deadlineRaw == "" {
		return nil, nil, newInvocationMissingHeader(headerDeadlineMS)
	}
	deadline, err := strconv.ParseInt(deadlineRaw, 10, 64)
	if err != nil {
		// The source conflates "missing" and "malformed" for this header;
		// preserved for behavioral compatibility, per spec §9.
		return nil, nil, newInvocationMissingHeader(headerDeadlineMS)
	}

	functionArn := resp.Header.Get(headerFunctionARN)
	if functionArn == "" {
		return nil, nil, newInvocationMissingHeader(headerFunctionARN)
	}

	traceID := resp.Header.Get(headerTraceID)
	if traceID == "" {
		return nil, nil, newInvocationMissingHeader(headerTraceID)
	}

	inv := &Invocation{
		RequestID:                requestID,
		DeadlineMillisSinceEpoch: deadline,
		InvokedFunctionArn:       functionArn,
		TraceID:                  traceID,
		ClientContext:            resp.Header.Get(headerClientContext),
		CognitoIdentity:          resp.Header.Get(headerCognitoIdentity),
	}

	return inv, resp.Body, nil
}
