package corelambda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeError_Error(t *testing.T) {
	cases := []struct {
		name string
		err  *RuntimeError
		want string
	}{
		{"badStatusCode", newBadStatusCode(500), "bad status code: 500"},
		{"upstreamError", newUpstreamError(reasonTimeout), "upstream error: timeout"},
		{"missingHeader", newInvocationMissingHeader(headerRequestID), "invocation missing header: " + headerRequestID},
		{"noBody", newNoBody(), "no body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestRuntimeError_Equal(t *testing.T) {
	assert.True(t, newBadStatusCode(500).Equal(newBadStatusCode(500)))
	assert.False(t, newBadStatusCode(500).Equal(newBadStatusCode(502)))
	assert.False(t, newBadStatusCode(500).Equal(newNoBody()))
	assert.True(t, newUpstreamError(reasonResetByPeer).Equal(newUpstreamError(reasonResetByPeer)))
	assert.True(t, newJSONEncodeError(errors.New("boom")).Equal(newJSONEncodeError(errors.New("boom"))))
	assert.False(t, newJSONEncodeError(errors.New("boom")).Equal(newJSONEncodeError(errors.New("other"))))

	var nilErr *RuntimeError
	assert.True(t, nilErr.Equal(nil))
	assert.False(t, nilErr.Equal(newNoBody()))
}

func TestRuntimeError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	re := newJSONEncodeError(cause)
	assert.ErrorIs(t, re, cause)
}

func TestErrorResponse_MarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		resp ErrorResponse
		want string
	}{
		{"plain", ErrorResponse{Type: "FunctionError", Message: "boom"}, `{ "errorType": "FunctionError", "errorMessage": "boom" }`},
		{"quotesAndBackslash", ErrorResponse{Type: "FunctionError", Message: `he said "hi" \ bye`}, `{ "errorType": "FunctionError", "errorMessage": "he said \"hi\" \\ bye" }`},
		{"controlChars", ErrorResponse{Type: "FunctionError", Message: "line1\nline2\ttab"}, `{ "errorType": "FunctionError", "errorMessage": "line1\nline2\ttab" }`},
		{"otherControl", ErrorResponse{Type: "FunctionError", Message: "\x01\x02"}, `{ "errorType": "FunctionError", "errorMessage": "\u0001\u0002" }`},
		{"nonASCIIPassesThrough", ErrorResponse{Type: "FunctionError", Message: "héllo <script> & </script>"}, `{ "errorType": "FunctionError", "errorMessage": "héllo <script> & </script>" }`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.resp.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestNewFunctionError(t *testing.T) {
	resp := newFunctionError(errors.New("handler blew up"))
	assert.Equal(t, errorTypeFunction, resp.Type)
	assert.Equal(t, "handler blew up", resp.Message)
}

func TestNewInitializationError(t *testing.T) {
	resp := newInitializationError(errors.New("bad config"))
	assert.Equal(t, errorTypeInitialization, resp.Type)
	assert.Equal(t, "bad config", resp.Message)
}

func TestNewPanicError(t *testing.T) {
	pe := newPanicError("boom")
	assert.Equal(t, "boom", pe.Error())
	assert.NotEmpty(t, pe.StackTrace)

	for _, frame := range pe.StackTrace {
		assert.NotEmpty(t, frame.Path)
		assert.Greater(t, frame.Line, 0)
		assert.NotEmpty(t, frame.Label)
	}
}

func TestCaptureStackTrace(t *testing.T) {
	frames := captureStackTrace()
	assert.NotEmpty(t, frames)

	for _, frame := range frames {
		assert.NotEmpty(t, frame.Path)
		assert.Greater(t, frame.Line, 0)
		assert.NotEmpty(t, frame.Label)
	}
}
