package corelambda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned (wrapped) when a Transport call exceeds its
// configured timeout.
var ErrTimeout = errors.New("timeout")

// ErrConnectionReset is returned (wrapped) when the peer resets the
// connection mid-exchange.
var ErrConnectionReset = errors.New("connection reset by peer")

// Response is one HTTP exchange's result. Body is nil when the response had
// no body at all — distinct from a non-nil, zero-length Body — because the
// Invocation Parser's no_body error (§4.2) depends on telling the two apart.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues the GET/POST exchanges spec §4.1 describes against the
// Runtime API. Implementations surface only ErrTimeout, ErrConnectionReset,
// or a wrapped arbitrary I/O error; no retries happen at this layer.
type Transport interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string, body []byte) (*Response, error)
}

// httpTransport is the default Transport, backed by net/http. getClient and
// postClient are deliberately separate: §3 requires request_timeout to bound
// only the POST calls (report_success/report_failure/report_init_error),
// never the long-poll GET to invocation/next, so the two verbs cannot share
// one *http.Client with a single Timeout.
type httpTransport struct {
	baseURL    string
	getClient  *http.Client
	postClient *http.Client
}

// newHTTPTransport builds a Transport addressing http://runtimeAPI.
// postTimeout bounds only POST calls; the GET to invocation/next is issued
// with no client-side timeout of its own; it relies on the caller's context
// for cancellation, per spec §5.
func newHTTPTransport(runtimeAPI string, postTimeout time.Duration) *httpTransport {
	return &httpTransport{
		baseURL:    "http://" + runtimeAPI,
		getClient:  &http.Client{},
		postClient: &http.Client{Timeout: postTimeout},
	}
}

func (t *httpTransport) Get(ctx context.Context, path string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build GET request")
	}

	return t.do(t.getClient, req)
}

func (t *httpTransport) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "build POST request")
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.ContentLength = int64(len(body))

	return t.do(t.postClient, req)
}

// do executes req against client and reads the full response body. A
// response that genuinely carries no body at all (as opposed to a
// zero-length one) is a malformed-peer edge case that net/http itself
// cannot represent on a successful round trip — every well-formed HTTP/1.1
// response declares either Content-Length or chunked framing — so
// Response.Body is always non-nil here. The Invocation Parser's no_body
// case (§4.2, step 2) is exercised directly against a hand-built Response
// in its own tests.
func (t *httpTransport) do(client *http.Client, req *http.Request) (*Response, error) {
	req.Header.Set(headerUserAgent, userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// classifyTransportError maps a net/http error into one of the closed set
// of transport error kinds spec §4.1 names.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, syscall.ECONNRESET) || strings.Contains(err.Error(), "connection reset by peer") {
		return fmt.Errorf("%w: %v", ErrConnectionReset, err)
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return eris.Wrap(err, "transport I/O error")
}
