package corelambda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	headerExtensionName       = "lambda-extension-name"
	headerExtensionIdentifier = "lambda-extension-identifier"
	extensionAPIVersion       = "2020-01-01"
)

type extensionEventType string

const (
	eventTypeInvoke extensionEventType = "INVOKE"
)

// extensionAPIClient is a thin client for the Lambda Extensions API
// (spec §6 expansion), grounded in voker's extensionAPIClient.
type extensionAPIClient struct {
	registerURL string
	nextURL     string
	httpClient  *http.Client
}

func newExtensionAPIClient(address string) *extensionAPIClient {
	baseURL := "http://" + address + "/" + extensionAPIVersion + "/extension/"
	return &extensionAPIClient{
		registerURL: baseURL + "register",
		nextURL:     baseURL + "event/next",
		httpClient:  &http.Client{Timeout: 0}, // event/next long-polls; no client-side timeout
	}
}

type registerRequest struct {
	Events []extensionEventType `json:"events"`
}

// register registers name for events, retrying the POST a bounded number
// of times on transport failure — registration happens once at process
// start and a flaky first attempt shouldn't sink the whole extension,
// unlike the single-retry policy the Retrying Reporter applies to
// per-invocation report calls.
func (c *extensionAPIClient) register(ctx context.Context, name string, events []extensionEventType) (string, error) {
	body, err := json.Marshal(registerRequest{Events: events})
	if err != nil {
		return "", fmt.Errorf("marshal register request: %w", err)
	}

	var identifier string
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 3), ctx)

	err = backoff.Retry(func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.registerURL, bytes.NewReader(body))
		if reqErr != nil {
			return backoff.Permanent(fmt.Errorf("build register request: %w", reqErr))
		}
		req.Header.Set(headerExtensionName, name)

		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return fmt.Errorf("register extension %s: %w", name, doErr)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("register extension %s: status %d", name, resp.StatusCode))
		}

		identifier = resp.Header.Get(headerExtensionIdentifier)
		return nil
	}, policy)

	return identifier, err
}

// ExtensionEventPayload is the body of an Extensions API event/next
// response, per spec §6 expansion.
type ExtensionEventPayload struct {
	EventType          extensionEventType `json:"eventType"`
	DeadlineMs         int64              `json:"deadlineMs"`
	ShutdownReason     string             `json:"shutdownReason,omitempty"`
	RequestID          string             `json:"requestId,omitempty"`
	InvokedFunctionArn string             `json:"invokedFunctionArn,omitempty"`
	Tracing            struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"tracing"`
}

// next waits for the next extension event. The call itself blocks for as
// long as the platform holds it open; callers make it interruptible by
// running it on its own goroutine and racing the result against a done
// channel, as extensionManager.eventLoop does. ctx carries no deadline of
// its own here — it exists so the request is torn down immediately if the
// caller's own context is ever cancelled (e.g. Lifecycle.Run returning).
func (c *extensionAPIClient) next(ctx context.Context, id string) (*ExtensionEventPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nextURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build next request: %w", err)
	}
	req.Header.Set(headerExtensionIdentifier, id)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get next event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("next event: status %d", resp.StatusCode)
	}

	var payload ExtensionEventPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	return &payload, nil
}
