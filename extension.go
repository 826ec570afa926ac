package corelambda

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// InternalExtension is an in-process Lambda extension, registered with the
// Extensions API and coordinated with the Lifecycle's stop signal. See
// https://docs.aws.amazon.com/lambda/latest/dg/runtimes-extensions-api.html
type InternalExtension struct {
	// Name is the extension identifier (required).
	Name string

	// OnInit is called during extension initialization (optional).
	OnInit func() error

	// OnInvoke is called for each INVOKE event (optional).
	OnInvoke func(ctx context.Context, eventPayload ExtensionEventPayload)

	// OnSIGTERM is called when the Lifecycle shuts down, i.e. whenever
	// Lifecycle.Run returns, including after the stop signal is received
	// (optional). Internal extensions cannot register for SHUTDOWN events
	// via the Extensions API, but Lambda sends SIGTERM to the runtime
	// process 600ms before SIGKILL; the context passed here carries a
	// 500ms deadline to leave margin.
	OnSIGTERM func(ctx context.Context)
}

const sigtermContextDeadline = 500 * time.Millisecond

// extensionManager is the Extensions Manager (SPEC_FULL §2 supplemental
// component), grounded in voker's extensionManager.
type extensionManager struct {
	extensions []InternalExtension
	client     *extensionAPIClient
	done       chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
}

func newExtensionManager(runtimeAPI string, extensions []InternalExtension, logger *slog.Logger) *extensionManager {
	return &extensionManager{
		extensions: extensions,
		client:     newExtensionAPIClient(runtimeAPI),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (m *extensionManager) start(ctx context.Context) error {
	for _, ext := range m.extensions {
		if ext.OnInit != nil {
			if err := ext.OnInit(); err != nil {
				return fmt.Errorf("extension %s init failed: %w", ext.Name, err)
			}
		}

		var events []extensionEventType
		if ext.OnInvoke != nil {
			events = append(events, eventTypeInvoke)
		}

		id, err := m.client.register(ctx, ext.Name, events)
		if err != nil {
			return fmt.Errorf("register extension %s: %w", ext.Name, err)
		}

		m.wg.Add(1)
		go func(ext InternalExtension, id string) {
			defer m.wg.Done()
			m.eventLoop(ctx, ext, id)
		}(ext, id)
	}
	return nil
}

func (m *extensionManager) shutdown(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, sigtermContextDeadline)
	defer cancel()

	close(m.done)

	for _, ext := range m.extensions {
		if ext.OnSIGTERM != nil {
			ext.OnSIGTERM(ctx)
		}
	}

	m.wg.Wait()
}

// eventLoop is the one place this module needs true concurrency: the
// Extensions API's event/next long-poll has to be interruptible by the
// shared stop flag without blocking the Runner's single-threaded
// invocation path, per spec §5's expansion. ctx is the context start was
// called with; it is the parent of every OnInvoke context this loop builds
// and is what next's own request is torn down against if the caller ever
// cancels it.
func (m *extensionManager) eventLoop(ctx context.Context, ext InternalExtension, id string) {
	for {
		type result struct {
			eventPayload *ExtensionEventPayload
			err          error
		}
		resultCh := make(chan result, 1)

		go func() {
			event, err := m.client.next(ctx, id)
			resultCh <- result{event, err}
		}()

		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case res := <-resultCh:
			if res.err != nil {
				m.logger.ErrorContext(ctx, "extension event loop error", "extension", ext.Name, "error", res.err)
				return
			}

			switch res.eventPayload.EventType {
			case eventTypeInvoke:
				if ext.OnInvoke != nil {
					onInvokeCtx := ctx
					if res.eventPayload.DeadlineMs > 0 {
						deadline := time.UnixMilli(res.eventPayload.DeadlineMs)
						var cancel context.CancelFunc
						onInvokeCtx, cancel = context.WithDeadline(onInvokeCtx, deadline)
						defer cancel()
					}
					ext.OnInvoke(onInvokeCtx, *res.eventPayload)
				}
			default:
				m.logger.ErrorContext(ctx, "extension received unknown event type", "extension", ext.Name, "eventType", res.eventPayload.EventType)
			}
		}
	}
}
