package corelambda

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
)

// Lifecycle drives the Idle -> Initializing -> Running -> ShuttingDown ->
// Terminal state machine of spec §4.5. Grounded in voker.Start's top-level
// loop (runtime client construction, the stop-flag poll, os.Exit on fatal
// error), restructured to return its result instead of calling os.Exit
// itself — library code must not call os.Exit; the caller of Run decides
// the process exit code.
type Lifecycle struct {
	cfg     Config
	factory Factory
	logger  *slog.Logger
	client  *RuntimeClient
	runner  *Runner
	extMgr  *extensionManager
}

// NewLifecycle builds a Lifecycle for factory using cfg. If logger is nil,
// a logger is built from cfg.LogLevel and AWS_LAMBDA_LOG_FORMAT via
// defaultLogger. extensions, if any, are registered with the Extensions
// API when Run starts and shut down when Run returns, whatever the reason.
func NewLifecycle(cfg Config, factory Factory, logger *slog.Logger, extensions ...InternalExtension) *Lifecycle {
	if logger == nil {
		logger = defaultLogger(cfg)
	}

	transport := newHTTPTransport(cfg.RuntimeAPI, cfg.RequestTimeout)
	client := NewRuntimeClient(transport, logger)

	var extMgr *extensionManager
	if len(extensions) > 0 {
		extMgr = newExtensionManager(cfg.RuntimeAPI, extensions, logger)
	}

	return &Lifecycle{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
		client:  client,
		runner:  NewRunner(client, logger),
		extMgr:  extMgr,
	}
}

// Run executes the full lifecycle: it registers extensions if any, builds
// the Handler via factory, then repeatedly calls Runner.RunOnce until
// either the configured stop signal arrives, cfg.MaxTimes invocations have
// completed successfully, or a Runtime API interaction fails with something
// other than a transient upstream_error. It never calls os.Exit.
//
// successCount is the number of invocations whose outcome (success or
// Handler failure reported via report_failure) was successfully reported
// to the Runtime API. err is non-nil only when the loop stopped because of
// a non-transient Runtime API/transport failure, a Factory failure, or a
// failure to start the extensions.
func (l *Lifecycle) Run(ctx context.Context) (successCount int, err error) {
	if l.extMgr != nil {
		if startErr := l.extMgr.start(ctx); startErr != nil {
			l.logger.ErrorContext(ctx, "failed to start extensions", "error", startErr)
			return 0, startErr
		}
		defer l.extMgr.shutdown(ctx)
	}

	handler, initErr := l.factory(ctx)
	if initErr != nil {
		l.logger.ErrorContext(ctx, "initialization failed", "error", initErr)
		if reportErr := l.client.ReportInitError(ctx, initErr); reportErr != nil {
			l.logger.WarnContext(ctx, "failed to report init error", "error", reportErr)
		}
		return 0, initErr
	}

	stopped := l.watchStopSignal()

	for {
		if stopped.Load() {
			return successCount, nil
		}
		if l.cfg.MaxTimes > 0 && successCount >= l.cfg.MaxTimes {
			return successCount, nil
		}

		// RunOnce returns nil both when the Handler succeeded and when it
		// failed but that failure was itself successfully reported via
		// report_failure (a panic is recovered and reported the same way).
		// A non-nil error means the Runtime API interaction itself failed;
		// per spec §7's disposition table, an upstream_error (request_work
		// timing out, a connection reset) is transient and the loop simply
		// retries on the next iteration, while anything else is fatal.
		if runErr := l.runner.RunOnce(ctx, handler); runErr != nil {
			var re *RuntimeError
			if errors.As(runErr, &re) && re.Kind == KindUpstreamError {
				l.logger.WarnContext(ctx, "upstream error, retrying", "error", runErr)
				continue
			}

			l.logger.ErrorContext(ctx, "fatal invocation loop error", "error", runErr)
			return successCount, runErr
		}

		successCount++
	}
}

// watchStopSignal starts a goroutine that sets the returned flag once
// cfg.StopSignal (default SIGTERM) is received, exactly as voker.Start's
// sigterm channel + goroutine, generalized to the configured signal.
func (l *Lifecycle) watchStopSignal() *atomic.Bool {
	stopped := &atomic.Bool{}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, l.cfg.StopSignal)
	go func() {
		<-sig
		stopped.Store(true)
	}()

	return stopped
}
