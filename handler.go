package corelambda

import "context"

// Handler is the byte-buffer contract every invocation is dispatched
// through, per spec §3/§9. Marshaling a typed event/response on top of this
// is deliberately left to the caller.
type Handler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to Handler, mirroring
// http.HandlerFunc.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Factory builds the Handler once per process, after the runtime
// environment is known but before the first invocation is requested. A
// Factory error is reported via report_init_error and is fatal to the
// Lifecycle, per spec §4.5/§7.
type Factory func(ctx context.Context) (Handler, error)
