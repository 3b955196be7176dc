package httpapi

import (
	"context"
	"errors"
)

// errShuttingDown is the cancellation cause of request contexts cut short by
// the server base context.
var errShuttingDown = errors.New("server shutting down")

// serverBaseCtx is canceled when the process begins shutdown.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers. A nil
// ctx resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context from req that is also canceled, with cause
// errShuttingDown, when base is done. Values (request id, logger) come from
// req. The returned cancel func must be called when the handler ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(base, func() { cancel(errShuttingDown) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}
