package httpapi

import (
	"context"
)

// serverBaseCtx is canceled on shutdown so in-flight generations stop with
// the server.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers. Nil
// resets it to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives from req and additionally cancels when base is done.
// Values come from req. The returned cancel must be called when the handler
// ends.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
