package main

import (
	"context"
	"log/slog"

	"github.com/benbjohnson/clock"
)

// TurnHookRunner executes the external turn hook.
type TurnHookRunner interface {
	Run(ctx context.Context, cmd CmdRunTurnHook) error
}

// effectEnv is what side effects may touch.
type effectEnv struct {
	// ctx bounds asynchronous effects (the hook).
	ctx context.Context

	// hook is nil when no turn hook is configured.
	hook TurnHookRunner

	// async receives events produced after runEffect has returned.
	async chan<- Event

	clk clock.Clock
}

// runEffect executes a single reducer-emitted Command and reports what
// happened through onEvent (synchronously) or env.async (for work that
// outlives the call).
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - It must never block the daemon loop: long-running work is started in a goroutine.
func runEffect(env *effectEnv, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		return
	}

	switch c := cmd.(type) {
	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	case CmdRunTurnHook:
		if env == nil || env.hook == nil || env.async == nil {
			onEvent(TurnHookFinished{Err: errNoTurnHook, At: c.At})
			return
		}
		logger.Debug("running turn hook", "from", c.From, "to", c.To, "delta", c.Delta)

		go func() {
			start := env.clk.Now()
			err := env.hook.Run(env.ctx, c)
			done := env.clk.Now()
			if err != nil {
				logger.Warn("turn hook failed", "error", err)
			}
			select {
			case env.async <- TurnHookFinished{Err: err, Duration: done.Sub(start), At: done}:
			case <-env.ctx.Done():
			}
		}()

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
