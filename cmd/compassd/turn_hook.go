package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// execTurnHook runs an external program for every significant turn.
// The turn is passed in COMPASS_TURN_FROM, COMPASS_TURN_TO and
// COMPASS_TURN_DELTA.
type execTurnHook struct {
	Command string
	Args    []string
	Timeout time.Duration
}

func (h execTurnHook) Run(ctx context.Context, cmd CmdRunTurnHook) error {
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, ExpandPath(h.Command), h.Args...)
	c.Env = append(os.Environ(), turnHookEnv(cmd)...)

	out, err := c.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("turn hook %s: %w", h.Command, ctx.Err())
		}
		return fmt.Errorf("turn hook %s: %w (output: %q)", h.Command, err, truncate(string(out), 200))
	}
	return nil
}

func turnHookEnv(cmd CmdRunTurnHook) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		"COMPASS_TURN_FROM=" + f(cmd.From),
		"COMPASS_TURN_TO=" + f(cmd.To),
		"COMPASS_TURN_DELTA=" + f(cmd.Delta),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
