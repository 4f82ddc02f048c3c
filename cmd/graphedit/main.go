// File: cmd/graphedit/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/cmd"
	"github.com/xkilldash9x/graphedit/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables so tests can observe exits and panic reports.
var (
	osExit      = os.Exit
	osWriteFile = os.WriteFile
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(1)
	}
}

// handlePanic records an unrecovered panic with its stack to panic.log and
// the logger, then exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	report := fmt.Sprintf("%s panic: %v\n\n%s", time.Now().UTC().Format(time.RFC3339), r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(report), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "failed to write panic log:", err)
	}
	observability.GetLogger().Error("Unrecovered panic", zap.Any("panic", r))
	observability.Sync()
	fmt.Fprintf(os.Stderr, "graphedit crashed: %v (details in %s)\n", r, panicLogFile)
	osExit(2)
}
