package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/viant/mcp-proxy/engine"
	"github.com/viant/mcp-proxy/process"
)

// ExitError asks main to exit with the given code, carrying the child
// process exit status out of a stdio bridge.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Run parses arguments, builds the selected engine and runs it until it
// stops. SIGINT, SIGTERM and SIGHUP trigger an orderly shutdown; in modes
// that do not speak over stdin, closing stdin does the same so that a
// supervisor dropping the pipe takes the proxy down with it.
func Run(args []string) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	ctx := context.Background()
	resolved, err := options.Resolve(ctx)
	if err != nil {
		return err
	}
	logger := NewLogger(resolved.Debug)
	eng, err := engine.New(resolved.EngineConfig(logger))
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	runCtx, cancel := context.WithCancel(signalCtx)
	defer cancel()

	if resolved.Mode != engine.ModeSSEClient {
		go func() {
			waitStdinClose()
			logger.Info("stdin closed, shutting down")
			cancel()
		}()
	}

	if err := eng.Run(runCtx); err != nil {
		var exitError *process.ExitError
		if errors.As(err, &exitError) {
			return &ExitError{Code: exitError.Code, Err: err}
		}
		return err
	}
	return nil
}

// waitStdinClose blocks until stdin reaches EOF or fails. The bytes read
// here belong to no protocol stream in the modes that use this watcher.
func waitStdinClose() {
	buf := make([]byte, 4096)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
	}
}
