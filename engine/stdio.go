package engine

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-proxy/codec"
	"github.com/viant/mcp-proxy/process"
	"github.com/viant/mcp-proxy/session"
	"golang.org/x/sync/errgroup"
)

// Stdio bridges a spawned child process to downstream SSE sessions: frames
// posted by any session go to the child's stdin, frames on the child's
// stdout are broadcast to every session.
type Stdio struct {
	config   *Config
	log      *logrus.Entry
	registry *session.Registry
}

// NewStdio returns the stdio bridge engine.
func NewStdio(config *Config) *Stdio {
	return &Stdio{
		config:   config,
		log:      config.Logger.WithField("engine", ModeStdio),
		registry: session.NewRegistry(),
	}
}

// Run spawns the child and serves until the child exits, the listener fails
// or ctx is cancelled. A child exit is fatal and surfaces as a
// process.ExitError carrying the child's exit code.
func (e *Stdio) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := process.Start(e.log, e.config.Command, e.config.Arguments...)
	if err != nil {
		e.log.WithError(err).Error("failed to spawn child process")
		return err
	}
	server := newHTTPServer(e.config, e.registry, func(_ context.Context, frame []byte) error {
		return proc.Send(frame)
	}, e.log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Serve(groupCtx)
	})
	group.Go(func() error {
		e.pump(groupCtx, proc)
		return nil
	})
	group.Go(func() error {
		select {
		case <-proc.Done():
			select {
			case <-ctx.Done():
				// the exit was asked for as part of shutdown
				return nil
			default:
			}
			exit := proc.Exit()
			e.log.WithError(exit).Error("child process terminated")
			return exit
		case <-groupCtx.Done():
			proc.Stop()
			return nil
		}
	})
	return group.Wait()
}

// pump broadcasts child stdout frames to every live session, pruning the
// sessions that can no longer accept writes.
func (e *Stdio) pump(ctx context.Context, proc *process.Process) {
	for {
		select {
		case frame, ok := <-proc.Out():
			if !ok {
				return
			}
			message, err := codec.Decode(frame)
			if err != nil {
				e.log.WithError(err).Warn("skipping unparseable child frame")
				continue
			}
			e.log.WithFields(logrus.Fields{"method": message.Method, "sessions": e.registry.Len()}).Debug("broadcasting child frame")
			for _, id := range e.registry.Broadcast(frame) {
				e.log.WithField("session", id).Warn("pruning unresponsive session")
				e.registry.Remove(id)
			}
		case <-ctx.Done():
			return
		}
	}
}
