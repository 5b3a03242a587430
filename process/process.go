// Package process runs a child command speaking newline delimited JSON-RPC
// on its standard streams.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/mcp-proxy/codec"
)

// StopGrace is how long Stop waits between interrupt and kill.
const StopGrace = 5 * time.Second

// ExitError reports child termination. Code follows the child's exit status,
// folding signal death to 1.
type ExitError struct {
	Code     int
	Signaled bool
}

func (e *ExitError) Error() string {
	if e.Signaled {
		return "child process killed by signal"
	}
	return fmt.Sprintf("child process exited with code %v", e.Code)
}

// Process is a spawned child. Frames written by the child on stdout arrive
// on Out; the child's stderr passes through to the proxy's own stderr.
type Process struct {
	command  string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	writeMux sync.Mutex
	out      chan []byte
	done     chan struct{}
	closing  chan struct{}
	stopOnce sync.Once
	exitOnce sync.Once
	exit     *ExitError
	log      *logrus.Entry
}

// Start spawns command with piped stdin and stdout. A failure to launch is
// returned immediately; once Start succeeds the child's lifetime is observed
// through Done and Exit.
func Start(log *logrus.Entry, command string, args ...string) (*Process, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %v: %w", command, err)
	}
	p := &Process{
		command: command,
		cmd:     cmd,
		stdin:   stdin,
		out:     make(chan []byte, 64),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		log:     log.WithField("pid", cmd.Process.Pid),
	}
	p.log.WithField("command", command).Info("child process started")
	go p.read(stdout)
	go p.wait()
	return p, nil
}

// Out delivers complete frames read from the child's stdout.
func (p *Process) Out() <-chan []byte {
	return p.out
}

// Done closes once the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit returns the child's termination status; call after Done closes.
func (p *Process) Exit() *ExitError {
	<-p.done
	return p.exit
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Send writes one frame to the child's stdin, appending the newline.
func (p *Process) Send(frame []byte) error {
	p.writeMux.Lock()
	defer p.writeMux.Unlock()
	select {
	case <-p.done:
		return fmt.Errorf("child process has exited")
	default:
	}
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := p.stdin.Write(buf); err != nil {
		return fmt.Errorf("failed to write to child stdin: %w", err)
	}
	return nil
}

// Stop asks the child to exit: stdin closes, then interrupt, then kill after
// the grace period. Safe to call repeatedly.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		close(p.closing)
		_ = p.stdin.Close()
		select {
		case <-p.done:
			return
		case <-time.After(200 * time.Millisecond):
		}
		p.log.Debug("interrupting child process")
		_ = p.cmd.Process.Signal(os.Interrupt)
		select {
		case <-p.done:
			return
		case <-time.After(StopGrace):
		}
		p.log.Warn("killing child process after grace period")
		_ = p.cmd.Process.Kill()
	})
}

func (p *Process) read(stdout io.Reader) {
	framer := codec.NewFramer(codec.MaxFrameSize)
	err := codec.Pump(stdout, framer,
		func(frame []byte) {
			select {
			case p.out <- frame:
			case <-p.closing:
			}
		},
		func(err error) {
			p.log.WithError(err).Warn("oversized frame on child stdout")
		})
	if err != nil {
		select {
		case <-p.closing:
		case <-p.done:
		default:
			p.log.WithError(err).Debug("child stdout closed")
		}
	}
	close(p.out)
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	exit := &ExitError{}
	if err != nil {
		exit.Code = 1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			if code := ee.ExitCode(); code >= 0 {
				exit.Code = code
			} else {
				exit.Signaled = true
			}
		}
	}
	p.exitOnce.Do(func() {
		p.exit = exit
		p.log.WithFields(logrus.Fields{"code": exit.Code, "signaled": exit.Signaled}).Info("child process exited")
		close(p.done)
	})
}
