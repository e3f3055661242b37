// Package repl multiplexes many concurrent callers onto one interactive
// subprocess that only speaks free text ending in a prompt.
//
// The subprocess is started with a random sentinel as its prompt. Commands are
// queued in submission order and written one at a time by a single worker;
// each command's output is everything up to the next sentinel.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateReady
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Launcher spawns the subprocess configured to print sentinel as its prompt.
type Launcher func(ctx context.Context, sentinel string) (*Process, error)

// Recorder receives every command written and every frame read.
// Sequence 0 is the startup banner.
type Recorder interface {
	RecordCommand(seq uint64, command string)
	RecordFrame(seq uint64, frame string)
}

// Options configure a Session.
type Options struct {
	Launcher Launcher
	Logger   *slog.Logger
	Recorder Recorder

	// CommandTimeout, when positive, fails a command whose prompt does not
	// come back in time and kills the subprocess. Zero waits forever.
	CommandTimeout time.Duration

	// ExitGrace is how long Quit waits for the process to exit on its own.
	// Default: 3 seconds.
	ExitGrace time.Duration

	// OnStateChange is called after every state transition, one call at a
	// time and in order. It must not call Close or Quit.
	OnStateChange func(state State, reason error)

	// Sentinel overrides the generated prompt token.
	Sentinel string
	// ID overrides the generated session id.
	ID string
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Session owns one subprocess and serializes commands to it.
type Session struct {
	id       string
	sentinel string
	opts     Options
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	reason  error
	queue   []*Call
	nextSeq uint64
	proc    *Process

	wake       chan struct{}
	frames     chan string
	exited     chan struct{}
	exitErr    error
	tail       string
	terminated chan struct{}
	termOnce   sync.Once

	notifyMu sync.Mutex
}

// New creates an idle Session. Call Start to spawn the subprocess.
func New(opts Options) *Session {
	if opts.ExitGrace <= 0 {
		opts.ExitGrace = 3 * time.Second
	}
	sentinel := opts.Sentinel
	if sentinel == "" {
		sentinel = NewSentinel()
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger
	}
	return &Session{
		id:         id,
		sentinel:   sentinel,
		opts:       opts,
		logger:     logger.With("session", id),
		wake:       make(chan struct{}, 1),
		frames:     make(chan string),
		exited:     make(chan struct{}),
		terminated: make(chan struct{}),
	}
}

// ID identifies the session in logs and transcripts.
func (s *Session) ID() string { return s.id }

// Sentinel returns the prompt token the subprocess was launched with.
func (s *Session) Sentinel() string { return s.sentinel }

// State returns the current state and, once terminated, the reason.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

// Done is closed when the session terminates.
func (s *Session) Done() <-chan struct{} { return s.terminated }

// Pid returns the subprocess id, or 0 before Start.
func (s *Session) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.Pid
}

// Start spawns the subprocess. ctx bounds the launch only. A launch failure
// terminates the session: every queued and future call fails fast.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()
	s.notify(StateStarting, nil)

	if s.opts.Launcher == nil {
		err := errors.New("no launcher configured")
		s.terminate(err)
		return err
	}
	proc, err := s.opts.Launcher(ctx, s.sentinel)
	if err != nil {
		s.logger.Error("repl spawn failed", "err", err)
		s.terminate(fmt.Errorf("spawn: %w", err))
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	s.logger.Info("repl started", "pid", proc.Pid)

	var stderrDone sync.WaitGroup
	if proc.Stderr != nil {
		stderrDone.Add(1)
		go s.pumpStderr(&stderrDone, proc.Stderr)
	}
	go s.pumpStdout(proc, &stderrDone)
	go s.run()
	return nil
}

// Submit queues command and returns immediately. Commands are written in the
// order Submit is called, one at a time.
func (s *Session) Submit(command string) *Call {
	return s.submit(command, false)
}

// Execute submits command and waits for its frame.
func (s *Session) Execute(ctx context.Context, command string) (Frame, error) {
	return s.Submit(command).Wait(ctx)
}

// Quit sends command through the queue, behind everything already submitted,
// then releases the subprocess. The command completes on its frame or on
// process exit, whichever comes first.
func (s *Session) Quit(ctx context.Context, command string) error {
	if state, _ := s.State(); state == StateIdle {
		s.terminate(ErrQuit)
		return nil
	}
	call := s.submit(command, true)
	_, err := call.Wait(ctx)
	s.release()
	return err
}

// Close kills the subprocess. Pending and queued calls fail with
// ErrSessionTerminated.
func (s *Session) Close() error {
	s.terminate(ErrClosed)
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}
	_ = proc.Stdin.Close()
	err := proc.Kill()
	<-s.exited
	return err
}

func (s *Session) submit(command string, terminal bool) *Call {
	call := &Call{command: command, terminal: terminal, done: make(chan struct{})}

	s.mu.Lock()
	if s.state == StateTerminated {
		reason := s.reason
		s.mu.Unlock()
		call.finish(Frame{}, terminatedError(reason))
		return call
	}
	s.nextSeq++
	call.seq = s.nextSeq
	s.queue = append(s.queue, call)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return call
}

func (s *Session) run() {
	// Everything before the first prompt is the startup banner.
	select {
	case banner := <-s.frames:
		s.recordFrame(0, banner)
		s.mu.Lock()
		ready := s.state == StateStarting
		if ready {
			s.state = StateReady
		}
		s.mu.Unlock()
		if !ready {
			return
		}
		s.logger.Debug("repl ready")
		s.notify(StateReady, nil)
	case <-s.exited:
		s.terminate(s.exitReason())
		return
	case <-s.terminated:
		return
	}

	for {
		call, ok := s.next()
		if !ok {
			return
		}
		if !s.dispatch(call) {
			return
		}
	}
}

func (s *Session) next() (*Call, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			call := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return call, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.exited:
			s.terminate(s.exitReason())
			return nil, false
		case <-s.terminated:
			return nil, false
		}
	}
}

// dispatch writes one command and waits for its frame. It returns false when
// the session cannot take more commands.
func (s *Session) dispatch(call *Call) bool {
	if call.abandoned.Load() {
		s.logger.Debug("skipping abandoned command", "seq", call.seq)
		call.finish(Frame{}, context.Canceled)
		return true
	}

	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	s.recordCommand(call.seq, call.command)
	if _, err := io.WriteString(proc.Stdin, call.command+"\n"); err != nil {
		reason := fmt.Errorf("write command: %w", err)
		call.finish(Frame{}, terminatedError(reason))
		s.terminate(reason)
		_ = proc.Kill()
		return false
	}

	var timeout <-chan time.Time
	if s.opts.CommandTimeout > 0 {
		timer := time.NewTimer(s.opts.CommandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case text := <-s.frames:
		s.recordFrame(call.seq, text)
		if call.terminal {
			s.terminate(ErrQuit)
			call.finish(Classify(text), nil)
			return false
		}
		call.finish(Classify(text), nil)
		return true
	case <-s.exited:
		if call.terminal {
			s.recordFrame(call.seq, s.tail)
			s.terminate(ErrQuit)
			call.finish(Classify(s.tail), nil)
			return false
		}
		reason := s.exitReason()
		call.finish(Frame{}, terminatedError(reason))
		s.terminate(reason)
		return false
	case <-timeout:
		reason := fmt.Errorf("%w: no prompt after %s for %q", ErrCommandTimeout, s.opts.CommandTimeout, call.command)
		s.logger.Error("repl command timed out; killing subprocess", "seq", call.seq, "timeout", s.opts.CommandTimeout)
		call.finish(Frame{}, reason)
		s.terminate(reason)
		_ = proc.Kill()
		return false
	case <-s.terminated:
		_, reason := s.State()
		call.finish(Frame{}, terminatedError(reason))
		return false
	}
}

func (s *Session) pumpStdout(proc *Process, stderrDone *sync.WaitGroup) {
	var sanitizer Sanitizer
	framer := NewFramer(s.sentinel)
	buf := make([]byte, 32*1024)
	for {
		n, err := proc.Stdout.Read(buf)
		if n > 0 {
			for _, frame := range framer.Feed(sanitizer.Write(buf[:n])) {
				select {
				case s.frames <- frame:
				case <-s.terminated:
					s.logger.Debug("dropping frame after termination", "bytes", len(frame))
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				// A pty master reports EIO once the child is gone.
				s.logger.Debug("stdout read ended", "err", err)
			}
			break
		}
	}
	framer.Feed(sanitizer.Flush())
	stderrDone.Wait()

	s.tail = framer.Pending()
	s.exitErr = proc.Wait()
	s.logger.Info("repl exited", "pid", proc.Pid, "exit", ExitCode(s.exitErr))
	close(s.exited)
}

func (s *Session) pumpStderr(wg *sync.WaitGroup, r io.Reader) {
	defer wg.Done()
	var sanitizer Sanitizer
	buf := make([]byte, 4096)
	var line []byte
	flush := func() {
		if len(line) == 0 {
			return
		}
		s.logger.Warn("repl stderr", "line", string(line))
		line = line[:0]
	}
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, c := range []byte(sanitizer.Write(buf[:n])) {
				if c == '\n' {
					flush()
					continue
				}
				if c != '\r' {
					line = append(line, c)
				}
			}
		}
		if err != nil {
			flush()
			return
		}
	}
}

// release ends the subprocess after a quit command: close stdin, give it
// ExitGrace to leave, then kill it.
func (s *Session) release() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	defer s.terminate(ErrQuit)
	if proc == nil {
		return
	}
	_ = proc.Stdin.Close()
	timer := time.NewTimer(s.opts.ExitGrace)
	defer timer.Stop()
	select {
	case <-s.exited:
		return
	case <-timer.C:
	}
	s.logger.Warn("repl did not exit after quit; killing", "grace", s.opts.ExitGrace)
	if err := proc.Kill(); err != nil {
		s.logger.Error("kill repl", "err", err)
	}
	<-s.exited
}

func (s *Session) terminate(reason error) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	s.reason = reason
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	s.termOnce.Do(func() { close(s.terminated) })
	for _, call := range queued {
		call.finish(Frame{}, terminatedError(reason))
	}
	if errors.Is(reason, ErrQuit) || errors.Is(reason, ErrClosed) {
		s.logger.Info("repl session terminated", "reason", reason, "dropped", len(queued))
	} else {
		s.logger.Error("repl session terminated", "reason", reason, "dropped", len(queued))
	}
	s.notify(StateTerminated, reason)
}

func (s *Session) exitReason() error {
	if s.exitErr != nil {
		return fmt.Errorf("process exited: %w", s.exitErr)
	}
	return errors.New("process exited")
}

// notify delivers transitions one at a time. A transition that has already
// been superseded is skipped, so observers never see a state after the
// terminal one.
func (s *Session) notify(state State, reason error) {
	if s.opts.OnStateChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if current, _ := s.State(); current != state {
		return
	}
	s.opts.OnStateChange(state, reason)
}

func (s *Session) recordCommand(seq uint64, command string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordCommand(seq, command)
	}
}

func (s *Session) recordFrame(seq uint64, frame string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordFrame(seq, frame)
	}
}

// Call is one queued command.
type Call struct {
	seq      uint64
	command  string
	terminal bool

	once      sync.Once
	done      chan struct{}
	frame     Frame
	err       error
	abandoned atomic.Bool
}

// Seq is the position of the call in submission order, starting at 1.
// It is 0 for calls rejected at submission.
func (c *Call) Seq() uint64 { return c.seq }

// Command returns the text that is (or would have been) written.
func (c *Call) Command() string { return c.command }

// Done is closed once the call has a result.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the frame arrives or ctx ends. Giving up on a call that has
// not been written yet removes it from the line; a call already written still
// has its output consumed so the next command's frame stays aligned.
func (c *Call) Wait(ctx context.Context) (Frame, error) {
	select {
	case <-c.done:
		return c.frame, c.err
	case <-ctx.Done():
		c.abandoned.Store(true)
		return Frame{}, ctx.Err()
	}
}

func (c *Call) finish(frame Frame, err error) {
	c.once.Do(func() {
		c.frame = frame
		c.err = err
		close(c.done)
	})
}
