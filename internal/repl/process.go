package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Process is a running REPL subprocess as seen by a Session.
type Process struct {
	Pid    int
	Stdin  io.WriteCloser
	Stdout io.Reader
	// Stderr is nil when error output is merged into Stdout (pty mode).
	Stderr io.Reader
	// Wait blocks until the process exits. It is called once, after Stdout
	// and Stderr have been drained.
	Wait func() error
	Kill func() error
}

// ProcessSpec describes how to spawn a REPL.
type ProcessSpec struct {
	Path string
	Args []string
	Dir  string
	Env  map[string]string
	// PTY runs the process on a pseudo-terminal in raw mode instead of pipes.
	PTY bool
}

// StartProcess spawns the process described by spec. The process is not tied
// to any context; it lives until it exits or is killed.
func StartProcess(spec ProcessSpec) (*Process, error) {
	if spec.Path == "" {
		return nil, errors.New("executable is required")
	}
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = composeEnv(spec.Env)

	if spec.PTY {
		return startOnPTY(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}
	return &Process{
		Pid:    cmd.Process.Pid,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Wait:   cmd.Wait,
		Kill:   killer(cmd),
	}, nil
}

func startOnPTY(cmd *exec.Cmd) (*Process, error) {
	ptyFile, err := startPTY(cmd, &pty.Winsize{Cols: 200, Rows: 50})
	if err != nil {
		return nil, fmt.Errorf("start %s on pty: %w", cmd.Path, err)
	}
	return &Process{
		Pid:    cmd.Process.Pid,
		Stdin:  ptyFile,
		Stdout: ptyFile,
		Wait: func() error {
			err := cmd.Wait()
			_ = ptyFile.Close()
			return err
		},
		Kill: killer(cmd),
	}, nil
}

func startPTY(cmd *exec.Cmd, ws *pty.Winsize) (*os.File, error) {
	ptyFile, ttyFile, err := pty.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = ttyFile.Close() }()

	if ws != nil {
		_ = pty.Setsize(ptyFile, ws)
	}
	// Raw mode: no echo of our commands, no \n -> \r\n rewriting.
	if _, err := term.MakeRaw(int(ttyFile.Fd())); err != nil {
		_ = ptyFile.Close()
		return nil, fmt.Errorf("raw tty: %w", err)
	}

	cmd.Stdin = ttyFile
	cmd.Stdout = ttyFile
	cmd.Stderr = ttyFile
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setsid = true
	cmd.SysProcAttr.Setctty = true
	cmd.SysProcAttr.Ctty = 0

	if err := cmd.Start(); err != nil {
		_ = ptyFile.Close()
		return nil, err
	}
	return ptyFile, nil
}

func killer(cmd *exec.Cmd) func() error {
	return func() error {
		if cmd.Process == nil {
			return nil
		}
		err := cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
}

func composeEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// ExitCode extracts the exit status from a Wait error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
	}
	return 1
}
