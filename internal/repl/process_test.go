package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is re-executed by the tests below
// as a stand-in REPL that prompts with the value after --prompt.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	prompt := ""
	args := os.Args
	for i := range args {
		if args[i] == "--prompt" && i+1 < len(args) {
			prompt = args[i+1]
		}
	}
	out := bufio.NewWriter(os.Stdout)
	fmt.Fprintf(out, "helper repl ready\n%s", prompt)
	_ = out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		switch line {
		case "(quit)":
			os.Exit(0)
		case "(crash)":
			fmt.Fprintln(os.Stderr, "fatal: crashing on request")
			os.Exit(3)
		}
		fmt.Fprintf(out, "{\"echo\":%s}\n%s", strconv.Quote(line), prompt)
		_ = out.Flush()
	}
	os.Exit(0)
}

func helperLauncher(pty bool) Launcher {
	return func(_ context.Context, sentinel string) (*Process, error) {
		return StartProcess(ProcessSpec{
			Path: os.Args[0],
			Args: []string{"-test.run=TestHelperProcess", "--", "--prompt", sentinel},
			Env:  map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
			PTY:  pty,
		})
	}
}

func TestStartProcessRequiresExecutable(t *testing.T) {
	if _, err := StartProcess(ProcessSpec{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStartProcessMissingExecutable(t *testing.T) {
	_, err := StartProcess(ProcessSpec{Path: "/nonexistent/carp-repl"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestSessionOverRealProcess(t *testing.T) {
	s := New(Options{Launcher: helperLauncher(false)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := make([]*Call, 0, 10)
	for i := 0; i < 10; i++ {
		calls = append(calls, s.Submit(fmt.Sprintf("(cmd %d)", i)))
	}
	for i, call := range calls {
		frame, err := call.Wait(ctx)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		want := fmt.Sprintf(`{"echo":"(cmd %d)"}`, i)
		if string(frame.Primary) != want {
			t.Fatalf("call %d primary=%s", i, frame.Primary)
		}
	}
	if s.Pid() == 0 {
		t.Fatalf("pid not recorded")
	}
	if err := s.Quit(ctx, "(quit)"); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if state, reason := s.State(); state != StateTerminated || !errors.Is(reason, ErrQuit) {
		t.Fatalf("state=%s reason=%v", state, reason)
	}
}

func TestSessionRealProcessCrash(t *testing.T) {
	s := New(Options{Launcher: helperLauncher(false)})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.Execute(ctx, "(crash)")
	if !errors.Is(err, ErrSessionTerminated) {
		t.Fatalf("err=%v", err)
	}
	if code := ExitCode(err); code != 3 {
		t.Fatalf("exit status lost: code=%d err=%v", code, err)
	}
}

func TestSessionOverPTY(t *testing.T) {
	s := New(Options{Launcher: helperLauncher(true)})
	if err := s.Start(context.Background()); err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer func() { _ = s.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	frame, err := s.Execute(ctx, "(hello)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(frame.Primary) != `{"echo":"(hello)"}` {
		t.Fatalf("primary=%s text=%q", frame.Primary, frame.Text)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatalf("nil should be 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatalf("plain error should be 1")
	}
}
