package carp

import (
	"context"

	"github.com/antonkrylov/carplsp/internal/repl"
)

const (
	DefaultExecutable = "carp"
	DefaultPromptFlag = "--prompt"
)

// LaunchOptions describe how to start the compiler's REPL.
type LaunchOptions struct {
	Executable string
	// Args come before the prompt flag, ExtraArgs after the sentinel.
	Args       []string
	PromptFlag string
	ExtraArgs  []string
	Dir        string
	Env        map[string]string
	PTY        bool
}

// DevLaunchOptions runs the compiler from a source checkout next to the
// working directory through stack.
func DevLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Executable: "stack",
		Args:       []string{"run", "--"},
		PromptFlag: DefaultPromptFlag,
		ExtraArgs:  []string{"-a"},
		Dir:        "../carp",
	}
}

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Executable == "" {
		o.Executable = DefaultExecutable
	}
	if o.PromptFlag == "" {
		o.PromptFlag = DefaultPromptFlag
	}
	return o
}

// Argv returns the arguments passed to the executable.
func (o LaunchOptions) Argv(sentinel string) []string {
	o = o.withDefaults()
	argv := make([]string, 0, len(o.Args)+len(o.ExtraArgs)+2)
	argv = append(argv, o.Args...)
	argv = append(argv, o.PromptFlag, sentinel)
	return append(argv, o.ExtraArgs...)
}

// LaunchSpec builds the process description for a session using sentinel as
// its prompt.
func LaunchSpec(o LaunchOptions, sentinel string) repl.ProcessSpec {
	argv := o.Argv(sentinel)
	o = o.withDefaults()
	return repl.ProcessSpec{
		Path: o.Executable,
		Args: argv,
		Dir:  o.Dir,
		Env:  o.Env,
		PTY:  o.PTY,
	}
}

// Launcher returns a repl.Launcher that spawns the configured compiler.
func (o LaunchOptions) Launcher() repl.Launcher {
	return func(_ context.Context, sentinel string) (*repl.Process, error) {
		return repl.StartProcess(LaunchSpec(o, sentinel))
	}
}
