package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/antonkrylov/carplsp/internal/carp"
)

// Overrides carries the values given on the command line. Zero values mean
// "not set".
type Overrides struct {
	ConfigPath     string
	ProfileName    string
	Executable     string
	PTY            bool
	CommandTimeout time.Duration
	Transcript     string
	HealthAddr     string
}

// Settings is the fully resolved configuration for one session.
type Settings struct {
	ConfigPath     string
	ProfileName    string
	Config         *Config
	Profile        *Profile
	Launch         carp.LaunchOptions
	CommandTimeout time.Duration
	ExitGrace      time.Duration
	Transcript     string
	HealthAddr     string
}

// ResolveSettings applies, in order of precedence:
// 1) flags (overrides)
// 2) the selected profile
// 3) environment (CARP_LSP_EXECUTABLE)
// 4) defaults (carp --prompt, no timeout, 3s exit grace)
func ResolveSettings(o Overrides) (*Settings, error) {
	s := &Settings{ConfigPath: o.ConfigPath}

	if s.ConfigPath != "" {
		cfg, err := Load(s.ConfigPath)
		if err != nil {
			return nil, err
		}
		s.Config = cfg
	}

	profile, name, err := s.Config.Resolve(o.ProfileName)
	if err != nil {
		return nil, err
	}
	s.Profile = profile
	s.ProfileName = name

	s.Launch = carp.LaunchOptions{
		Executable: profile.Executable,
		Args:       profile.Args,
		PromptFlag: profile.PromptFlag,
		ExtraArgs:  profile.ExtraArgs,
		Dir:        profile.Dir,
		Env:        profile.Env,
		PTY:        profile.PTY || o.PTY,
	}
	if o.Executable != "" {
		s.Launch.Executable = o.Executable
	}
	if s.Launch.Executable == "" {
		s.Launch.Executable = strings.TrimSpace(os.Getenv("CARP_LSP_EXECUTABLE"))
	}
	if s.Launch.Executable == "" {
		s.Launch.Executable = carp.DefaultExecutable
	}
	if s.Launch.PromptFlag == "" {
		s.Launch.PromptFlag = carp.DefaultPromptFlag
	}
	if s.Launch.Dir != "" {
		dir, err := expandPath(s.Launch.Dir)
		if err != nil {
			return nil, fmt.Errorf("profile %s dir: %w", name, err)
		}
		s.Launch.Dir = dir
	}

	s.CommandTimeout = o.CommandTimeout
	if s.CommandTimeout == 0 && profile.CommandTimeoutSeconds > 0 {
		s.CommandTimeout = time.Duration(profile.CommandTimeoutSeconds) * time.Second
	}
	if s.CommandTimeout < 0 {
		return nil, fmt.Errorf("command timeout must not be negative")
	}

	s.ExitGrace = 3 * time.Second
	if profile.ExitGraceSeconds > 0 {
		s.ExitGrace = time.Duration(profile.ExitGraceSeconds) * time.Second
	}

	s.Transcript = firstNonEmpty(o.Transcript, profile.Transcript)
	s.HealthAddr = firstNonEmpty(o.HealthAddr, profile.HealthAddr)
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
