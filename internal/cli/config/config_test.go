package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleConfig = `currentProfile: local
profiles:
  local:
    executable: /opt/carp/bin/carp
    extraArgs: [--no-core]
    commandTimeoutSeconds: 30
    exitGraceSeconds: 1
    transcript: /tmp/carp.jsonl.zst
    env:
      CARP_DIR: /opt/carp
  bare:
    pty: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil || cfg != nil {
		t.Fatalf("cfg=%v err=%v", cfg, err)
	}
}

func TestLoadAndResolve(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p, name, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "local" || p.Executable != "/opt/carp/bin/carp" || p.Env["CARP_DIR"] != "/opt/carp" {
		t.Fatalf("profile %s=%+v", name, p)
	}
	if _, _, err := cfg.Resolve("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err=%v", err)
	}
	if got := cfg.Names(); !reflect.DeepEqual(got, []string{"bare", "default", "dev", "local"}) {
		t.Fatalf("names=%v", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{
		CurrentProfile: "x",
		Profiles:       map[string]*Profile{"x": {Executable: "carp", Args: []string{"-q"}}},
	}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Fatalf("loaded=%+v", loaded)
	}
}

func TestBuiltinProfilesWithoutFile(t *testing.T) {
	var cfg *Config
	p, name, err := cfg.Resolve("dev")
	if err != nil {
		t.Fatalf("resolve dev: %v", err)
	}
	if name != "dev" || p.Executable != "stack" || p.Dir != "../carp" {
		t.Fatalf("dev=%+v", p)
	}
	if !reflect.DeepEqual(p.Args, []string{"run", "--"}) || !reflect.DeepEqual(p.ExtraArgs, []string{"-a"}) || p.PromptFlag != "--prompt" {
		t.Fatalf("dev argv=%+v", p)
	}
	if _, name, err := cfg.Resolve(""); err != nil || name != DefaultProfileName {
		t.Fatalf("default name=%s err=%v", name, err)
	}
}

func TestResolveSettingsPrecedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("CARP_LSP_EXECUTABLE", "/from/env/carp")

	s, err := ResolveSettings(Overrides{ConfigPath: path})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Launch.Executable != "/opt/carp/bin/carp" {
		t.Fatalf("profile should beat env: %s", s.Launch.Executable)
	}
	if s.CommandTimeout != 30*time.Second || s.ExitGrace != time.Second {
		t.Fatalf("timeouts=%s %s", s.CommandTimeout, s.ExitGrace)
	}
	if s.Transcript != "/tmp/carp.jsonl.zst" || s.Launch.PromptFlag != "--prompt" {
		t.Fatalf("settings=%+v", s)
	}

	s, err = ResolveSettings(Overrides{ConfigPath: path, Executable: "/flag/carp", CommandTimeout: time.Second, Transcript: "t.zst"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Launch.Executable != "/flag/carp" || s.CommandTimeout != time.Second || s.Transcript != "t.zst" {
		t.Fatalf("flags should win: %+v", s)
	}

	s, err = ResolveSettings(Overrides{ConfigPath: path, ProfileName: "bare"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Launch.Executable != "/from/env/carp" || !s.Launch.PTY {
		t.Fatalf("env fallback: %+v", s.Launch)
	}
	if s.CommandTimeout != 0 || s.ExitGrace != 3*time.Second {
		t.Fatalf("defaults: %s %s", s.CommandTimeout, s.ExitGrace)
	}
}

func TestResolveSettingsDefaults(t *testing.T) {
	t.Setenv("CARP_LSP_EXECUTABLE", "")
	s, err := ResolveSettings(Overrides{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.ProfileName != DefaultProfileName || s.Launch.Executable != "carp" || s.Launch.PromptFlag != "--prompt" {
		t.Fatalf("defaults=%+v", s)
	}
	if _, err := ResolveSettings(Overrides{ProfileName: "nope"}); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestResolveSettingsDevProfileDir(t *testing.T) {
	s, err := ResolveSettings(Overrides{ProfileName: DevProfileName})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !filepath.IsAbs(s.Launch.Dir) || filepath.Base(s.Launch.Dir) != "carp" {
		t.Fatalf("dir=%s", s.Launch.Dir)
	}
	if !reflect.DeepEqual(s.Launch.Argv("S"), []string{"run", "--", "--prompt", "S", "-a"}) {
		t.Fatalf("argv=%q", s.Launch.Argv("S"))
	}
}

func TestDefaultPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARP_LSP_HOME", dir)
	t.Setenv("CARP_LSP_CONFIG", "")
	if DefaultConfigDir() != dir {
		t.Fatalf("dir=%s", DefaultConfigDir())
	}
	if DefaultConfigPath() != filepath.Join(dir, "config.yaml") {
		t.Fatalf("path=%s", DefaultConfigPath())
	}
	t.Setenv("CARP_LSP_CONFIG", "/etc/carp-lsp.yaml")
	if DefaultConfigPath() != "/etc/carp-lsp.yaml" {
		t.Fatalf("override=%s", DefaultConfigPath())
	}
}
