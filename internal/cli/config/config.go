package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/antonkrylov/carplsp/internal/carp"
)

// Config models a profile file: named ways to launch the compiler REPL.
type Config struct {
	CurrentProfile string              `yaml:"currentProfile"`
	Profiles       map[string]*Profile `yaml:"profiles"`
}

// Profile encodes how to start the REPL and how the bridge treats it.
type Profile struct {
	Executable            string            `yaml:"executable,omitempty"`
	Args                  []string          `yaml:"args,omitempty"`
	PromptFlag            string            `yaml:"promptFlag,omitempty"`
	ExtraArgs             []string          `yaml:"extraArgs,omitempty"`
	Dir                   string            `yaml:"dir,omitempty"`
	Env                   map[string]string `yaml:"env,omitempty"`
	PTY                   bool              `yaml:"pty,omitempty"`
	CommandTimeoutSeconds int               `yaml:"commandTimeoutSeconds,omitempty"`
	ExitGraceSeconds      int               `yaml:"exitGraceSeconds,omitempty"`
	Transcript            string            `yaml:"transcript,omitempty"`
	HealthAddr            string            `yaml:"healthAddr,omitempty"`
}

// ErrProfileNotFound indicates the requested profile is missing.
var ErrProfileNotFound = errors.New("profile not found")

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

// Resolve picks a profile by explicit name or the currentProfile value. The
// built-in profiles answer when the file does not define the name.
func (c *Config) Resolve(name string) (*Profile, string, error) {
	profileName := strings.TrimSpace(name)
	if profileName == "" && c != nil {
		profileName = c.CurrentProfile
	}
	if profileName == "" {
		profileName = DefaultProfileName
	}
	if c != nil {
		if p, ok := c.Profiles[profileName]; ok && p != nil {
			return p, profileName, nil
		}
	}
	if p, ok := builtinProfiles()[profileName]; ok {
		return p, profileName, nil
	}
	return nil, profileName, fmt.Errorf("%w: %s", ErrProfileNotFound, profileName)
}

// Names lists every resolvable profile, built-ins included, sorted.
func (c *Config) Names() []string {
	seen := map[string]bool{}
	for name := range builtinProfiles() {
		seen[name] = true
	}
	if c != nil {
		for name := range c.Profiles {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	DefaultProfileName = "default"
	DevProfileName     = "dev"
)

func builtinProfiles() map[string]*Profile {
	return map[string]*Profile{
		// Executable left empty so CARP_LSP_EXECUTABLE can fill it in.
		DefaultProfileName: {PromptFlag: carp.DefaultPromptFlag},
		DevProfileName:     profileFromLaunch(carp.DevLaunchOptions()),
	}
}

func profileFromLaunch(o carp.LaunchOptions) *Profile {
	return &Profile{
		Executable: o.Executable,
		Args:       o.Args,
		PromptFlag: o.PromptFlag,
		ExtraArgs:  o.ExtraArgs,
		Dir:        o.Dir,
		Env:        o.Env,
		PTY:        o.PTY,
	}
}

func expandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
