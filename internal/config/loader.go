package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format is a roster file encoding, chosen by file extension.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor maps a path's extension to its encoding. Unknown extensions are JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a roster document and normalizes it. Empty defaults are filled
// from DefaultConfig. Structural problems are left for Validate.
func Load(path string) (*OrchestratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster %s: %w", path, err)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a roster document in the given format.
func Parse(data []byte, format Format) (*OrchestratorConfig, error) {
	var cfg OrchestratorConfig
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *OrchestratorConfig) normalize() {
	c.OrchID = NormalizeOrchID(c.OrchID)

	d := &c.Defaults
	if d.Model == "" {
		d.Model = DefaultModel
	}
	if d.ReasoningEffort == "" {
		d.ReasoningEffort = DefaultReasoningEffort
	}
	if d.Sandbox == "" {
		d.Sandbox = DefaultSandbox
	}
	if d.Approval == "" {
		d.Approval = DefaultApproval
	}

	if c.Workers == nil {
		c.Workers = []WorkerSpec{}
	}
	for i := range c.Workers {
		w := &c.Workers[i]
		w.TaskID = strings.TrimSpace(w.TaskID)
		w.Engine = NormalizeEngine(string(w.Engine))
	}
}

// NormalizeEngine lower-cases an engine tag and resolves aliases.
// An empty tag means codex. Unknown tags pass through for Validate to reject.
func NormalizeEngine(s string) Engine {
	switch e := strings.ToLower(strings.TrimSpace(s)); e {
	case "":
		return EngineCodex
	case "claude", "claude-code":
		return EngineClaudeCLI
	default:
		return Engine(e)
	}
}

// Valid reports whether e is one of the supported engines.
func (e Engine) Valid() bool {
	switch e {
	case EngineCodex, EngineClaudeCLI, EngineManual, EngineClaudeManual:
		return true
	default:
		return false
	}
}

// IsManual reports whether workers on this engine are assigned to a human
// instead of being launched.
func (e Engine) IsManual() bool {
	switch e {
	case EngineManual, EngineClaudeManual:
		return true
	case EngineCodex, EngineClaudeCLI:
		return false
	default:
		return false
	}
}

var orchIDInvalid = regexp.MustCompile(`[^A-Z0-9_-]`)

// NormalizeOrchID upper-cases id, strips characters outside [A-Z0-9_-] and
// falls back to DefaultOrchID when nothing is left.
func NormalizeOrchID(id string) string {
	id = orchIDInvalid.ReplaceAllString(strings.ToUpper(strings.TrimSpace(id)), "")
	if id == "" {
		return DefaultOrchID
	}
	return id
}
