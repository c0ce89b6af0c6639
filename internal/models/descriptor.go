package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known agent ids.
const (
	AgentRetrieval     = "retrieval"
	AgentForecast      = "forecast"
	AgentStatistics    = "statistics"
	AgentVisualization = "visualization"
	AgentWebSearch     = "websearch"
)

// AgentDescriptor is the static metadata for one agent capability. Configured
// at startup, immutable afterwards.
type AgentDescriptor struct {
	ID       string        `yaml:"id" json:"id"`
	Keywords []string      `yaml:"keywords" json:"keywords"`
	AlwaysOn bool          `yaml:"always_on" json:"always_on"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	Priority float64       `yaml:"priority" json:"priority"`
}

// UnmarshalYAML accepts human-friendly timeout strings like "5s".
func (d *AgentDescriptor) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID       string   `yaml:"id"`
		Keywords []string `yaml:"keywords"`
		AlwaysOn bool     `yaml:"always_on"`
		Timeout  string   `yaml:"timeout"`
		Priority float64  `yaml:"priority"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	d.ID = raw.ID
	d.Keywords = raw.Keywords
	d.AlwaysOn = raw.AlwaysOn
	d.Priority = raw.Priority
	if raw.Timeout != "" {
		timeout, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("agent %q: invalid timeout %q: %w", raw.ID, raw.Timeout, err)
		}
		d.Timeout = timeout
	}
	return nil
}

// Matches reports whether any of the descriptor's keyword triggers occurs in
// the prompt token set. Always-on descriptors match every prompt.
func (d AgentDescriptor) Matches(promptTokens map[string]struct{}) bool {
	if d.AlwaysOn {
		return true
	}
	for _, keyword := range d.Keywords {
		for _, token := range Tokens(keyword) {
			if _, ok := promptTokens[token]; ok {
				return true
			}
		}
	}
	return false
}

// DefaultAgentDescriptors returns the built-in agent configuration in
// invocation-priority order.
func DefaultAgentDescriptors() []AgentDescriptor {
	return []AgentDescriptor{
		{
			ID:       AgentRetrieval,
			AlwaysOn: true,
			Timeout:  8 * time.Second,
			Priority: 3,
		},
		{
			ID:       AgentForecast,
			Keywords: []string{"forecast", "predict", "prediction", "trend", "projection", "future", "risk"},
			Timeout:  10 * time.Second,
			Priority: 2,
		},
		{
			ID:       AgentStatistics,
			Keywords: []string{"statistics", "stats", "summary", "history", "deaths", "injured", "affected", "homeless", "damage", "impact"},
			Timeout:  10 * time.Second,
			Priority: 2,
		},
		{
			ID:       AgentVisualization,
			Keywords: []string{"chart", "charts", "graph", "plot", "visualize", "visualization", "dashboard"},
			Timeout:  12 * time.Second,
			Priority: 1,
		},
		{
			ID:       AgentWebSearch,
			Keywords: []string{"news", "current", "latest", "recent", "today", "update", "updates"},
			Timeout:  12 * time.Second,
			Priority: 1,
		},
	}
}

// LoadAgentDescriptors reads descriptor overrides from a YAML file. An empty
// path returns the defaults.
func LoadAgentDescriptors(path string) ([]AgentDescriptor, error) {
	if path == "" {
		return DefaultAgentDescriptors(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent descriptors: %w", err)
	}

	var file struct {
		Agents []AgentDescriptor `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agent descriptors: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("agent descriptor file %s declares no agents", path)
	}

	seen := make(map[string]struct{}, len(file.Agents))
	for i, desc := range file.Agents {
		if desc.ID == "" {
			return nil, fmt.Errorf("agent descriptor with empty id in %s", path)
		}
		if _, dup := seen[desc.ID]; dup {
			return nil, fmt.Errorf("duplicate agent descriptor %q in %s", desc.ID, path)
		}
		seen[desc.ID] = struct{}{}

		if desc.Timeout <= 0 {
			file.Agents[i].Timeout = 10 * time.Second
		}
		if desc.Priority <= 0 {
			file.Agents[i].Priority = 1
		}
	}

	return file.Agents, nil
}
