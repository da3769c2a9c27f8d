package cli

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/usecase/chat"
	"gopkg.in/yaml.v3"
)

// assistantConfig is the optional YAML file tuning the pipeline. Zero values keep the
// built-in defaults.
type assistantConfig struct {
	SystemPrompt string `yaml:"system_prompt"`

	Retrieval struct {
		Threshold   float64 `yaml:"threshold"`
		Count       int     `yaml:"count"`
		MaxMemories int     `yaml:"max_memories"`
	} `yaml:"retrieval"`

	HistoryWindow    int     `yaml:"history_window"`
	CompactThreshold int     `yaml:"compact_threshold"`
	RecentKeep       int     `yaml:"recent_keep"`
	DedupThreshold   float64 `yaml:"dedup_threshold"`
	MaxToolRounds    int     `yaml:"max_tool_rounds"`
}

func loadAssistantConfig(path string) (*assistantConfig, error) {
	var cfg assistantConfig
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read assistant file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse assistant file", goerr.V("path", path))
	}
	return &cfg, nil
}

func (cfg *assistantConfig) pipelineOptions() []chat.Option {
	var opts []chat.Option
	if cfg.SystemPrompt != "" {
		opts = append(opts, chat.WithSystemPrompt(cfg.SystemPrompt))
	}
	if r := cfg.Retrieval; r.Threshold > 0 && r.Count > 0 && r.MaxMemories > 0 {
		opts = append(opts, chat.WithRetrieval(r.Threshold, r.Count, r.MaxMemories))
	}
	if cfg.HistoryWindow > 0 {
		opts = append(opts, chat.WithHistoryWindow(cfg.HistoryWindow))
	}
	if cfg.DedupThreshold > 0 {
		opts = append(opts, chat.WithDedupThreshold(cfg.DedupThreshold))
	}

	var compactOpts []chat.CompactorOption
	if cfg.CompactThreshold > 0 {
		compactOpts = append(compactOpts, chat.WithCompactThreshold(cfg.CompactThreshold))
	}
	if cfg.RecentKeep > 0 {
		compactOpts = append(compactOpts, chat.WithRecentKeep(cfg.RecentKeep))
	}
	if len(compactOpts) > 0 {
		opts = append(opts, chat.WithCompactorOptions(compactOpts...))
	}

	if cfg.MaxToolRounds > 0 {
		opts = append(opts, chat.WithOrchestratorOptions(chat.WithMaxRounds(cfg.MaxToolRounds)))
	}
	return opts
}
