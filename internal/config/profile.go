package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// AssistantProfile identifies the hosted assistant every chat thread runs against.
type AssistantProfile struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
}

// LoadAssistantProfile reads the YAML profile at path (a missing file is not an
// error) and applies ASSISTANT_ID / ASSISTANT_INSTRUCTIONS overrides from cfg.
func LoadAssistantProfile(cfg *Config) (AssistantProfile, error) {
	var p AssistantProfile

	if cfg.AssistantProfilePath != "" {
		data, err := os.ReadFile(cfg.AssistantProfilePath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return p, fmt.Errorf("read assistant profile: %w", err)
		default:
			if err := yaml.Unmarshal(data, &p); err != nil {
				return p, fmt.Errorf("parse assistant profile %s: %w", cfg.AssistantProfilePath, err)
			}
		}
	}

	if cfg.AssistantID != "" {
		p.ID = cfg.AssistantID
	}
	if cfg.AssistantInstruction != "" {
		p.Instructions = cfg.AssistantInstruction
	}
	if p.Name == "" {
		p.Name = "Site Builder"
	}
	return p, nil
}
