package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional sandbox.yaml counterpart to the
// environment-variable contract: an author can commit dependency and
// init-script declarations instead of threading them through env
// vars. Mirrors the teacher's LoadAgentsConfig
// (hdn/agent_config_loader.go) — tried-path search, $VAR expansion,
// then yaml.Unmarshal.
type FileConfig struct {
	NodeDependencies   map[string]string `yaml:"nodeDependencies,omitempty"`
	PythonRequirements string            `yaml:"pythonRequirements,omitempty"`
	InitScript         string            `yaml:"initScript,omitempty"`
}

// candidateConfigPaths mirrors the teacher's possibilities list:
// current directory first, then a config/ subdirectory.
func candidateConfigPaths(name string) []string {
	return []string{name, "config/" + name}
}

// loadFileConfig looks for sandbox.yaml in the working directory or
// config/, returning (nil, nil) if neither is present — the file is
// optional, env vars remain the baseline contract.
func loadFileConfig() (*FileConfig, error) {
	var data []byte
	var foundPath string

	for _, path := range candidateConfigPaths("sandbox.yaml") {
		b, err := os.ReadFile(path)
		if err == nil {
			data = b
			foundPath = path
			break
		}
	}
	if data == nil {
		return nil, nil
	}

	expanded := os.ExpandEnv(string(data))

	var fc FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", foundPath, err)
	}
	log.Printf("✅ [CONFIG] loaded %s", foundPath)
	return &fc, nil
}

// applyFileConfig overlays file-declared values onto cfg wherever the
// environment left a field at its zero value, so env vars always win
// when both are set.
func applyFileConfig(cfg *Config, fc *FileConfig) {
	if fc == nil {
		return
	}
	if cfg.PythonRequirements == "" {
		cfg.PythonRequirements = fc.PythonRequirements
	}
	if cfg.InitScript == "" {
		cfg.InitScript = fc.InitScript
	}
	if len(cfg.NodeDependencies) == 0 && len(fc.NodeDependencies) > 0 {
		cfg.NodeDependencies = fc.NodeDependencies
	}
}
