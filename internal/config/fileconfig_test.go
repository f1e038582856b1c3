package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileConfigReturnsNilWhenAbsent(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	fc, err := loadFileConfig()
	if err != nil {
		t.Fatalf("loadFileConfig: %v", err)
	}
	if fc != nil {
		t.Fatalf("expected nil FileConfig when sandbox.yaml is absent, got %+v", fc)
	}
}

func TestLoadFileConfigParsesYAMLAndExpandsEnv(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	os.Setenv("TEST_INIT_SCRIPT", "echo ready")
	defer os.Unsetenv("TEST_INIT_SCRIPT")

	content := "initScript: \"${TEST_INIT_SCRIPT}\"\npythonRequirements: \"numpy==1.26.0\"\n"
	if err := os.WriteFile(filepath.Join(dir, "sandbox.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write sandbox.yaml: %v", err)
	}

	fc, err := loadFileConfig()
	if err != nil {
		t.Fatalf("loadFileConfig: %v", err)
	}
	if fc == nil {
		t.Fatalf("expected non-nil FileConfig")
	}
	if fc.InitScript != "echo ready" {
		t.Fatalf("got InitScript %q, want expanded env value", fc.InitScript)
	}
	if fc.PythonRequirements != "numpy==1.26.0" {
		t.Fatalf("got PythonRequirements %q", fc.PythonRequirements)
	}
}

func TestApplyFileConfigDoesNotOverrideEnvValues(t *testing.T) {
	cfg := &Config{InitScript: "from-env"}
	fc := &FileConfig{InitScript: "from-file"}
	applyFileConfig(cfg, fc)
	if cfg.InitScript != "from-env" {
		t.Fatalf("env-set InitScript was overwritten: got %q", cfg.InitScript)
	}
}

func TestApplyFileConfigFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	fc := &FileConfig{InitScript: "from-file", PythonRequirements: "flask"}
	applyFileConfig(cfg, fc)
	if cfg.InitScript != "from-file" || cfg.PythonRequirements != "flask" {
		t.Fatalf("expected file values to fill zero-value fields, got %+v", cfg)
	}
}
