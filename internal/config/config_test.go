package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/deixis/runmeta/internal/metadata"
)

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvOperator, EnvGISVersion, EnvOutput, EnvHistoryDir} {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatal(err)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FromRoot(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `version: 1
tool:
  name: Confinement Tool
  version: "1.2"
gis_version: ArcGIS 10.4
layout: symmetric
timeout: 10m
capture:
  stdout: none
  stderr: Error
`)

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q", res.Root, dir)
	}
	cfg := res.Config
	if cfg.Tool.Name != "Confinement Tool" || cfg.Tool.Version != "1.2" {
		t.Errorf("Tool = %+v", cfg.Tool)
	}
	if cfg.GISVersion != "ArcGIS 10.4" {
		t.Errorf("GISVersion = %q", cfg.GISVersion)
	}
	if cfg.Layout() != metadata.LayoutSymmetric {
		t.Errorf("Layout = %v, want symmetric", cfg.Layout())
	}
	if cfg.Timeout() != 10*time.Minute {
		t.Errorf("Timeout = %v, want 10m", cfg.Timeout())
	}
	if cfg.StdoutLevel() != "" {
		t.Errorf("StdoutLevel = %q, want disabled", cfg.StdoutLevel())
	}
	if cfg.StderrLevel() != "Error" {
		t.Errorf("StderrLevel = %q, want Error", cfg.StderrLevel())
	}
}

func TestLoad_FromSubdirectory(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "version: 2\n")
	sub := filepath.Join(root, "data", "inputs")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	res, err := Load(sub)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != root {
		t.Errorf("Root = %q, want %q", res.Root, root)
	}
	if res.Config.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Config.Version)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Root != dir {
		t.Errorf("Root = %q, want %q (fallback to workspace)", res.Root, dir)
	}
	if res.Path != "" {
		t.Errorf("Path = %q, want empty", res.Path)
	}
	cfg := res.Config
	if cfg.Timeout() != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout())
	}
	if cfg.MaxOutputBytes() != DefaultMaxOutput {
		t.Errorf("MaxOutputBytes = %d, want default", cfg.MaxOutputBytes())
	}
	if cfg.OutputPath() != DefaultOutput {
		t.Errorf("OutputPath = %q, want default", cfg.OutputPath())
	}
	if cfg.Layout() != metadata.LayoutLegacy {
		t.Errorf("Layout = %v, want legacy", cfg.Layout())
	}
	if cfg.StdoutLevel() != metadata.LevelInfo || cfg.StderrLevel() != metadata.LevelWarning {
		t.Errorf("capture levels = %q %q", cfg.StdoutLevel(), cfg.StderrLevel())
	}
}

func TestLoad_InvalidLayout(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "layout: nested\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for unknown layout")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "tool: [unterminated\n")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "operator: from-file\noutput: file.xml\n")
	t.Setenv(EnvOperator, "from-env")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.Operator != "from-env" {
		t.Errorf("Operator = %q, want from-env", res.Config.Operator)
	}
	if res.Config.OutputPath() != "file.xml" {
		t.Errorf("OutputPath = %q, want file.xml", res.Config.OutputPath())
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "version: 1\n")
	writeFile(t, filepath.Join(dir, ".env"), "RUNMETA_GIS_VERSION=QGIS 3.34\nRUNMETA_HISTORY_DIR=/var/lib/runmeta\n")

	res, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Config.GISVersion != "QGIS 3.34" {
		t.Errorf("GISVersion = %q, want QGIS 3.34", res.Config.GISVersion)
	}
	if res.Config.HistoryDir() != "/var/lib/runmeta" {
		t.Errorf("HistoryDir = %q", res.Config.HistoryDir())
	}
}
