package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/setplaylist/setplaylist/internal/shared"
	tu "github.com/setplaylist/setplaylist/internal/testing"
)

func TestNewRunner(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		r := NewRunner(RunnerOpts{})

		if r.config == nil {
			t.Error("expected a default config")
		}
		if r.logger == nil {
			t.Error("expected a default logger")
		}
		if r.output != os.Stdout {
			t.Error("expected output to default to stdout")
		}
	})

	t.Run("Provided Options", func(t *testing.T) {
		var buf bytes.Buffer
		config := shared.DefaultConfig()
		config.Server.Port = 9999

		r := NewRunner(RunnerOpts{Config: config, Output: &buf})

		if r.config.Server.Port != 9999 {
			t.Error("expected the provided config")
		}
		if r.output != &buf {
			t.Error("expected the provided output")
		}
	})
}

func TestRegister(t *testing.T) {
	r := NewRunner(RunnerOpts{})
	commands := r.register()

	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}

	names := map[string]bool{}
	for _, c := range commands {
		names[c.Name] = true
	}
	for _, want := range []string{"setup", "serve"} {
		if !names[want] {
			t.Errorf("expected a %s command", want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		content := "[database]\npath = \"custom.db\"\n\n[server]\nport = 3000\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		r := NewRunner(RunnerOpts{})
		config := r.loadConfig(path)

		if config.Database.Path != "custom.db" {
			t.Errorf("expected custom.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected port 3000, got %d", config.Server.Port)
		}
	})

	t.Run("Missing File Falls Back", func(t *testing.T) {
		r := NewRunner(RunnerOpts{})
		config := r.loadConfig(filepath.Join(t.TempDir(), "nope.toml"))

		defaults := shared.DefaultConfig()
		if config.Server.Port != defaults.Server.Port {
			t.Error("expected default config for a missing file")
		}
	})

	t.Run("Malformed File Falls Back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("not [valid toml"), 0o644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		r := NewRunner(RunnerOpts{})
		config := r.loadConfig(path)

		if config == nil {
			t.Fatal("expected default config for a malformed file")
		}
	})
}

func TestWritePlain(t *testing.T) {
	t.Run("Writes Formatted Output", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewRunner(RunnerOpts{Output: &buf})

		if err := r.writePlain("listening on :%d\n", 8080); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		if buf.String() != "listening on :8080\n" {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("Propagates Write Failure", func(t *testing.T) {
		r := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

		if err := r.writePlain("anything"); err == nil {
			t.Error("expected a write error")
		}
	})
}
