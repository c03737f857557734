package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	app := DefaultApp()
	cmd := newRootCmd(app)

	if cmd.Use != "imagemcp" {
		t.Errorf("Use = %q, want imagemcp", cmd.Use)
	}
	if !strings.Contains(cmd.Version, version) {
		t.Errorf("Version = %q, want to contain %q", cmd.Version, version)
	}

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "maintenance"} {
		if !names[want] {
			t.Errorf("missing subcommand %s", want)
		}
	}

	if cmd.PersistentFlags().Lookup("log-level") == nil {
		t.Error("missing --log-level flag")
	}
}

func TestMaintenanceCommandFlags(t *testing.T) {
	cmd := newRootCmd(DefaultApp())

	for _, sub := range cmd.Commands() {
		if sub.Name() == "maintenance" {
			if sub.Flags().Lookup("dry-run") == nil {
				t.Error("maintenance missing --dry-run flag")
			}
			return
		}
	}
	t.Fatal("maintenance command not found")
}

func TestHelpOutput(t *testing.T) {
	cmd := newRootCmd(DefaultApp())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute(--help) error = %v", err)
	}
	if !strings.Contains(out.String(), "Model Context") {
		t.Errorf("help output missing description:\n%s", out.String())
	}
}
