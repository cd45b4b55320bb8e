package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	origVersion := Version
	origGitCommit := GitCommit
	origBuildDate := BuildDate
	defer func() {
		Version = origVersion
		GitCommit = origGitCommit
		BuildDate = origBuildDate
	}()

	Version = "1.4.0"
	GitCommit = "9f2c1ab"
	BuildDate = "2026-10-01T12:00:00Z"

	root := newRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	output := buf.String()
	expectedStrings := []string{
		"AMS Calendar Server",
		"Version:    1.4.0",
		"Git commit: 9f2c1ab",
		"Build date: 2026-10-01T12:00:00Z",
		"Go version:",
		"Platform:",
	}
	for _, expected := range expectedStrings {
		if !strings.Contains(output, expected) {
			t.Errorf("expected output to contain %q, got:\n%s", expected, output)
		}
	}
}

func TestVersionCommandDefaults(t *testing.T) {
	buf := new(bytes.Buffer)
	cmd := newVersionCommand()
	cmd.SetOut(buf)
	cmd.SetArgs(nil)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Version:    "+Version) {
		t.Errorf("expected default version in output, got:\n%s", buf.String())
	}
}
