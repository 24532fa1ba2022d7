package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AaronLay10/animgraph/internal/config"
	"github.com/AaronLay10/animgraph/internal/version"
)

const (
	testGraph   = "../../testdata/character.yaml"
	testMotions = "../../testdata/motions.yaml"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Engine.WorkerThreads = 2
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSplitFrame(t *testing.T) {
	tests := []struct {
		in      string
		item    string
		frame   int
		wantErr bool
	}{
		{"speed=1", "speed=1", 0, false},
		{"jump=true@30", "jump=true", 30, false},
		{"run@5", "run", 5, false},
		{"run@x", "", 0, true},
		{"run@-1", "", 0, true},
	}
	for _, tt := range tests {
		item, frame, err := splitFrame(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if item != tt.item || frame != tt.frame {
			t.Errorf("%s: expected (%q, %d), got (%q, %d)", tt.in, tt.item, tt.frame, item, frame)
		}
	}
}

func TestRunFramesReachesLocomotion(t *testing.T) {
	var out bytes.Buffer
	o := runOptions{
		graph:   testGraph,
		motions: testMotions,
		frames:  10,
		dt:      0.1,
		sets:    []string{"speed=0.5"},
	}
	if err := runFrames(context.Background(), &out, o, testConfig(t), quietLogger()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	text := out.String()
	for _, want := range []string{"frame 0: set speed=0.5", "(blending)", "state=locomotion"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if last := lines[len(lines)-1]; !strings.Contains(last, "state=locomotion") || strings.Contains(last, "blending") {
		t.Errorf("expected to settle in locomotion, got %q", last)
	}
}

func TestRunFramesScheduledSwitch(t *testing.T) {
	var out bytes.Buffer
	o := runOptions{
		graph:     testGraph,
		motions:   testMotions,
		frames:    5,
		dt:        0.05,
		switches:  []string{"airborne@3"},
		instances: 2,
	}
	if err := runFrames(context.Background(), &out, o, testConfig(t), quietLogger()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "frame 3: switch airborne") {
		t.Errorf("expected switch line, got:\n%s", text)
	}
	if !strings.Contains(text, "#1 state=airborne") {
		t.Errorf("expected second instance in airborne, got:\n%s", text)
	}
}

func TestRunFramesErrors(t *testing.T) {
	cfg := testConfig(t)
	tests := []struct {
		name string
		o    runOptions
	}{
		{"bad set", runOptions{graph: testGraph, motions: testMotions, frames: 1, dt: 0.1, sets: []string{"speed"}}},
		{"unknown parameter", runOptions{graph: testGraph, motions: testMotions, frames: 1, dt: 0.1, sets: []string{"fly=1"}}},
		{"unknown state", runOptions{graph: testGraph, motions: testMotions, frames: 1, dt: 0.1, transitions: []string{"swim@0"}}},
		{"missing graph", runOptions{graph: "missing.yaml", motions: testMotions, frames: 1, dt: 0.1}},
		{"negative dt", runOptions{graph: testGraph, motions: testMotions, frames: 1, dt: -1}},
	}
	for _, tt := range tests {
		if err := runFrames(context.Background(), io.Discard, tt.o, cfg, quietLogger()); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestValidateGraph(t *testing.T) {
	var out bytes.Buffer
	if err := validateGraph(context.Background(), &out, testGraph, testMotions); err != nil {
		t.Fatalf("expected valid graph, got %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "graph character:") || !strings.Contains(out.String(), "ok") {
		t.Errorf("unexpected report:\n%s", out.String())
	}
}

func TestValidateGraphReportsMissingMotions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	doc := `version: 1
name: broken
root:
  name: root
  states:
    - {name: idle, type: motion, motion: idle}
    - {name: swim, type: motion, motion: swim}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write graph: %v", err)
	}

	var out bytes.Buffer
	err := validateGraph(context.Background(), &out, path, testMotions)
	if err == nil {
		t.Fatal("expected error for missing motion")
	}
	if !strings.Contains(out.String(), "missing motion: swim (node swim)") {
		t.Errorf("expected missing motion line, got:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), version.Version) {
		t.Errorf("expected version %s, got %q", version.Version, out.String())
	}
}

func TestServeRequiresAssets(t *testing.T) {
	cfg := testConfig(t)
	if err := serve(context.Background(), cfg, quietLogger()); err == nil {
		t.Error("expected error without assets")
	}
}
