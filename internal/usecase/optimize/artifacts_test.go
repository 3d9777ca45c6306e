package optimize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/caseworks/casedex/internal/domain"
)

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	result := &Result{
		StudyName: "search_optimization_test",
		Best: domain.TrialResult{
			Number: 3, Phase: 1,
			Config:    domain.DefaultBoostConfig(),
			Objective: 2.25,
		},
		History: []domain.TrialResult{
			{Number: 0, Phase: 1, Objective: 1.5},
			{Number: 3, Phase: 1, Objective: 2.25},
		},
	}

	runDir, err := WriteArtifacts(dir, result)
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(runDir, "summary.json"))
	if err != nil {
		t.Fatal(err)
	}
	var s map[string]any
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("summary.json is not valid JSON: %v", err)
	}
	if s["study_name"] != "search_optimization_test" {
		t.Errorf("study_name: got %v", s["study_name"])
	}
	if s["best_trial_number"] != float64(3) {
		t.Errorf("best_trial_number: got %v", s["best_trial_number"])
	}
	if s["best_score"] != 2.25 {
		t.Errorf("best_score: got %v", s["best_score"])
	}

	raw, err = os.ReadFile(filepath.Join(runDir, "trial_history.json"))
	if err != nil {
		t.Fatal(err)
	}
	var history []domain.TrialResult
	if err := json.Unmarshal(raw, &history); err != nil {
		t.Fatalf("trial_history.json is not valid JSON: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(history))
	}

	target, err := os.Readlink(filepath.Join(dir, "latest"))
	if err != nil {
		t.Fatalf("latest symlink: %v", err)
	}
	if target != filepath.Base(runDir) {
		t.Errorf("latest points at %s, want %s", target, filepath.Base(runDir))
	}
}

func TestWriteArtifacts_RepointsLatest(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "old-run"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("old-run", filepath.Join(dir, "latest")); err != nil {
		t.Fatal(err)
	}

	result := &Result{StudyName: "s", History: []domain.TrialResult{{}}}
	runDir, err := WriteArtifacts(dir, result)
	if err != nil {
		t.Fatalf("WriteArtifacts: %v", err)
	}

	target, err := os.Readlink(filepath.Join(dir, "latest"))
	if err != nil {
		t.Fatal(err)
	}
	if target != filepath.Base(runDir) {
		t.Errorf("latest still points at %s", target)
	}
}
