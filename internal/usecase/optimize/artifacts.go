package optimize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caseworks/casedex/internal/domain"
)

// summary is the audit record of a completed run: the winning configuration
// plus enough metadata to reproduce it.
type summary struct {
	StudyName       string             `json:"study_name"`
	Timestamp       string             `json:"timestamp"`
	Trials          int                `json:"n_trials"`
	BestTrialNumber int                `json:"best_trial_number"`
	BestScore       float64            `json:"best_score"`
	Best            domain.TrialResult `json:"best"`
}

// WriteArtifacts writes summary.json and trial_history.json into a
// timestamped directory under dir and repoints the "latest" symlink at it.
// Returns the run directory.
func WriteArtifacts(dir string, result *Result) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02_15-04-05")
	runDir := filepath.Join(dir, stamp)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	s := summary{
		StudyName:       result.StudyName,
		Timestamp:       stamp,
		Trials:          len(result.History),
		BestTrialNumber: result.Best.Number,
		BestScore:       result.Best.Objective,
		Best:            result.Best,
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), s); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "trial_history.json"), result.History); err != nil {
		return "", err
	}

	// Best effort: a stale or unwritable symlink should not fail the run.
	latest := filepath.Join(dir, "latest")
	if fi, err := os.Lstat(latest); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		os.Remove(latest)
	}
	os.Symlink(stamp, latest)

	return runDir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
