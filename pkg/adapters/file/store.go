// Package file provides a filesystem RunStore: one directory per run
// holding the memory plane, visit counter, pending suspension payload
// and in-progress transcript as separate documents.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/systaxiecuador/hive/pkg/domain"
)

const (
	metaFile       = "meta.json"
	memoryFile     = "memory.json"
	transcriptFile = "transcript.json"
)

// meta is the snapshot minus its bulky components.
type meta struct {
	RunID        string          `json:"run_id"`
	GraphID      string          `json:"graph_id"`
	State        domain.RunState `json:"state"`
	Visits       map[string]int  `json:"visits"`
	Steps        int             `json:"steps"`
	Path         []string        `json:"path,omitempty"`
	PauseNode    string          `json:"pause_node,omitempty"`
	PausePayload string          `json:"pause_payload,omitempty"`
	Tokens       int             `json:"tokens,omitempty"`
	LatencyMS    int64           `json:"latency_ms,omitempty"`
}

// Store implements ports.RunStore on a base directory.
type Store struct {
	baseDir string
}

// NewStore creates a file store rooted at baseDir, creating it if
// needed.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run store directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// Save writes the snapshot components into the run's directory.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	dir := s.runDir(snap.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	m := meta{
		RunID:        snap.RunID,
		GraphID:      snap.GraphID,
		State:        snap.State,
		Visits:       snap.Visits,
		Steps:        snap.Steps,
		Path:         snap.Path,
		PauseNode:    snap.PauseNode,
		PausePayload: snap.PausePayload,
		Tokens:       snap.Tokens,
		LatencyMS:    snap.LatencyMS,
	}
	if err := writeJSON(filepath.Join(dir, metaFile), m); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, memoryFile), snap.Memory); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, transcriptFile), snap.Transcript)
}

// Load reassembles a snapshot from the run's directory.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Snapshot, error) {
	dir := s.runDir(runID)

	var m meta
	if err := readJSON(filepath.Join(dir, metaFile), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}

	snap := &domain.Snapshot{
		RunID:        m.RunID,
		GraphID:      m.GraphID,
		State:        m.State,
		Visits:       m.Visits,
		Steps:        m.Steps,
		Path:         m.Path,
		PauseNode:    m.PauseNode,
		PausePayload: m.PausePayload,
		Tokens:       m.Tokens,
		LatencyMS:    m.LatencyMS,
	}
	if snap.Visits == nil {
		snap.Visits = map[string]int{}
	}
	if err := readJSON(filepath.Join(dir, memoryFile), &snap.Memory); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if snap.Memory == nil {
		snap.Memory = map[string]any{}
	}
	if err := readJSON(filepath.Join(dir, transcriptFile), &snap.Transcript); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return snap, nil
}

// Delete removes the run's directory.
func (s *Store) Delete(ctx context.Context, runID string) error {
	return os.RemoveAll(s.runDir(runID))
}

// List returns the run ids present under the base directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run store: %w", err)
	}

	var runs []string
	for _, e := range entries {
		if e.IsDir() {
			runs = append(runs, e.Name())
		}
	}
	return runs, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	// Write-then-rename keeps a crash from corrupting a snapshot.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
