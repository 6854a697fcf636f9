package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systaxiecuador/hive/internal/logging"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// JSONLRecorder appends one JSON line per event to a file per run.
// Downstream analysis (pattern mining, failure root-causing) consumes
// these files without the executor's participation.
type JSONLRecorder struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	seqs map[string]int
}

// NewJSONLRecorder creates a recorder writing under dir, one
// <run-id>.jsonl file per run.
func NewJSONLRecorder(dir string, logger *slog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JSONLRecorder{dir: dir, logger: logger, seqs: make(map[string]int)}, nil
}

func (r *JSONLRecorder) append(runID string, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seqs[runID]++
	ev.RunID = runID
	ev.Seq = r.seqs[runID]
	ev.Timestamp = time.Now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Warn("failed to marshal trace event", "run_id", runID, "err", err)
		return
	}

	path := filepath.Join(r.dir, runID+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		r.logger.Warn("failed to open trace file", "run_id", runID, "err", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		r.logger.Warn("failed to append trace event", "run_id", runID, "err", err)
	}
}

// StartRun emits a run-started event.
func (r *JSONLRecorder) StartRun(ctx context.Context, runID string, goal domain.Goal, input map[string]any) {
	r.append(runID, domain.Event{Type: domain.EventRunStarted, Goal: &goal, Input: input})
}

// RecordDecision emits a decision event and returns its id.
func (r *JSONLRecorder) RecordDecision(ctx context.Context, runID string, d domain.Decision) string {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.RunID = runID
	r.append(runID, domain.Event{Type: domain.EventDecision, Decision: &d})
	return d.ID
}

// RecordOutcome emits an outcome event.
func (r *JSONLRecorder) RecordOutcome(ctx context.Context, runID string, o domain.Outcome) {
	r.append(runID, domain.Event{Type: domain.EventOutcome, Outcome: &o})
}

// RecordProblem emits a problem event.
func (r *JSONLRecorder) RecordProblem(ctx context.Context, runID string, p domain.Problem) {
	r.append(runID, domain.Event{Type: domain.EventProblem, Problem: &p})
}

// EndRun emits the terminal event for the run.
func (r *JSONLRecorder) EndRun(ctx context.Context, runID string, success bool, narrative string, outputs map[string]any) {
	r.append(runID, domain.Event{
		Type:      domain.EventRunEnded,
		Success:   &success,
		Narrative: narrative,
		Outputs:   outputs,
	})
}

var _ ports.Recorder = (*JSONLRecorder)(nil)
