// Package trace provides Recorder implementations: an in-memory sink
// for tests and embedded hosts, a JSONL file sink for durable traces,
// and a Prometheus decorator for fleet-level metrics.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// MemoryRecorder keeps the per-run event streams in memory, totally
// ordered by a per-run sequence counter.
type MemoryRecorder struct {
	mu   sync.Mutex
	runs map[string][]domain.Event
	seqs map[string]int
}

// NewMemoryRecorder creates an empty in-memory recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		runs: make(map[string][]domain.Event),
		seqs: make(map[string]int),
	}
}

// Events returns a copy of the run's event stream in order.
func (r *MemoryRecorder) Events(runID string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.runs[runID]...)
}

func (r *MemoryRecorder) append(runID string, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[runID]++
	ev.RunID = runID
	ev.Seq = r.seqs[runID]
	ev.Timestamp = time.Now().UTC()
	r.runs[runID] = append(r.runs[runID], ev)
}

// StartRun emits a run-started event.
func (r *MemoryRecorder) StartRun(ctx context.Context, runID string, goal domain.Goal, input map[string]any) {
	r.append(runID, domain.Event{Type: domain.EventRunStarted, Goal: &goal, Input: input})
}

// RecordDecision emits a decision event and returns its id.
func (r *MemoryRecorder) RecordDecision(ctx context.Context, runID string, d domain.Decision) string {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.RunID = runID
	r.append(runID, domain.Event{Type: domain.EventDecision, Decision: &d})
	return d.ID
}

// RecordOutcome emits an outcome event.
func (r *MemoryRecorder) RecordOutcome(ctx context.Context, runID string, o domain.Outcome) {
	r.append(runID, domain.Event{Type: domain.EventOutcome, Outcome: &o})
}

// RecordProblem emits a problem event.
func (r *MemoryRecorder) RecordProblem(ctx context.Context, runID string, p domain.Problem) {
	r.append(runID, domain.Event{Type: domain.EventProblem, Problem: &p})
}

// EndRun emits the terminal event for the run.
func (r *MemoryRecorder) EndRun(ctx context.Context, runID string, success bool, narrative string, outputs map[string]any) {
	r.append(runID, domain.Event{
		Type:      domain.EventRunEnded,
		Success:   &success,
		Narrative: narrative,
		Outputs:   outputs,
	})
}

var _ ports.Recorder = (*MemoryRecorder)(nil)
