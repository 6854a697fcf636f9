package ports

import (
	"context"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// Recorder is the per-run append-only trace sink. Events are totally
// ordered within a run; implementations assign the sequence numbers.
// The sink is handed to the scheduler at construction; no globals.
type Recorder interface {
	// StartRun emits a run-started event.
	StartRun(ctx context.Context, runID string, goal domain.Goal, input map[string]any)

	// RecordDecision emits at the moment a node commits to a path and
	// returns the decision id for outcome correlation.
	RecordDecision(ctx context.Context, runID string, d domain.Decision) string

	// RecordOutcome emits after the decided path executed.
	RecordOutcome(ctx context.Context, runID string, o domain.Outcome)

	// RecordProblem flags an anomaly for later analysis.
	RecordProblem(ctx context.Context, runID string, p domain.Problem)

	// EndRun emits the terminal event for the run.
	EndRun(ctx context.Context, runID string, success bool, narrative string, outputs map[string]any)
}
