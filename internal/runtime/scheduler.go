// Package runtime implements the graph executor: the single-threaded
// cooperative scheduler that advances a run one node at a time, the
// four node executors, and the edge-selection rules.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/systaxiecuador/hive/internal/logging"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/expr"
	"github.com/systaxiecuador/hive/pkg/memplane"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// Config carries the implementation-chosen execution bounds.
type Config struct {
	// MaxSteps bounds total node executions per run. The graph's own
	// max_steps takes precedence when set.
	MaxSteps int

	// MaxTurns and MaxNodeTokens bound the llm_tools event loop.
	MaxTurns      int
	MaxNodeTokens int

	// TurnTimeout applies to each LLM call; zero means no deadline.
	TurnTimeout time.Duration
}

// DefaultConfig returns the bounds used when the host supplies none.
func DefaultConfig() Config {
	return Config{
		MaxSteps: 100,
		MaxTurns: 20,
	}
}

type timeoutFunc func(context.Context) (context.Context, context.CancelFunc)

// Result is what a scheduling session hands back to the host: a
// completed, suspended, or failed run plus its trace metrics.
type Result struct {
	RunID     string
	State     domain.RunState
	Outputs   map[string]any
	Failure   *domain.Failure
	Steps     int
	Path      []string
	Tokens    int
	LatencyMS int64

	// Snapshot is set when State is RunSuspended.
	Snapshot *domain.Snapshot
}

// Scheduler is the cooperative core of the executor: one instance per
// run, owning the run's memory plane and visit counter. It is not safe
// for concurrent use; runs execute one node at a time.
type Scheduler struct {
	graph *domain.Graph
	runID string

	provider ports.Provider
	broker   ports.ToolInvoker
	rec      ports.Recorder
	fns      map[string]FunctionFunc
	logger   *slog.Logger
	cfg      Config

	plane   *memplane.Plane
	visits  map[string]int
	steps   int
	path    []string
	tokens  int
	latency int64

	// nullableKeys is the union of every node's nullable outputs: the
	// input keys a consumer may observe as absent.
	nullableKeys map[string]bool

	pendingResume *resumeInput
	cancelled     atomic.Bool
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithProvider sets the LLM provider for llm nodes.
func WithProvider(p ports.Provider) Option {
	return func(s *Scheduler) { s.provider = p }
}

// WithBroker sets the tool invoker for llm_tools nodes.
func WithBroker(b ports.ToolInvoker) Option {
	return func(s *Scheduler) { s.broker = b }
}

// WithRecorder sets the per-run trace sink.
func WithRecorder(r ports.Recorder) Option {
	return func(s *Scheduler) { s.rec = r }
}

// WithFunctions binds host transformations to function nodes by id.
func WithFunctions(fns map[string]FunctionFunc) Option {
	return func(s *Scheduler) { s.fns = fns }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfig overrides the execution bounds.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// NewScheduler creates a scheduler for one run of the given graph.
func NewScheduler(graph *domain.Graph, runID string, opts ...Option) *Scheduler {
	if runID == "" {
		runID = uuid.NewString()
	}
	s := &Scheduler{
		graph:  graph,
		runID:  runID,
		logger: logging.NewNop(),
		cfg:    DefaultConfig(),
		plane:  memplane.New(),
		visits: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rec == nil {
		s.rec = nopRecorder{}
	}
	if graph.MaxSteps > 0 {
		s.cfg.MaxSteps = graph.MaxSteps
	}

	s.nullableKeys = make(map[string]bool)
	for i := range graph.Nodes {
		for _, k := range graph.Nodes[i].NullableOutputs {
			s.nullableKeys[k] = true
		}
	}
	return s
}

// RunID returns the run's identifier.
func (s *Scheduler) RunID() string { return s.runID }

// Cancel requests cancellation at the next safe point: the current
// node finishes or fails, no new nodes are scheduled, and the run is
// marked failed with kind cancelled. Safe to call from another
// goroutine.
func (s *Scheduler) Cancel() { s.cancelled.Store(true) }

// Run starts the graph from the named entry point ("start" by default)
// with the initial input payload written into the memory plane.
func (s *Scheduler) Run(ctx context.Context, entry string, input map[string]any) *Result {
	if entry == "" {
		entry = domain.EntryPointStart
	}
	startID, ok := s.graph.EntryPoint(entry)
	if !ok {
		return s.fail(ctx, domain.NewFailure(domain.FailValidation, "",
			"entry point %q not defined", entry))
	}
	for k, v := range input {
		s.plane.Write(k, v)
	}

	s.rec.StartRun(ctx, s.runID, s.graph.Goal, input)
	s.logger.Info("run started", "run_id", s.runID, "graph", s.graph.ID, "entry", entry)

	return s.loop(ctx, startID)
}

// Resume restores a suspended run from its snapshot and re-enters the
// graph at the <pause-node>_resume entry point with the host's reply
// injected under the conventional input key. When the resume entry
// maps back to the pause node itself and a transcript survives, the
// llm_tools event loop continues with the reply appended as a user
// message instead of starting over.
func (s *Scheduler) Resume(ctx context.Context, snap *domain.Snapshot, input map[string]any) *Result {
	s.plane = memplane.Restore(snap.Memory)
	s.visits = make(map[string]int, len(snap.Visits))
	for k, v := range snap.Visits {
		s.visits[k] = v
	}
	s.steps = snap.Steps
	s.path = append([]string(nil), snap.Path...)
	s.tokens = snap.Tokens
	s.latency = snap.LatencyMS

	entry := domain.ResumeEntry(snap.PauseNode)
	startID, ok := s.graph.EntryPoint(entry)
	if !ok {
		return s.fail(ctx, domain.NewFailure(domain.FailValidation, snap.PauseNode,
			"resume entry point %q not defined", entry))
	}

	for k, v := range input {
		s.plane.Write(k, v)
	}

	if startID == snap.PauseNode && len(snap.Transcript) > 0 {
		reply := ""
		if v, ok := input[domain.ResumeInputKey]; ok {
			reply = stringify(v)
		}
		s.pendingResume = &resumeInput{nodeID: snap.PauseNode, transcript: snap.Transcript, userReply: reply}
	}

	s.rec.StartRun(ctx, s.runID, s.graph.Goal, input)
	s.logger.Info("run resumed", "run_id", s.runID, "entry", entry)

	return s.loop(ctx, startID)
}

// loop is the main scheduling loop: one iteration per decision.
func (s *Scheduler) loop(ctx context.Context, startID string) *Result {
	current := startID

	for {
		if res := s.checkInterrupted(ctx); res != nil {
			return res
		}

		node, ok := s.graph.Node(current)
		if !ok {
			return s.fail(ctx, domain.NewFailure(domain.FailValidation, current,
				"scheduled node is not defined"))
		}

		if s.cfg.MaxSteps > 0 && s.steps >= s.cfg.MaxSteps {
			return s.fail(ctx, domain.NewFailure(domain.FailLoopExhausted, node.ID,
				"run step bound %d reached", s.cfg.MaxSteps))
		}

		// Visit cap: a capped node is a dead-end; on-failure edges may
		// still route around it.
		if node.MaxVisits > 0 && s.visits[node.ID] >= node.MaxVisits {
			s.rec.RecordProblem(ctx, s.runID, domain.Problem{
				Severity: domain.SeverityCritical,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("visit cap %d reached", node.MaxVisits),
				Remedy:   "raise max_visits or add an on_failure edge",
			})
			if next, ok := s.selectEdge(node, false); ok {
				current = next
				continue
			}
			return s.fail(ctx, domain.NewFailure(domain.FailVisitCap, node.ID,
				"visit cap %d reached with no failure edge", node.MaxVisits))
		}

		// Input precondition: every non-nullable declared input key
		// must be present in the snapshot the node will read.
		view := s.plane.Snapshot()
		if missing := s.missingInputs(node, view); len(missing) > 0 {
			return s.fail(ctx, domain.NewFailure(domain.FailMissingInput, node.ID,
				"required inputs absent: %s", strings.Join(missing, ", ")))
		}

		decisionID := s.recordDecision(ctx, node)

		s.logger.Debug("executing node", "run_id", s.runID, "node", node.ID, "type", node.Type, "visit", s.visits[node.ID]+1)
		started := time.Now()
		out := s.execute(ctx, node, view)
		elapsed := time.Since(started).Milliseconds()

		s.steps++
		s.path = append(s.path, node.ID)
		s.tokens += out.tokens
		s.latency += elapsed

		s.rec.RecordOutcome(ctx, s.runID, domain.Outcome{
			DecisionID: decisionID,
			Success:    out.status != statusFailure,
			Result:     out.outputs,
			Summary:    s.summarize(node, out),
			LatencyMS:  elapsed,
			Tokens:     out.tokens,
		})

		switch out.status {
		case statusSuspend:
			return s.suspend(ctx, node, out, false)

		case statusFailure:
			s.visits[node.ID]++
			s.rec.RecordProblem(ctx, s.runID, domain.Problem{
				Severity: domain.SeverityCritical,
				NodeID:   node.ID,
				Message:  out.failure.Error(),
			})
			s.logger.Warn("node failed", "run_id", s.runID, "node", node.ID, "err", out.failure)
			if next, ok := s.selectEdge(node, false); ok {
				current = next
				continue
			}
			return s.fail(ctx, out.failure)

		case statusSuccess:
			if err := s.plane.Merge(node, out.outputs); err != nil {
				// Contract violation surfaces as a node failure.
				mergeFail := asFailure(err, node.ID)
				s.visits[node.ID]++
				s.rec.RecordProblem(ctx, s.runID, domain.Problem{
					Severity: domain.SeverityCritical,
					NodeID:   node.ID,
					Message:  mergeFail.Error(),
				})
				if next, ok := s.selectEdge(node, false); ok {
					current = next
					continue
				}
				return s.fail(ctx, mergeFail)
			}
			s.visits[node.ID]++

			// A client-facing node pauses inside its event loop; its
			// completion means the conversation is over, so only
			// non-client-facing pause nodes suspend here.
			if s.graph.IsPause(node.ID) && !node.ClientFacing {
				return s.suspend(ctx, node, out, true)
			}
			if s.graph.IsTerminal(node.ID) {
				return s.complete(ctx)
			}
			if next, ok := s.selectEdge(node, true); ok {
				current = next
				continue
			}
			return s.fail(ctx, domain.NewFailure(domain.FailDeadEnd, node.ID,
				"no outgoing edge fired"))
		}
	}
}

// execute dispatches to the executor variant for the node type.
func (s *Scheduler) execute(ctx context.Context, node *domain.Node, view memplane.View) nodeOutcome {
	switch node.Type {
	case domain.NodeTypeFunction:
		e := &functionExecutor{fns: s.fns}
		return e.execute(ctx, node, view)
	case domain.NodeTypeLLMGenerate:
		e := &generateExecutor{provider: s.provider, goal: &s.graph.Goal, turn: s.turnContext}
		return e.execute(ctx, node, view)
	case domain.NodeTypeLLMTools:
		e := &toolsExecutor{
			provider:  s.provider,
			broker:    s.broker,
			goal:      &s.graph.Goal,
			turn:      s.turnContext,
			maxTurns:  s.cfg.MaxTurns,
			maxTokens: s.cfg.MaxNodeTokens,
			problem: func(p domain.Problem) {
				s.rec.RecordProblem(ctx, s.runID, p)
			},
		}
		var resume *resumeInput
		if s.pendingResume != nil && s.pendingResume.nodeID == node.ID {
			resume = s.pendingResume
			s.pendingResume = nil
		}
		return e.run(ctx, node, view, resume)
	case domain.NodeTypeRouter:
		return routerExecutor{}.execute(ctx, node, view)
	}
	return failed(domain.NewFailure(domain.FailValidation, node.ID,
		"unknown node type %q", node.Type))
}

// selectEdge picks the next node: partition outgoing edges by
// condition match against the just-observed outcome and take the first
// that fires. Conditional edges are consulted before unconditional
// ones so a firing predicate (e.g. a feedback loop) beats a blanket
// on_success edge; within each pass edges run in priority order
// (forward before feedback, ties by edge id).
func (s *Scheduler) selectEdge(node *domain.Node, succeeded bool) (string, bool) {
	out := s.graph.Outgoing(node.ID)

	if succeeded {
		env := s.plane.Contents()
		for _, e := range out {
			if e.Condition != domain.EdgeConditional {
				continue
			}
			ok, err := expr.Eval(e.Predicate, env)
			if err != nil {
				s.logger.Warn("conditional edge predicate error", "edge", e.ID, "err", err)
				continue
			}
			if ok {
				return e.Target, true
			}
		}
	}

	for _, e := range out {
		switch e.Condition {
		case domain.EdgeAlways:
			return e.Target, true
		case domain.EdgeOnSuccess:
			if succeeded {
				return e.Target, true
			}
		case domain.EdgeOnFailure:
			if !succeeded {
				return e.Target, true
			}
		}
	}
	return "", false
}

func (s *Scheduler) missingInputs(node *domain.Node, view memplane.View) []string {
	var missing []string
	for _, key := range node.InputKeys {
		if s.nullableKeys[key] {
			continue
		}
		if v, ok := view.Get(key); !ok || v == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

func (s *Scheduler) checkInterrupted(ctx context.Context) *Result {
	if s.cancelled.Load() {
		return s.fail(ctx, domain.NewFailure(domain.FailCancelled, "", "cancelled by host"))
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return s.fail(ctx, domain.NewFailure(domain.FailTimeout, "", "run deadline expired"))
		}
		return s.fail(ctx, domain.NewFailure(domain.FailCancelled, "", "run context cancelled"))
	}
	return nil
}

func (s *Scheduler) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TurnTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.TurnTimeout)
	}
	return ctx, func() {}
}

func (s *Scheduler) recordDecision(ctx context.Context, node *domain.Node) string {
	opts := []domain.Option{{
		ID:          node.ID,
		Description: fmt.Sprintf("execute %s node %s", node.Type, nodeName(node)),
		Kind:        node.Type,
	}}
	for _, e := range s.graph.Outgoing(node.ID) {
		opts = append(opts, domain.Option{
			ID:          e.ID,
			Description: fmt.Sprintf("then %s -> %s (%s)", e.Source, e.Target, e.Condition),
			Kind:        "edge",
		})
	}
	return s.rec.RecordDecision(ctx, s.runID, domain.Decision{
		NodeID:    node.ID,
		Intent:    fmt.Sprintf("Execute node %s", nodeName(node)),
		Options:   opts,
		Chosen:    node.ID,
		Reasoning: "scheduler selected the node on the active path",
	})
}

func (s *Scheduler) summarize(node *domain.Node, out nodeOutcome) string {
	switch out.status {
	case statusFailure:
		return fmt.Sprintf("%s failed: %s", nodeName(node), out.failure.Msg)
	case statusSuspend:
		return fmt.Sprintf("%s suspended awaiting input", nodeName(node))
	}
	if len(out.outputs) == 0 {
		return fmt.Sprintf("%s completed", nodeName(node))
	}
	keys := make([]string, 0, len(out.outputs))
	for k := range out.outputs {
		keys = append(keys, k)
	}
	return fmt.Sprintf("%s wrote %s", nodeName(node), strings.Join(keys, ", "))
}

// suspend materializes the run to a snapshot. merged reports whether
// the pause node completed (scheduler-level pause) as opposed to a
// client-facing mid-loop suspension.
func (s *Scheduler) suspend(ctx context.Context, node *domain.Node, out nodeOutcome, merged bool) *Result {
	payload := out.payload
	if payload == "" && merged {
		payload = serializeView(memplane.View(out.outputs))
	}

	snap := &domain.Snapshot{
		RunID:        s.runID,
		GraphID:      s.graph.ID,
		State:        domain.RunSuspended,
		Memory:       s.plane.Contents(),
		Visits:       s.visitsCopy(),
		Steps:        s.steps,
		Path:         append([]string(nil), s.path...),
		PauseNode:    node.ID,
		PausePayload: payload,
		Transcript:   out.transcript,
		Tokens:       s.tokens,
		LatencyMS:    s.latency,
	}

	s.rec.EndRun(ctx, s.runID, true,
		fmt.Sprintf("Paused at %s after %d steps", nodeName(node), s.steps),
		snap.Memory)
	s.logger.Info("run suspended", "run_id", s.runID, "node", node.ID)

	return &Result{
		RunID:     s.runID,
		State:     domain.RunSuspended,
		Outputs:   snap.Memory,
		Steps:     s.steps,
		Path:      snap.Path,
		Tokens:    s.tokens,
		LatencyMS: s.latency,
		Snapshot:  snap,
	}
}

func (s *Scheduler) complete(ctx context.Context) *Result {
	outputs := s.plane.Contents()
	s.rec.EndRun(ctx, s.runID, true,
		fmt.Sprintf("Executed %d steps through path: %s", s.steps, strings.Join(s.path, " -> ")),
		outputs)
	s.logger.Info("run completed", "run_id", s.runID, "steps", s.steps)

	return &Result{
		RunID:     s.runID,
		State:     domain.RunCompleted,
		Outputs:   outputs,
		Steps:     s.steps,
		Path:      append([]string(nil), s.path...),
		Tokens:    s.tokens,
		LatencyMS: s.latency,
	}
}

func (s *Scheduler) fail(ctx context.Context, f *domain.Failure) *Result {
	s.rec.RecordProblem(ctx, s.runID, domain.Problem{
		Severity: domain.SeverityCritical,
		NodeID:   f.NodeID,
		Message:  f.Error(),
	})
	s.rec.EndRun(ctx, s.runID, false,
		fmt.Sprintf("Failed at step %d: %s", s.steps, f.Error()), nil)
	s.logger.Error("run failed", "run_id", s.runID, "kind", f.Kind, "err", f)

	return &Result{
		RunID:     s.runID,
		State:     domain.RunFailed,
		Failure:   f,
		Steps:     s.steps,
		Path:      append([]string(nil), s.path...),
		Tokens:    s.tokens,
		LatencyMS: s.latency,
	}
}

func (s *Scheduler) visitsCopy() map[string]int {
	out := make(map[string]int, len(s.visits))
	for k, v := range s.visits {
		out[k] = v
	}
	return out
}

func nodeName(n *domain.Node) string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// nopRecorder discards every event.
type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, string, domain.Goal, map[string]any) {}
func (nopRecorder) RecordDecision(context.Context, string, domain.Decision) string {
	return uuid.NewString()
}
func (nopRecorder) RecordOutcome(context.Context, string, domain.Outcome)           {}
func (nopRecorder) RecordProblem(context.Context, string, domain.Problem)           {}
func (nopRecorder) EndRun(context.Context, string, bool, string, map[string]any)    {}

var _ ports.Recorder = nopRecorder{}
