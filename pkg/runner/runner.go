// Package runner is the host facade of the hive runtime: it owns the
// graph, the tool broker, the snapshot store and the trace sink, and
// exposes the operations the surrounding CLI, HTTP server or SDK call:
// run, resume, status, cancel, and tool-server registration.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/systaxiecuador/hive/internal/logging"
	hiveruntime "github.com/systaxiecuador/hive/internal/runtime"
	"github.com/systaxiecuador/hive/pkg/adapters/memory"
	"github.com/systaxiecuador/hive/pkg/broker"
	"github.com/systaxiecuador/hive/pkg/domain"
	"github.com/systaxiecuador/hive/pkg/ports"
)

// Status is the host-visible view of one run.
type Status struct {
	RunID       string          `json:"run_id"`
	State       domain.RunState `json:"state"`
	CurrentNode string          `json:"current_node,omitempty"`
	LastOutput  string          `json:"last_output,omitempty"`
}

// Runtime binds one graph to its collaborators and drives runs of it.
// Multiple runs may execute concurrently as independent scheduler
// instances; they share only the broker's server registry.
type Runtime struct {
	graph    *domain.Graph
	provider ports.Provider
	broker   *broker.Broker
	store    ports.RunStore
	rec      ports.Recorder
	fns      map[string]hiveruntime.FunctionFunc
	locker   ports.DistributedLocker
	logger   *slog.Logger

	cfg        hiveruntime.Config
	runTimeout time.Duration

	mu     sync.Mutex
	locks  map[string]*lockEntry
	active map[string]*hiveruntime.Scheduler
	last   map[string]*hiveruntime.Result
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithProvider sets the LLM provider.
func WithProvider(p ports.Provider) Option {
	return func(r *Runtime) { r.provider = p }
}

// WithBroker sets the shared tool broker.
func WithBroker(b *broker.Broker) Option {
	return func(r *Runtime) { r.broker = b }
}

// WithStore sets the run snapshot store.
func WithStore(s ports.RunStore) Option {
	return func(r *Runtime) { r.store = s }
}

// WithRecorder sets the trace sink handed to every scheduler.
func WithRecorder(rec ports.Recorder) Option {
	return func(r *Runtime) { r.rec = rec }
}

// WithFunctions binds host transformations to function nodes by id.
func WithFunctions(fns map[string]hiveruntime.FunctionFunc) Option {
	return func(r *Runtime) { r.fns = fns }
}

// WithLocker enables distributed run locking.
func WithLocker(l ports.DistributedLocker) Option {
	return func(r *Runtime) { r.locker = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConfig overrides the scheduler execution bounds.
func WithConfig(cfg hiveruntime.Config) Option {
	return func(r *Runtime) { r.cfg = cfg }
}

// WithRunTimeout sets the per-run deadline. Zero means none.
func WithRunTimeout(d time.Duration) Option {
	return func(r *Runtime) { r.runTimeout = d }
}

// New creates a Runtime for the given (already validated) graph.
func New(graph *domain.Graph, opts ...Option) (*Runtime, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	r := &Runtime{
		graph:  graph,
		logger: logging.NewNop(),
		cfg:    hiveruntime.DefaultConfig(),
		locks:  make(map[string]*lockEntry),
		active: make(map[string]*hiveruntime.Scheduler),
		last:   make(map[string]*hiveruntime.Result),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = memory.NewStore()
	}
	if r.broker == nil {
		r.broker = broker.New(broker.WithLogger(r.logger))
	}
	return r, nil
}

// Broker returns the shared tool broker.
func (r *Runtime) Broker() *broker.Broker { return r.broker }

// Graph returns the bound graph.
func (r *Runtime) Graph() *domain.Graph { return r.graph }

// RegisterToolServer connects a tool server and caches its catalogue.
func (r *Runtime) RegisterToolServer(ctx context.Context, cfg broker.ServerConfig) ([]domain.Tool, error) {
	return r.broker.Register(ctx, cfg)
}

// UnregisterToolServer closes the server's transport and drops its
// tools.
func (r *Runtime) UnregisterToolServer(name string) error {
	return r.broker.Unregister(name)
}

// Run starts a new run from the "start" entry point with the given
// input payload. It blocks until the run completes, fails, or
// suspends at a pause node; a suspended run is persisted and can be
// continued with Resume.
func (r *Runtime) Run(ctx context.Context, input map[string]any) (*hiveruntime.Result, error) {
	runID := uuid.NewString()
	sched := r.newScheduler(runID)

	r.trackActive(runID, sched)
	defer r.untrackActive(runID)

	runCtx, cancel := r.runContext(ctx)
	defer cancel()

	res := sched.Run(runCtx, domain.EntryPointStart, input)
	if err := r.commit(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

// Resume continues a suspended run with the host's reply, re-entering
// the graph at the <pause-node>_resume entry point.
func (r *Runtime) Resume(ctx context.Context, runID string, input map[string]any) (*hiveruntime.Result, error) {
	var res *hiveruntime.Result
	err := r.withRunLock(ctx, runID, func(ctx context.Context) error {
		snap, err := r.store.Load(ctx, runID)
		if err != nil {
			return err
		}
		if snap.State != domain.RunSuspended {
			return fmt.Errorf("run %s is %s, not suspended", runID, snap.State)
		}

		sched := r.newScheduler(runID)
		r.trackActive(runID, sched)
		defer r.untrackActive(runID)

		runCtx, cancel := r.runContext(ctx)
		defer cancel()

		res = sched.Resume(runCtx, snap, input)
		return r.commit(ctx, res)
	})
	return res, err
}

// Status reports the state of a run: live if currently executing,
// otherwise from the last committed snapshot.
func (r *Runtime) Status(ctx context.Context, runID string) (*Status, error) {
	r.mu.Lock()
	_, running := r.active[runID]
	last := r.last[runID]
	r.mu.Unlock()

	if running {
		return &Status{RunID: runID, State: domain.RunRunning}, nil
	}

	snap, err := r.store.Load(ctx, runID)
	if err == nil {
		return &Status{
			RunID:       runID,
			State:       snap.State,
			CurrentNode: snap.PauseNode,
			LastOutput:  snap.PausePayload,
		}, nil
	}
	if last != nil {
		st := &Status{RunID: runID, State: last.State}
		if len(last.Path) > 0 {
			st.CurrentNode = last.Path[len(last.Path)-1]
		}
		return st, nil
	}
	return nil, err
}

// Runs lists the run ids known to the snapshot store.
func (r *Runtime) Runs(ctx context.Context) ([]string, error) {
	return r.store.List(ctx)
}

// Cancel requests cancellation of a run at its next safe point. A
// suspended run is marked failed immediately.
func (r *Runtime) Cancel(ctx context.Context, runID string) error {
	r.mu.Lock()
	sched, running := r.active[runID]
	r.mu.Unlock()

	if running {
		sched.Cancel()
		return nil
	}

	return r.withRunLock(ctx, runID, func(ctx context.Context) error {
		snap, err := r.store.Load(ctx, runID)
		if err != nil {
			return err
		}
		if snap.State != domain.RunSuspended {
			return fmt.Errorf("run %s is %s and cannot be cancelled", runID, snap.State)
		}
		snap.State = domain.RunFailed
		return r.store.Save(ctx, snap)
	})
}

func (r *Runtime) newScheduler(runID string) *hiveruntime.Scheduler {
	return hiveruntime.NewScheduler(r.graph, runID,
		hiveruntime.WithProvider(r.provider),
		hiveruntime.WithBroker(r.broker),
		hiveruntime.WithRecorder(r.rec),
		hiveruntime.WithFunctions(r.fns),
		hiveruntime.WithLogger(r.logger),
		hiveruntime.WithConfig(r.cfg),
	)
}

func (r *Runtime) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.runTimeout > 0 {
		return context.WithTimeout(ctx, r.runTimeout)
	}
	return context.WithCancel(ctx)
}

// commit persists the run's terminal or suspended state so Status and
// Resume observe it after this call returns.
func (r *Runtime) commit(ctx context.Context, res *hiveruntime.Result) error {
	r.mu.Lock()
	r.last[res.RunID] = res
	r.mu.Unlock()

	if res.State == domain.RunSuspended && res.Snapshot != nil {
		if err := r.store.Save(ctx, res.Snapshot); err != nil {
			return fmt.Errorf("critical persistence error: %w", err)
		}
		return nil
	}

	// Terminal states keep a slim snapshot for post-hoc status.
	snap := &domain.Snapshot{
		RunID:   res.RunID,
		GraphID: r.graph.ID,
		State:   res.State,
		Memory:  res.Outputs,
		Visits:  map[string]int{},
		Steps:   res.Steps,
		Path:    res.Path,
		Tokens:  res.Tokens,
	}
	if err := r.store.Save(ctx, snap); err != nil {
		r.logger.Warn("failed to persist terminal snapshot", "run_id", res.RunID, "err", err)
	}
	return nil
}

func (r *Runtime) trackActive(runID string, s *hiveruntime.Scheduler) {
	r.mu.Lock()
	r.active[runID] = s
	r.mu.Unlock()
}

func (r *Runtime) untrackActive(runID string) {
	r.mu.Lock()
	delete(r.active, runID)
	r.mu.Unlock()
}
