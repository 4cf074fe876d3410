package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/witmind/conductor/types"
)

const tracerName = "github.com/witmind/conductor/workflow"

// AgentInvoker executes the body of a stage. Implemented by the
// caller; the engine only sequences invocations. The results snapshot
// is immutable: agents communicate exclusively through their returned
// TaskResult, never through shared state.
type AgentInvoker interface {
	Invoke(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error)
}

// InvokerFunc adapts a function to the AgentInvoker interface.
type InvokerFunc func(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error)

func (f InvokerFunc) Invoke(ctx context.Context, agentID string, task types.TaskSpec, results Snapshot) (types.TaskResult, error) {
	return f(ctx, agentID, task, results)
}

// Result is the terminal outcome of a workflow run. Execute always
// returns a Result for ordinary agent failures; only graph validation,
// deadlock, and context cancellation surface as errors.
type Result struct {
	// Success is false only when the run halted: a Stop-policy failure
	// or exhausted retries escalating to Stop. Skip-policy failures
	// leave Success true.
	Success bool
	// RunID uniquely identifies this execution.
	RunID string
	// FailedStage names the stage that halted the run, if any.
	FailedStage string
	// Stages maps stage IDs to their recorded outcomes. Stages never
	// reached (halted run) have no entry.
	Stages map[string]StageResult
}

// Engine drives a workflow: it pulls ready stages from the graph,
// groups them by parallel tag, gates them through conditions and
// approvals, dispatches them to the agent invoker, and applies the
// per-stage error policy until no stage is pending or the run halts.
//
// An Engine executes exactly once; build a new one for each run.
type Engine struct {
	graph   *Graph
	invoker AgentInvoker
	store   *ResultStore
	logger  *zap.Logger
	metrics *Metrics
	emitter EventEmitter
	limiter *rate.Limiter
	tracer  trace.Tracer

	retryBackoff time.Duration
	maxParallel  int
	vars         map[string]any

	orderIndex map[string]int
	runID      string
	executed   bool

	mu          sync.Mutex
	halted      bool
	failedStage string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithEmitter attaches an execution event emitter.
func WithEmitter(emitter EventEmitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithDispatchLimiter throttles agent dispatch across the whole run.
// Each invocation attempt (retries included) consumes one token.
func WithDispatchLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithRetryBackoff sets the base delay between retry attempts. The
// delay doubles on each subsequent retry of the same stage. Zero
// disables backoff.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// WithMaxParallel bounds concurrent workers within a parallel group.
// Zero or negative means the group's own size is the bound.
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.maxParallel = n }
}

// WithVariables seeds the workflow variables exposed to conditions and
// expression predicates. The map is read-only to the engine.
func WithVariables(vars map[string]any) Option {
	return func(e *Engine) { e.vars = vars }
}

// WithTracer sets a custom OpenTelemetry tracer. Defaults to the
// global tracer provider, which is a no-op unless the caller installs
// one.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// New creates an engine for the given graph and invoker.
func New(graph *Graph, invoker AgentInvoker, opts ...Option) *Engine {
	e := &Engine{
		graph:   graph,
		invoker: invoker,
		store:   NewResultStore(),
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	if graph != nil {
		e.orderIndex = make(map[string]int, graph.Len())
		for i, st := range graph.Stages() {
			e.orderIndex[st.ID] = i
		}
	}
	return e
}

// Results returns the engine's result store, for callers that want to
// observe outcomes while the run is still in flight.
func (e *Engine) Results() *ResultStore {
	return e.store
}

// Execute runs the workflow to completion. The approval callback is
// consulted for stages with RequiresApproval; nil auto-approves with a
// warning. Ordinary agent failures are absorbed into the Result per
// each stage's error policy; an error return means the run could not
// proceed at all (nil graph/invoker, re-execution, deadlock, or
// context cancellation).
func (e *Engine) Execute(ctx context.Context, approval ApprovalFunc) (*Result, error) {
	if e.graph == nil {
		return nil, types.NewError(types.ErrValidation, "graph cannot be nil")
	}
	if e.invoker == nil {
		return nil, types.NewError(types.ErrValidation, "invoker cannot be nil")
	}
	if e.executed {
		return nil, types.NewError(types.ErrValidation, "engine already executed; build a new one per run")
	}
	e.executed = true

	start := time.Now()
	e.runID = uuid.NewString()
	logger := e.logger.With(zap.String("run_id", e.runID))

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.run_id", e.runID),
		attribute.Int("workflow.stages", e.graph.Len()),
	))
	defer span.End()

	logger.Info("starting workflow", zap.Int("stages", e.graph.Len()))
	e.emit(Event{Type: EventWorkflowStart, RunID: e.runID, Time: start})

	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("workflow canceled", zap.Error(err))
			return nil, types.NewError(types.ErrWorkflowCanceled, "workflow canceled").WithCause(err)
		}
		if e.isHalted() {
			break
		}

		runnable, skipped := e.collectRunnable()
		if len(runnable) == 0 {
			if skipped > 0 {
				// Condition skips may have unlocked dependents.
				continue
			}
			if pending := e.graph.PendingIDs(); len(pending) > 0 {
				err := types.NewErrorf(types.ErrWorkflowDeadlock,
					"no stage can run but %d remain pending: %s",
					len(pending), strings.Join(pending, ", "))
				logger.Error("workflow deadlocked", zap.Strings("pending", pending))
				return nil, err
			}
			break
		}

		for _, group := range e.graph.GroupReady(runnable) {
			if e.isHalted() {
				break
			}
			if len(group.Stages) == 1 {
				e.runStage(ctx, group.Stages[0], approval)
				continue
			}

			logger.Debug("dispatching parallel group",
				zap.String("group", group.Name),
				zap.Int("size", len(group.Stages)),
			)
			var eg errgroup.Group
			limit := len(group.Stages)
			if e.maxParallel > 0 && e.maxParallel < limit {
				limit = e.maxParallel
			}
			eg.SetLimit(limit)
			for _, st := range group.Stages {
				st := st
				eg.Go(func() error {
					e.runStage(ctx, st, approval)
					return nil
				})
			}
			// Workers never return errors; failures are absorbed by
			// the per-stage policy. Wait lets in-flight stages drain
			// even when one of them halted the run.
			_ = eg.Wait()
		}
	}

	e.mu.Lock()
	result := &Result{
		Success:     !e.halted,
		RunID:       e.runID,
		FailedStage: e.failedStage,
		Stages:      e.store.Snapshot(nil).Results,
	}
	e.mu.Unlock()

	duration := time.Since(start)
	e.metrics.ObserveWorkflow(result.Success, duration)
	span.SetAttributes(attribute.Bool("workflow.success", result.Success))
	logger.Info("workflow finished",
		zap.Bool("success", result.Success),
		zap.String("failed_stage", result.FailedStage),
		zap.Int("stages_recorded", len(result.Stages)),
		zap.Duration("duration", duration),
	)
	e.emit(Event{Type: EventWorkflowFinish, RunID: e.runID, Time: time.Now()})
	return result, nil
}

// collectRunnable computes the ready set and applies conditions.
// Conditions are evaluated here, exactly once, against a snapshot
// taken the moment the stage became ready; false transitions the stage
// straight to skipped. Returns the stages to dispatch and the number
// condition-skipped in this pass.
func (e *Engine) collectRunnable() ([]*Stage, int) {
	ready := e.graph.ReadyStages()
	var runnable []*Stage
	skipped := 0
	for _, st := range ready {
		if st.Condition != nil && !st.Condition(e.snapshot()) {
			e.logger.Info("stage skipped, condition not met",
				zap.String("run_id", e.runID),
				zap.String("stage_id", st.ID),
			)
			e.markSkipped(st, SkipReasonCondition)
			skipped++
			continue
		}
		runnable = append(runnable, st)
	}
	return runnable, skipped
}

// runStage drives a single stage through approval, invocation, and
// error policy. It never returns an error: every outcome is recorded
// in the stage and the result store.
func (e *Engine) runStage(ctx context.Context, st *Stage, approval ApprovalFunc) {
	logger := e.logger.With(
		zap.String("run_id", e.runID),
		zap.String("stage_id", st.ID),
		zap.String("agent_id", st.AgentID),
	)
	ctx, span := e.tracer.Start(ctx, "workflow.stage", trace.WithAttributes(
		attribute.String("stage.id", st.ID),
		attribute.String("stage.agent_id", st.AgentID),
	))
	defer span.End()
	defer func() {
		span.SetAttributes(attribute.String("stage.status", string(st.Status())))
	}()

	if st.RequiresApproval && !e.requestApproval(ctx, st, approval, logger) {
		return
	}

	e.setStatus(st, StatusRunning)
	st.startedAt = time.Now()
	logger.Info("stage started")
	e.emit(Event{
		Type: EventStageStart, RunID: e.runID,
		StageID: st.ID, AgentID: st.AgentID,
		Status: StatusRunning, Time: st.startedAt,
	})

	for {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.finishFailed(st, types.NewError(types.ErrWorkflowCanceled, "dispatch canceled").
					WithStage(st.ID).WithCause(err), logger)
				e.halt(st.ID)
				return
			}
		}
		output, err := e.invoker.Invoke(ctx, st.AgentID, st.Task, e.snapshot())
		if err == nil {
			e.finishCompleted(st, output, logger)
			return
		}
		invErr := types.NewErrorf(types.ErrAgentInvocation, "agent %s failed", st.AgentID).
			WithStage(st.ID).WithCause(err)
		if !e.applyErrorPolicy(ctx, st, invErr, logger) {
			return
		}
	}
}

// requestApproval runs the approval gate. Returns false when the stage
// was denied and skipped.
func (e *Engine) requestApproval(ctx context.Context, st *Stage, approval ApprovalFunc, logger *zap.Logger) bool {
	e.setStatus(st, StatusAwaitingApproval)
	message := st.ApprovalMessage
	if message == "" {
		message = fmt.Sprintf("Approve execution of stage %s?", st.ID)
	}
	logger.Info("stage awaiting approval")
	e.emit(Event{
		Type: EventStageAwaitingApproval, RunID: e.runID,
		StageID: st.ID, AgentID: st.AgentID,
		Status: StatusAwaitingApproval, Time: time.Now(),
	})

	fn := approval
	if fn == nil {
		logger.Warn("no approval callback configured, auto-approving")
		fn = AutoApprove
	}
	approved := fn(ctx, st.Descriptor(), message)
	e.metrics.ObserveApproval(approved)
	if !approved {
		logger.Warn("approval denied, skipping stage")
		e.markSkipped(st, SkipReasonApproval)
		return false
	}
	return true
}

func (e *Engine) snapshot() Snapshot {
	return e.store.Snapshot(e.vars)
}

func (e *Engine) emit(ev Event) {
	if e.emitter != nil {
		e.emitter(ev)
	}
}

func (e *Engine) isHalted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// halt stops scheduling of new stages. When workers in the same
// parallel group halt concurrently, the stage earliest in insertion
// order wins, so the reported FailedStage is deterministic.
func (e *Engine) halt(stageID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.halted {
		e.halted = true
		e.failedStage = stageID
		return
	}
	if e.orderIndex[stageID] < e.orderIndex[e.failedStage] {
		e.failedStage = stageID
	}
}

func (e *Engine) setStatus(st *Stage, status StageStatus) {
	e.mu.Lock()
	st.status = status
	e.mu.Unlock()
}

func (e *Engine) markSkipped(st *Stage, reason string) {
	now := time.Now()
	e.mu.Lock()
	st.status = StatusSkipped
	st.completedAt = now
	e.mu.Unlock()
	e.store.set(st.ID, StageResult{Status: StatusSkipped, CompletedAt: now})
	e.metrics.ObserveStage(st.AgentID, StatusSkipped, 0)
	e.emit(Event{
		Type: EventStageSkipped, RunID: e.runID,
		StageID: st.ID, AgentID: st.AgentID,
		Status: StatusSkipped, Reason: reason, Time: now,
	})
}

func (e *Engine) finishCompleted(st *Stage, output types.TaskResult, logger *zap.Logger) {
	now := time.Now()
	e.mu.Lock()
	st.status = StatusCompleted
	st.completedAt = now
	e.mu.Unlock()
	attempts := st.retryCount + 1
	e.store.set(st.ID, StageResult{
		Status:      StatusCompleted,
		Output:      output,
		StartedAt:   st.startedAt,
		CompletedAt: now,
		Attempts:    attempts,
	})
	duration := now.Sub(st.startedAt)
	e.metrics.ObserveStage(st.AgentID, StatusCompleted, duration)
	logger.Info("stage completed",
		zap.Duration("duration", duration),
		zap.Int("attempts", attempts),
	)
	e.emit(Event{
		Type: EventStageComplete, RunID: e.runID,
		StageID: st.ID, AgentID: st.AgentID,
		Status: StatusCompleted, Attempt: attempts, Time: now,
	})
}

func (e *Engine) finishFailed(st *Stage, err error, logger *zap.Logger) {
	now := time.Now()
	e.mu.Lock()
	st.status = StatusFailed
	st.completedAt = now
	e.mu.Unlock()
	attempts := st.retryCount + 1
	e.store.set(st.ID, StageResult{
		Status:      StatusFailed,
		Err:         err,
		StartedAt:   st.startedAt,
		CompletedAt: now,
		Attempts:    attempts,
	})
	duration := now.Sub(st.startedAt)
	e.metrics.ObserveStage(st.AgentID, StatusFailed, duration)
	logger.Error("stage failed",
		zap.Duration("duration", duration),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	e.emit(Event{
		Type: EventStageFailed, RunID: e.runID,
		StageID: st.ID, AgentID: st.AgentID,
		Status: StatusFailed, Attempt: attempts, Err: err, Time: now,
	})
}
