package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// applyErrorPolicy resolves an agent invocation failure according to
// the stage's configured policy. It returns true when the stage should
// be re-dispatched (a retry attempt remains); in every other case the
// stage has been driven to a terminal status and the run-level
// consequence (halt or cascade) has been applied.
func (e *Engine) applyErrorPolicy(ctx context.Context, st *Stage, invErr error, logger *zap.Logger) bool {
	switch st.errorPolicy() {
	case PolicyRetry:
		if st.retryCount < st.MaxRetries {
			st.retryCount++
			e.metrics.ObserveRetry()
			logger.Warn("stage failed, retrying",
				zap.Int("attempt", st.retryCount+1),
				zap.Int("max_retries", st.MaxRetries),
				zap.Error(invErr),
			)
			e.emit(Event{
				Type: EventStageRetry, RunID: e.runID,
				StageID: st.ID, AgentID: st.AgentID,
				Status: StatusRunning, Attempt: st.retryCount + 1,
				Err: invErr, Time: time.Now(),
			})
			if e.retryBackoff > 0 {
				// Exponential: base, 2*base, 4*base, ...
				delay := e.retryBackoff << (st.retryCount - 1)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					e.finishFailed(st, invErr, logger)
					e.halt(st.ID)
					return false
				}
			}
			return true
		}

		logger.Error("stage retries exhausted",
			zap.Int("max_retries", st.MaxRetries),
			zap.Error(invErr),
		)
		e.finishFailed(st, invErr, logger)
		if st.exhaustPolicy() == ExhaustSkip {
			e.cascadeSkip(st, logger)
		} else {
			e.halt(st.ID)
		}
		return false

	case PolicySkip:
		logger.Warn("stage failed, skipping dependents and continuing", zap.Error(invErr))
		e.finishFailed(st, invErr, logger)
		e.cascadeSkip(st, logger)
		return false

	default: // PolicyStop
		logger.Error("stage failed, halting workflow", zap.Error(invErr))
		e.finishFailed(st, invErr, logger)
		e.halt(st.ID)
		return false
	}
}

// cascadeSkip marks every transitive dependent of a failed stage as
// skipped. Dependents cannot have started (their dependency never
// completed), so only pending stages are touched. Diamond-shaped
// graphs reach a stage twice; the terminal check makes the second
// visit a no-op.
func (e *Engine) cascadeSkip(failed *Stage, logger *zap.Logger) {
	queue := append([]string(nil), e.graph.Dependents(failed.ID)...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		dep, ok := e.graph.Stage(id)
		if !ok {
			continue
		}

		now := time.Now()
		e.mu.Lock()
		if dep.Status() != StatusPending {
			e.mu.Unlock()
			continue
		}
		dep.status = StatusSkipped
		dep.completedAt = now
		e.mu.Unlock()

		e.store.set(id, StageResult{Status: StatusSkipped, CompletedAt: now})
		e.metrics.ObserveStage(dep.AgentID, StatusSkipped, 0)
		e.metrics.ObserveCascadeSkip()
		logger.Info("stage skipped, dependency failed",
			zap.String("skipped_stage", id),
			zap.String("failed_dependency", failed.ID),
		)
		e.emit(Event{
			Type: EventStageSkipped, RunID: e.runID,
			StageID: id, AgentID: dep.AgentID,
			Status: StatusSkipped, Reason: SkipReasonCascade, Time: now,
		})

		queue = append(queue, e.graph.Dependents(id)...)
	}
}
