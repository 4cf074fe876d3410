package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/witmind/conductor/types"
)

// ApprovalFunc is the human-decision checkpoint invoked synchronously
// immediately before invocation for stages that require approval.
// Returning false skips the stage without invoking the agent. The
// engine imposes no timeout; callers needing one wrap the function and
// return false on expiry. The context is canceled when the engine is
// torn down mid-execution.
type ApprovalFunc func(ctx context.Context, stage StageDescriptor, message string) bool

// AutoApprove grants every approval request. Used by unattended runs
// and as the fallback when no callback is configured.
func AutoApprove(ctx context.Context, stage StageDescriptor, message string) bool {
	return true
}

// DenyAll rejects every approval request.
func DenyAll(ctx context.Context, stage StageDescriptor, message string) bool {
	return false
}

// ApprovalStatus tracks the state of a brokered approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalGranted  ApprovalStatus = "granted"
	ApprovalDenied   ApprovalStatus = "denied"
	ApprovalCanceled ApprovalStatus = "canceled"
)

// ApprovalRequest is one pending (or resolved) human decision.
type ApprovalRequest struct {
	ID         string         `json:"id"`
	StageID    string         `json:"stage_id"`
	AgentID    string         `json:"agent_id"`
	Message    string         `json:"message"`
	Status     ApprovalStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Decision   *Decision      `json:"decision,omitempty"`
}

// Decision is a human response to an approval request.
type Decision struct {
	Approved  bool      `json:"approved"`
	DecidedBy string    `json:"decided_by,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// ApprovalStore persists approval requests for UIs to list and audit.
type ApprovalStore interface {
	Save(req *ApprovalRequest) error
	Update(req *ApprovalRequest) error
	List(status ApprovalStatus) ([]*ApprovalRequest, error)
}

// Broker bridges the engine's synchronous approval contract to an
// asynchronous decision surface (CLI, dashboard). The engine blocks in
// Callback while the request sits in the pending set; any other
// goroutine resolves it by ID. Concurrent requests from stages in the
// same parallel group are independent and may be answered in any order.
type Broker struct {
	store   ApprovalStore
	logger  *zap.Logger
	mu      sync.Mutex
	pending map[string]*pendingApproval
}

type pendingApproval struct {
	request    *ApprovalRequest
	decisionCh chan Decision
}

// NewBroker creates an approval broker. A nil store defaults to an
// in-memory store; a nil logger defaults to a no-op logger.
func NewBroker(store ApprovalStore, logger *zap.Logger) *Broker {
	if store == nil {
		store = NewMemoryApprovalStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		store:   store,
		logger:  logger.With(zap.String("component", "approval_broker")),
		pending: make(map[string]*pendingApproval),
	}
}

// Callback returns the ApprovalFunc to hand to the engine. Each call
// registers a pending request and blocks until Resolve or Deny is
// invoked for it, or the context is canceled (which counts as denial).
func (b *Broker) Callback() ApprovalFunc {
	return func(ctx context.Context, stage StageDescriptor, message string) bool {
		req := &ApprovalRequest{
			ID:        uuid.NewString(),
			StageID:   stage.ID,
			AgentID:   stage.AgentID,
			Message:   message,
			Status:    ApprovalPending,
			CreatedAt: time.Now(),
		}
		if err := b.store.Save(req); err != nil {
			b.logger.Error("failed to save approval request",
				zap.String("stage_id", stage.ID),
				zap.Error(err),
			)
			return false
		}

		p := &pendingApproval{request: req, decisionCh: make(chan Decision, 1)}
		b.mu.Lock()
		b.pending[req.ID] = p
		b.mu.Unlock()

		b.logger.Info("approval requested",
			zap.String("request_id", req.ID),
			zap.String("stage_id", stage.ID),
		)

		select {
		case decision := <-p.decisionCh:
			return decision.Approved
		case <-ctx.Done():
			b.cancel(req.ID)
			return false
		}
	}
}

// Pending lists requests still awaiting a decision, oldest first.
func (b *Broker) Pending() []*ApprovalRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*ApprovalRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.request)
	}
	sortApprovals(out)
	return out
}

// Resolve answers a pending request. Unknown or already-resolved IDs
// fail with a structured error.
func (b *Broker) Resolve(requestID string, decision Decision) error {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	if !ok {
		b.mu.Unlock()
		return types.NewErrorf(types.ErrApprovalUnknown,
			"approval request not found or already resolved: %s", requestID)
	}
	delete(b.pending, requestID)
	b.mu.Unlock()

	now := time.Now()
	decision.DecidedAt = now
	p.request.Decision = &decision
	p.request.ResolvedAt = &now
	if decision.Approved {
		p.request.Status = ApprovalGranted
	} else {
		p.request.Status = ApprovalDenied
	}
	if err := b.store.Update(p.request); err != nil {
		b.logger.Error("failed to update approval request",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}

	b.logger.Info("approval resolved",
		zap.String("request_id", requestID),
		zap.Bool("approved", decision.Approved),
	)
	p.decisionCh <- decision
	return nil
}

// Deny is shorthand for Resolve with Approved=false.
func (b *Broker) Deny(requestID, comment string) error {
	return b.Resolve(requestID, Decision{Approved: false, Comment: comment})
}

func (b *Broker) cancel(requestID string) {
	b.mu.Lock()
	p, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	now := time.Now()
	p.request.Status = ApprovalCanceled
	p.request.ResolvedAt = &now
	if err := b.store.Update(p.request); err != nil {
		b.logger.Error("failed to update canceled approval",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
	b.logger.Warn("approval canceled", zap.String("request_id", requestID))
}

func sortApprovals(reqs []*ApprovalRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}

// MemoryApprovalStore is the in-memory ApprovalStore.
type MemoryApprovalStore struct {
	mu       sync.RWMutex
	requests map[string]*ApprovalRequest
}

// NewMemoryApprovalStore creates an empty in-memory approval store.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{requests: make(map[string]*ApprovalRequest)}
}

func (s *MemoryApprovalStore) Save(req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryApprovalStore) Update(req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryApprovalStore) List(status ApprovalStatus) ([]*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ApprovalRequest
	for _, req := range s.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	sortApprovals(out)
	return out, nil
}
