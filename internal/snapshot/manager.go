package snapshot

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weft-ai/weft/internal/memory"
	"github.com/weft-ai/weft/internal/task"
	"github.com/weft-ai/weft/pkg/models"
)

// compressionMarker separates the head and tail of a merged chat history.
const compressionMarker = "[Previous messages compressed]"

// Config holds the snapshot retention knobs.
type Config struct {
	// MaxSnapshots caps the number of snapshots retained per task.
	MaxSnapshots int `mapstructure:"max_snapshots"`
	// CompressionThreshold is the per-task count at which the older half
	// of the snapshot list is merged into one compressed snapshot.
	CompressionThreshold int `mapstructure:"compression_threshold"`
	// AutoInterval is the period of the automatic snapshot timer.
	AutoInterval time.Duration `mapstructure:"auto_interval"`
}

// DefaultConfig returns the default snapshot configuration.
func DefaultConfig() Config {
	return Config{
		MaxSnapshots:         10,
		CompressionThreshold: 8,
		AutoInterval:         5 * time.Minute,
	}
}

// Manager creates, retains, and restores task snapshots. Snapshots live in
// memory, optionally written through to a Store. Snapshot failures are never
// fatal to a run.
type Manager struct {
	cfg   Config
	store *Store

	mu     sync.Mutex
	byTask map[string][]*TaskSnapshot

	debugLog func(format string, args ...any)
}

// NewManager creates a snapshot manager. The store may be nil, in which
// case snapshots are kept in memory only.
func NewManager(cfg Config, store *Store) *Manager {
	def := DefaultConfig()
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = def.MaxSnapshots
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = def.CompressionThreshold
	}
	if cfg.AutoInterval <= 0 {
		cfg.AutoInterval = def.AutoInterval
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		byTask: make(map[string][]*TaskSnapshot),
	}
}

// SetDebugLog installs a debug logging function.
func (m *Manager) SetDebugLog(fn func(format string, args ...any)) {
	m.debugLog = fn
}

func (m *Manager) debugf(format string, args ...any) {
	if m.debugLog != nil {
		m.debugLog(format, args...)
	}
}

// Create captures the current state of a run into a new immutable snapshot
// and applies the retention policy for the task.
func (m *Manager) Create(taskCtx *task.Context, agentCtxs []*task.AgentContext, workflow *models.WorkflowDefinition, state ExecutionState, reason string) (*TaskSnapshot, error) {
	if taskCtx == nil {
		return nil, fmt.Errorf("create snapshot: task context is nil")
	}

	mem := taskCtx.Memory()
	snap := &TaskSnapshot{
		ID:        uuid.NewString(),
		TaskID:    taskCtx.TaskID(),
		Timestamp: time.Now(),
		Workflow:  workflow,
		Variables: taskCtx.Variables(),
		Memory: MemoryState{
			ChatHistory:   mem.History(),
			WorkingMemory: mem.Working(),
		},
		ExecutionState: state,
	}

	errorCount := 0
	for _, actx := range agentCtxs {
		if actx == nil {
			continue
		}
		as := AgentSnapshot{
			AgentID:           actx.AgentID(),
			ExecutionStatus:   actx.Status(),
			Variables:         actx.Variables(),
			ConsecutiveErrors: actx.ConsecutiveErrors(),
			LastError:         actx.LastError(),
			History:           actx.History(),
		}
		if workflow != nil {
			if agent := workflow.Agent(actx.AgentID()); agent != nil {
				as.WorkflowStatus = agent.Status
			}
		}
		errorCount += as.ConsecutiveErrors
		snap.AgentSnapshots = append(snap.AgentSnapshots, as)
	}

	snap.Metadata = Metadata{
		Reason:       reason,
		TotalTokens:  mem.TokenTotal(),
		MessageCount: mem.MessageCount(),
		AgentCount:   len(snap.AgentSnapshots),
		ErrorCount:   errorCount,
	}

	m.mu.Lock()
	list := append(m.byTask[snap.TaskID], snap)
	if len(list) >= m.cfg.CompressionThreshold {
		list = m.compress(list)
	}
	for len(list) > m.cfg.MaxSnapshots {
		m.debugf("snapshot %s dropped by retention cap", list[0].ID)
		list = list[1:]
	}
	m.byTask[snap.TaskID] = list
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(snap); err != nil {
			log.Printf("[snapshot] persist %s failed: %v", snap.ID, err)
		}
	}

	m.debugf("created snapshot %s for task %s (%s)", snap.ID, snap.TaskID, reason)
	return snap, nil
}

// compress merges the older half of the list into a single synthetic
// snapshot so long-running tasks keep a bounded snapshot footprint without
// losing the oldest context entirely.
func (m *Manager) compress(list []*TaskSnapshot) []*TaskSnapshot {
	keep := len(list) / 2
	older := list[:len(list)-keep]
	newest := list[len(list)-keep:]
	if len(older) < 2 {
		return list
	}

	merged := m.merge(older)
	out := make([]*TaskSnapshot, 0, keep+1)
	out = append(out, merged)
	out = append(out, newest...)
	m.debugf("compressed %d snapshots into %s", len(older), merged.ID)
	return out
}

// merge collapses a run of snapshots into one. The merged chat history
// keeps the first two messages of the oldest capture and the last two of
// the newest, separated by a marker message; token and message counts are
// summed so the compression remains visible in the metadata.
func (m *Manager) merge(older []*TaskSnapshot) *TaskSnapshot {
	oldest := older[0]
	newest := older[len(older)-1]

	var history []models.Message
	head := oldest.Memory.ChatHistory
	if len(head) > 2 {
		head = head[:2]
	}
	history = append(history, head...)
	history = append(history, models.Message{
		Role:    models.RoleSystem,
		Content: compressionMarker,
	})
	tail := newest.Memory.ChatHistory
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	history = append(history, tail...)

	meta := Metadata{
		Reason:     "compressed",
		AgentCount: newest.Metadata.AgentCount,
		ErrorCount: newest.Metadata.ErrorCount,
	}
	for _, s := range older {
		meta.TotalTokens += s.Metadata.TotalTokens
		meta.MessageCount += s.Metadata.MessageCount
	}

	return &TaskSnapshot{
		ID:        uuid.NewString(),
		TaskID:    newest.TaskID,
		Timestamp: newest.Timestamp,
		Workflow:  newest.Workflow,
		Variables: newest.Variables,
		Memory: MemoryState{
			ChatHistory:   history,
			WorkingMemory: newest.Memory.WorkingMemory,
		},
		AgentSnapshots: newest.AgentSnapshots,
		ExecutionState: newest.ExecutionState,
		Metadata:       meta,
	}
}

// List returns the retained snapshots for a task, oldest first. When the
// task has no in-memory snapshots the persistent store is consulted.
func (m *Manager) List(taskID string) ([]*TaskSnapshot, error) {
	m.mu.Lock()
	list := m.byTask[taskID]
	out := make([]*TaskSnapshot, len(list))
	copy(out, list)
	m.mu.Unlock()

	if len(out) == 0 && m.store != nil {
		return m.store.ListByTask(taskID)
	}
	return out, nil
}

// Get resolves a snapshot by id, consulting the persistent store when it
// is not held in memory.
func (m *Manager) Get(snapshotID string) (*TaskSnapshot, error) {
	m.mu.Lock()
	for _, list := range m.byTask {
		for _, s := range list {
			if s.ID == snapshotID {
				m.mu.Unlock()
				return s, nil
			}
		}
	}
	m.mu.Unlock()

	if m.store != nil {
		return m.store.Get(snapshotID)
	}
	return nil, fmt.Errorf("snapshot %s not found", snapshotID)
}

// Restore rebuilds a task context and its agent contexts from a snapshot.
// The caller supplies a fresh memory manager (carrying its provider and
// configuration); its contents are replaced by the snapshot's. Agent
// snapshots that no longer match a workflow agent are skipped.
func (m *Manager) Restore(snapshotID string, mem *memory.Manager) (*task.Context, []*task.AgentContext, error) {
	snap, err := m.Get(snapshotID)
	if err != nil {
		return nil, nil, err
	}
	if mem == nil {
		return nil, nil, fmt.Errorf("restore snapshot %s: memory manager is nil", snapshotID)
	}

	mem.Restore(snap.Memory.ChatHistory, snap.Memory.WorkingMemory)
	mem.SetWorkflow(snap.Workflow)

	taskCtx := task.NewContext(snap.TaskID, snap.Variables, mem)

	var agentCtxs []*task.AgentContext
	for _, as := range snap.AgentSnapshots {
		var agent *models.WorkflowAgent
		if snap.Workflow != nil {
			agent = snap.Workflow.Agent(as.AgentID)
		}
		if agent == nil {
			log.Printf("[snapshot] restore %s: agent %s no longer in workflow, skipping", snapshotID, as.AgentID)
			continue
		}
		agent.Status = as.WorkflowStatus

		actx := task.NewAgentContext(as.AgentID, taskCtx)
		actx.RestoreState(as.ExecutionStatus, as.ConsecutiveErrors, as.LastError, as.Variables, as.History)
		agentCtxs = append(agentCtxs, actx)
	}

	m.debugf("restored snapshot %s for task %s (%d agents)", snap.ID, snap.TaskID, len(agentCtxs))
	return taskCtx, agentCtxs, nil
}

// StartAuto runs the capture function on the configured interval until the
// returned stop function is called. Capture failures are logged and the
// timer keeps running.
func (m *Manager) StartAuto(capture func() error) (stop func()) {
	ticker := time.NewTicker(m.cfg.AutoInterval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := capture(); err != nil {
					log.Printf("[snapshot] auto snapshot failed: %v", err)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
