// Package memory maintains a task's chat history and working memory under
// a token budget, compacting older history through the LLM provider as the
// budget fills.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/pkg/models"
)

// Config holds the memory budget knobs.
type Config struct {
	// MaxTokens is the chat history token budget.
	MaxTokens int `mapstructure:"max_tokens"`
	// MaxMessages caps the number of messages kept after compaction.
	MaxMessages int `mapstructure:"max_messages"`
	// CompressionThreshold is the message count that triggers compaction.
	CompressionThreshold int `mapstructure:"compression_threshold"`
	// CompressionTriggerRatio scales MaxTokens for the compaction trigger.
	CompressionTriggerRatio float64 `mapstructure:"compression_trigger_ratio"`
	// CompressionTargetCount is how many recent messages survive compaction.
	CompressionTargetCount int `mapstructure:"compression_target_count"`
	// TruncateThreshold is the per-message character limit; longer messages
	// are truncated before entering history.
	TruncateThreshold int `mapstructure:"truncate_threshold"`
	// MaxHistoryRecords caps the tool-call audit trail (FIFO eviction).
	MaxHistoryRecords int `mapstructure:"max_history_records"`
}

// DefaultConfig returns the default memory configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:               8000,
		MaxMessages:             50,
		CompressionThreshold:    30,
		CompressionTriggerRatio: 0.8,
		CompressionTargetCount:  10,
		TruncateThreshold:       5000,
		MaxHistoryRecords:       100,
	}
}

// trimTargetRatio is where the token-trim pass stops relative to MaxTokens.
const trimTargetRatio = 0.7

// promptAdjustInterval throttles the system-prompt adjustment hook.
const promptAdjustInterval = 30 * time.Second

// truncationMarker separates head and tail of a truncated message.
const truncationMarker = "\n...[truncated]...\n"

// Manager owns one task's chat history, working memory, and tool-call
// audit trail. All methods are safe for concurrent use.
type Manager struct {
	mu  sync.Mutex
	cfg Config

	// provider performs compaction summaries. Nil disables LLM compaction;
	// the size-based passes still run.
	provider llm.Provider
	est      *Estimator

	messages   []models.Message
	tokenTotal int

	working map[string]any
	records []models.ExecutionRecord

	// workflow, when set, enriches the compaction summary prompt with the
	// agent roster and task variables.
	workflow *models.WorkflowDefinition

	lastPromptAdjust time.Time
}

// NewManager creates a Manager with the given configuration and provider.
// A nil provider disables LLM-driven compaction.
func NewManager(cfg Config, provider llm.Provider) *Manager {
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = def.CompressionThreshold
	}
	if cfg.CompressionTriggerRatio <= 0 || cfg.CompressionTriggerRatio > 1 {
		cfg.CompressionTriggerRatio = def.CompressionTriggerRatio
	}
	if cfg.CompressionTargetCount <= 0 {
		cfg.CompressionTargetCount = def.CompressionTargetCount
	}
	if cfg.TruncateThreshold <= 0 {
		cfg.TruncateThreshold = def.TruncateThreshold
	}
	if cfg.MaxHistoryRecords <= 0 {
		cfg.MaxHistoryRecords = def.MaxHistoryRecords
	}

	return &Manager{
		cfg:      cfg,
		provider: provider,
		est:      NewEstimator(0),
		working:  make(map[string]any),
	}
}

// SetWorkflow attaches the workflow definition used to enrich compaction
// summary prompts.
func (m *Manager) SetWorkflow(w *models.WorkflowDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflow = w
}

// Append adds a message to the chat history and runs the capacity passes.
// Oversized messages are truncated before entering history. Compaction is
// best-effort: a provider failure is logged and swallowed.
func (m *Manager) Append(ctx context.Context, msg models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg.Content = m.truncateOversized(msg.Content)
	m.messages = append(m.messages, msg)
	m.tokenTotal += m.est.Estimate(msg.Content)

	m.enforceCapacity(ctx)
}

// History returns a copy of the chat history.
func (m *Manager) History() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MessageCount returns the number of messages in history.
func (m *Manager) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// TokenTotal returns the running token estimate for the history.
func (m *Manager) TokenTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenTotal
}

// SetWorking stores a working-memory entry.
func (m *Manager) SetWorking(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.working[key] = value
}

// GetWorking retrieves a working-memory entry.
func (m *Manager) GetWorking(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.working[key]
	return v, ok
}

// Working returns a copy of the working-memory map.
func (m *Manager) Working() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any, len(m.working))
	for k, v := range m.working {
		out[k] = v
	}
	return out
}

// RecordExecution appends a tool-call record to the audit trail, evicting
// the oldest record once the cap is exceeded.
func (m *Manager) RecordExecution(rec models.ExecutionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if len(m.records) > m.cfg.MaxHistoryRecords {
		excess := len(m.records) - m.cfg.MaxHistoryRecords
		m.records = append([]models.ExecutionRecord(nil), m.records[excess:]...)
	}
}

// Records returns a copy of the tool-call audit trail.
func (m *Manager) Records() []models.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ExecutionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Restore replaces the chat history and working memory wholesale. Used by
// snapshot recovery; the capacity passes do not run here.
func (m *Manager) Restore(history []models.Message, working map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append([]models.Message(nil), history...)
	m.tokenTotal = 0
	for _, msg := range m.messages {
		m.tokenTotal += m.est.Estimate(msg.Content)
	}

	m.working = make(map[string]any, len(working))
	for k, v := range working {
		m.working[k] = v
	}
}

// AdjustSystemPrompt is an extension point for deriving a dynamic system
// prompt adjustment from the latest user message. It is throttled to one
// invocation per 30 seconds and currently performs no adjustment.
func (m *Manager) AdjustSystemPrompt(latestUserMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastPromptAdjust) < promptAdjustInterval {
		return
	}
	m.lastPromptAdjust = time.Now()
	// Extension point. Deriving an adjustment from latestUserMessage is
	// intentionally left to embedders.
	_ = latestUserMessage
}

// truncateOversized clips a message body that exceeds the per-message
// threshold, keeping the head and tail around a marker. The threshold
// counts runes, so multi-byte text is never split mid-rune.
func (m *Manager) truncateOversized(content string) string {
	limit := m.cfg.TruncateThreshold
	if len(content) <= limit {
		// Byte length bounds rune count.
		return content
	}
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	headLen := limit / 2
	tailLen := limit - headLen
	return string(runes[:headLen]) + truncationMarker + string(runes[len(runes)-tailLen:])
}

// enforceCapacity runs the compaction pipeline. Caller must hold m.mu.
//
// Pass order: LLM summarization, then message-count splice, then
// token-budget trim, each followed by the leading-role fix-up.
func (m *Manager) enforceCapacity(ctx context.Context) {
	trigger := float64(m.cfg.MaxTokens) * m.cfg.CompressionTriggerRatio
	if float64(m.tokenTotal) > trigger || len(m.messages) > m.cfg.CompressionThreshold {
		m.compactWithLLM(ctx)
	}

	if len(m.messages) > m.cfg.MaxMessages {
		m.spliceOldest()
	}

	if m.tokenTotal > m.cfg.MaxTokens {
		m.trimToTokenTarget()
	}

	m.fixLeadingRole()
}

// compactWithLLM replaces everything but the most recent messages with a
// single system-role summary. Best-effort: failures leave history intact.
func (m *Manager) compactWithLLM(ctx context.Context) {
	if m.provider == nil {
		return
	}
	keep := m.cfg.CompressionTargetCount
	if len(m.messages) <= keep {
		return
	}

	older := m.messages[:len(m.messages)-keep]
	tail := m.messages[len(m.messages)-keep:]

	summary, err := m.summarize(ctx, older)
	if err != nil {
		log.Printf("[memory] compaction summarization failed, keeping full history: %v", err)
		return
	}

	compacted := make([]models.Message, 0, keep+1)
	compacted = append(compacted, models.Message{
		Role:    models.RoleSystem,
		Content: "Task summary of earlier conversation:\n" + summary,
	})
	compacted = append(compacted, tail...)

	m.messages = compacted
	m.recountTokens()
}

// summarize performs the single LLM summarization call for compaction.
func (m *Manager) summarize(ctx context.Context, older []models.Message) (string, error) {
	var b strings.Builder
	b.WriteString("Summarize the following conversation history for an autonomous task run. ")
	b.WriteString("Preserve decisions, tool outcomes, open problems, and anything a later agent needs.\n\n")

	if m.workflow != nil {
		b.WriteString("Agents in this workflow:\n")
		for _, a := range m.workflow.Agents {
			fmt.Fprintf(&b, "- %s (%s): %s\n", a.ID, a.Type, a.Name)
		}
		if len(m.workflow.Variables) > 0 {
			b.WriteString("Task variables:\n")
			keys := make([]string, 0, len(m.workflow.Variables))
			for k := range m.workflow.Variables {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s: %v\n", k, m.workflow.Variables[k])
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Conversation:\n")
	for _, msg := range older {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}

	resp, err := m.provider.Call(ctx, llm.Request{
		Messages: []models.Message{{Role: models.RoleUser, Content: b.String()}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// spliceOldest drops the oldest excess messages in one pass, preserving
// the message at index 0 (assumed to be the system prompt).
func (m *Manager) spliceOldest() {
	excess := len(m.messages) - m.cfg.MaxMessages
	if excess <= 0 {
		return
	}
	head := m.messages[0]
	rest := m.messages[1:]
	if excess > len(rest) {
		excess = len(rest)
	}
	m.messages = append([]models.Message{head}, rest[excess:]...)
	m.recountTokens()
}

// trimToTokenTarget removes oldest non-head messages one at a time until
// the running total drops to the trim target.
func (m *Manager) trimToTokenTarget() {
	target := int(float64(m.cfg.MaxTokens) * trimTargetRatio)
	for m.tokenTotal > target && len(m.messages) > 1 {
		freed := m.est.Estimate(m.messages[1].Content)
		m.messages = append(m.messages[:1], m.messages[2:]...)
		m.tokenTotal -= freed
	}
}

// fixLeadingRole drops a leading message that is neither system nor user
// role. Compaction can leave an orphaned assistant/tool message first,
// which some providers reject.
func (m *Manager) fixLeadingRole() {
	if len(m.messages) == 0 {
		return
	}
	head := m.messages[0]
	if head.Role == models.RoleSystem || head.Role == models.RoleUser {
		return
	}
	m.tokenTotal -= m.est.Estimate(head.Content)
	m.messages = m.messages[1:]
}

// recountTokens recomputes the running token total from scratch.
// Caller must hold m.mu.
func (m *Manager) recountTokens() {
	total := 0
	for _, msg := range m.messages {
		total += m.est.Estimate(msg.Content)
	}
	m.tokenTotal = total
}
