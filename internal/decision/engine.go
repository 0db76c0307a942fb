// Package decision implements the hybrid tool-decision engine: for each
// tool invocation it chooses between the tool's builtin implementation and
// LLM function calling, executes the choice, and keeps per-tool statistics.
package decision

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/tool"
	"github.com/weft-ai/weft/pkg/models"
)

// Strategy selects how the engine picks an execution path.
type Strategy string

const (
	// StrategyPreferBuiltin always uses the builtin path when one exists.
	StrategyPreferBuiltin Strategy = "prefer_builtin"
	// StrategyPreferFunctionCalling always uses the function-calling path.
	StrategyPreferFunctionCalling Strategy = "prefer_function_calling"
	// StrategyIntelligentAuto scores both paths per invocation.
	StrategyIntelligentAuto Strategy = "intelligent_auto"
)

// Preference is a user hint applied to the heuristic scores.
type Preference string

const (
	// PreferenceNone applies no hint.
	PreferenceNone Preference = ""
	// PreferenceSpeed multiplies the builtin score by 1.2.
	PreferenceSpeed Preference = "speed"
	// PreferenceIntelligence multiplies the function-calling score by 1.2.
	PreferenceIntelligence Preference = "intelligence"
)

// tieBreakMargin is the score gap under which the LLM tie-break runs.
const tieBreakMargin = 0.3

// preferenceBoost is the multiplier a preference hint applies.
const preferenceBoost = 1.2

// successRateSignal is the historical builtin success rate above which the
// builtin path earns its history bonus.
const successRateSignal = 0.8

// complexParamCount is the parameter count above which a schema counts as
// complex.
const complexParamCount = 5

// Recorder receives an audit record for every tool execution. The memory
// manager satisfies this.
type Recorder interface {
	RecordExecution(rec models.ExecutionRecord)
}

// Config holds the engine's strategy settings.
type Config struct {
	// Strategy selects the decision mode. Empty means intelligent_auto.
	Strategy Strategy `mapstructure:"strategy"`
	// Preference is the optional speed/intelligence hint.
	Preference Preference `mapstructure:"preference"`
}

// Engine decides and executes tool invocations.
type Engine struct {
	tools    *tool.Registry
	provider llm.Provider
	cfg      Config
	stats    *statsTable
	debugLog func(format string, args ...any)
}

// NewEngine creates an engine over the given tool registry and provider.
// The provider is used for the function-calling path and the decision
// tie-break; a nil provider disables both (builtin-only operation).
func NewEngine(tools *tool.Registry, provider llm.Provider, cfg Config) *Engine {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIntelligentAuto
	}
	return &Engine{
		tools:    tools,
		provider: provider,
		cfg:      cfg,
		stats:    newStatsTable(),
		debugLog: func(format string, args ...any) {},
	}
}

// SetDebugLog sets the debug logging function.
func (e *Engine) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		e.debugLog = fn
	}
}

// Stats returns a copy of the running statistics for a tool.
func (e *Engine) Stats(toolID string) Stats {
	return e.stats.get(toolID)
}

// decisionOutcome is the resolved choice for one invocation.
type decisionOutcome struct {
	method               models.ExecutionMethod
	confidence           float64
	builtinScore         float64
	functionCallingScore float64
	source               string // "forced", "heuristic", "llm_tiebreak"
}

// Execute decides the execution path for the tool, runs it, and records
// statistics. Failures are captured in the returned ToolResult; the engine
// never panics or aborts the caller on a tool error.
func (e *Engine) Execute(ctx context.Context, toolID string, params map[string]any, rec Recorder) *models.ToolResult {
	spec := e.tools.Get(toolID)
	if spec == nil {
		return &models.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("configuration: tool %s is not registered", toolID),
		}
	}

	outcome, err := e.decide(ctx, spec)
	if err != nil {
		return &models.ToolResult{
			Success: false,
			Error:   err.Error(),
		}
	}

	e.debugLog("[decision] tool=%s method=%s confidence=%.2f source=%s (builtin=%.2f fc=%.2f)",
		toolID, outcome.method, outcome.confidence, outcome.source,
		outcome.builtinScore, outcome.functionCallingScore)

	start := time.Now()
	var result *models.ToolResult
	switch outcome.method {
	case models.MethodBuiltin:
		result = e.executeBuiltin(ctx, spec, params)
	default:
		result = e.executeFunctionCalling(ctx, spec, params)
	}
	result.ExecutionTime = time.Since(start)
	result.ExecutionMethod = outcome.method
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata["chosenStrategy"] = string(outcome.method)
	result.Metadata["confidenceLevel"] = outcome.confidence
	result.Metadata["builtinScore"] = outcome.builtinScore
	result.Metadata["functionCallingScore"] = outcome.functionCallingScore
	result.Metadata["decisionSource"] = outcome.source

	e.stats.record(toolID, outcome.method, result.Success, result.ExecutionTime)

	if rec != nil {
		rec.RecordExecution(models.ExecutionRecord{
			ToolID:     toolID,
			Parameters: params,
			Result:     result.Data,
			Timestamp:  time.Now(),
			Duration:   result.ExecutionTime,
			Success:    result.Success,
		})
	}

	return result
}

// decide resolves the execution path using the three decision tiers:
// forced strategy, weighted heuristic, and the low-confidence LLM tie-break.
func (e *Engine) decide(ctx context.Context, spec *tool.Spec) (decisionOutcome, error) {
	// Tier 1: forced strategy.
	switch e.cfg.Strategy {
	case StrategyPreferBuiltin:
		if spec.HasBuiltin() {
			return decisionOutcome{method: models.MethodBuiltin, confidence: 1.0, builtinScore: 1.0, source: "forced"}, nil
		}
		return decisionOutcome{}, fmt.Errorf("configuration: strategy %s but tool %s has no builtin implementation", e.cfg.Strategy, spec.ID)
	case StrategyPreferFunctionCalling:
		if e.provider != nil {
			return decisionOutcome{method: models.MethodFunctionCalling, confidence: 1.0, functionCallingScore: 1.0, source: "forced"}, nil
		}
		return decisionOutcome{}, fmt.Errorf("configuration: strategy %s but no LLM provider is configured", e.cfg.Strategy)
	}

	// Tier 2: weighted heuristic scoring.
	builtin, fc := e.scoreSpec(spec)

	// Preference hints apply before normalization.
	switch e.cfg.Preference {
	case PreferenceSpeed:
		builtin *= preferenceBoost
	case PreferenceIntelligence:
		fc *= preferenceBoost
	}

	if sum := builtin + fc; sum > 0 {
		builtin /= sum
		fc /= sum
	}

	outcome := decisionOutcome{
		builtinScore:         builtin,
		functionCallingScore: fc,
		source:               "heuristic",
	}
	if builtin >= fc {
		outcome.method = models.MethodBuiltin
		outcome.confidence = builtin
	} else {
		outcome.method = models.MethodFunctionCalling
		outcome.confidence = fc
	}

	// Degenerate cases: a pick the engine cannot execute flips to the
	// other path when that path is viable.
	if outcome.method == models.MethodBuiltin && !spec.HasBuiltin() {
		outcome.method = models.MethodFunctionCalling
		outcome.confidence = fc
	}
	if outcome.method == models.MethodFunctionCalling && e.provider == nil {
		if !spec.HasBuiltin() {
			return decisionOutcome{}, fmt.Errorf("configuration: tool %s has no builtin and no provider is configured", spec.ID)
		}
		outcome.method = models.MethodBuiltin
		outcome.confidence = builtin
		return outcome, nil
	}

	// Tier 3: low-confidence tie-break. Provider failure is non-fatal;
	// the statistical decision stands.
	if math.Abs(builtin-fc) < tieBreakMargin && e.provider != nil {
		if method, ok := e.tieBreak(ctx, spec, builtin, fc); ok {
			if method == models.MethodBuiltin && !spec.HasBuiltin() {
				return outcome, nil
			}
			outcome.method = method
			outcome.source = "llm_tiebreak"
			if method == models.MethodBuiltin {
				outcome.confidence = builtin
			} else {
				outcome.confidence = fc
			}
		}
	}

	return outcome, nil
}

// scoreSpec accumulates the independent heuristic signals for both paths.
func (e *Engine) scoreSpec(spec *tool.Spec) (builtin, fc float64) {
	if spec.HasBuiltin() {
		builtin += 0.4
	} else {
		fc += 0.6
	}
	if isRealtimeCategory(spec.Category) {
		builtin += 0.5
	}
	if spec.RequiresRealtime {
		builtin += 0.3
	}
	stats := e.stats.get(spec.ID)
	if stats.BuiltinExecutions > 0 && stats.BuiltinSuccessRate > successRateSignal {
		builtin += 0.2
	}

	if hasComplexParameters(spec) {
		fc += 0.3
	}
	if needsLanguageProcessing(spec) {
		fc += 0.4
	}
	if isContextAware(spec) {
		fc += 0.3
	}
	return builtin, fc
}

// tieBreak asks the provider to arbitrate a close call. The verdict must
// contain "builtin" or "function_calling" to count.
func (e *Engine) tieBreak(ctx context.Context, spec *tool.Spec, builtin, fc float64) (models.ExecutionMethod, bool) {
	stats := e.stats.get(spec.ID)
	prompt := fmt.Sprintf(
		"Choose the execution path for a tool invocation. Answer with exactly one word: builtin or function_calling.\n\n"+
			"Tool: %s\nCategory: %s\nDescription: %s\n"+
			"Builtin available: %v\nBuiltin score: %.2f\nFunction-calling score: %.2f\n"+
			"History: %d builtin runs (%.0f%% success), %d function-calling runs (%.0f%% success)\n",
		spec.ID, spec.Category, spec.Description,
		spec.HasBuiltin(), builtin, fc,
		stats.BuiltinExecutions, stats.BuiltinSuccessRate*100,
		stats.FunctionCallingExecutions, stats.FunctionCallingSuccessRate*100,
	)

	resp, err := e.provider.Call(ctx, llm.Request{
		Messages:    []models.Message{{Role: models.RoleUser, Content: prompt}},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		e.debugLog("[decision] tie-break call failed, keeping statistical pick: %v", err)
		return "", false
	}

	verdict := strings.ToLower(resp.Content)
	switch {
	case strings.Contains(verdict, "function_calling"):
		return models.MethodFunctionCalling, true
	case strings.Contains(verdict, "builtin"):
		return models.MethodBuiltin, true
	default:
		e.debugLog("[decision] tie-break verdict unrecognized: %q", resp.Content)
		return "", false
	}
}

// isRealtimeCategory reports whether a category implies live execution.
func isRealtimeCategory(category string) bool {
	switch strings.ToLower(category) {
	case "terminal", "shell", "realtime", "process":
		return true
	default:
		return false
	}
}

// hasComplexParameters reports whether the schema has object/array typed
// parameters or more than five parameters total.
func hasComplexParameters(spec *tool.Spec) bool {
	if len(spec.Parameters) > complexParamCount {
		return true
	}
	for _, p := range spec.Parameters {
		if p.Type == "object" || p.Type == "array" {
			return true
		}
	}
	return false
}

// nlpKeywords are the category/description markers for language-heavy tools.
var nlpKeywords = []string{"language", "text", "summar", "translat", "semantic", "nlp", "natural"}

// needsLanguageProcessing infers a natural-language-processing requirement
// from the tool's category and description.
func needsLanguageProcessing(spec *tool.Spec) bool {
	haystack := strings.ToLower(spec.Category + " " + spec.Description)
	for _, kw := range nlpKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// isContextAware reports whether the tool signals context-aware processing:
// non-empty metadata or a parameter whose name mentions context.
func isContextAware(spec *tool.Spec) bool {
	if len(spec.Metadata) > 0 {
		return true
	}
	for name := range spec.Parameters {
		if strings.Contains(strings.ToLower(name), "context") {
			return true
		}
	}
	return false
}
