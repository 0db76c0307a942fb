package decision

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/weft-ai/weft/internal/llm"
	"github.com/weft-ai/weft/internal/tool"
	"github.com/weft-ai/weft/pkg/models"
)

// fakeProvider serves canned content and records the requests it sees.
type fakeProvider struct {
	content  string
	err      error
	requests []llm.Request
}

func (f *fakeProvider) Call(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req llm.Request, _ func(string)) (*llm.Response, error) {
	return f.Call(ctx, req)
}

func echoBuiltin(_ context.Context, params map[string]any) (any, error) {
	return params["text"], nil
}

func registryWith(t *testing.T, specs ...*tool.Spec) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	for _, s := range specs {
		if err := reg.Register(s); err != nil {
			t.Fatalf("Register(%s): %v", s.ID, err)
		}
	}
	return reg
}

func TestForcedBuiltinStrategy(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "echo", Builtin: echoBuiltin})
	e := NewEngine(reg, nil, Config{Strategy: StrategyPreferBuiltin})

	// Repeated invocations are deterministic.
	for i := 0; i < 3; i++ {
		result := e.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, nil)
		if !result.Success {
			t.Fatalf("result = %+v", result)
		}
		if result.Metadata["chosenStrategy"] != "builtin" {
			t.Errorf("chosenStrategy = %v, want builtin", result.Metadata["chosenStrategy"])
		}
		if result.Metadata["confidenceLevel"] != 1.0 {
			t.Errorf("confidenceLevel = %v, want 1.0", result.Metadata["confidenceLevel"])
		}
		if result.Metadata["decisionSource"] != "forced" {
			t.Errorf("decisionSource = %v, want forced", result.Metadata["decisionSource"])
		}
	}
}

func TestForcedBuiltinWithoutImplementation(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "remote"})
	e := NewEngine(reg, &fakeProvider{}, Config{Strategy: StrategyPreferBuiltin})

	result := e.Execute(context.Background(), "remote", nil, nil)
	if result.Success {
		t.Fatal("expected a configuration failure")
	}
	if !strings.Contains(result.Error, "configuration") {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestForcedFunctionCallingWithoutProvider(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "echo", Builtin: echoBuiltin})
	e := NewEngine(reg, nil, Config{Strategy: StrategyPreferFunctionCalling})

	result := e.Execute(context.Background(), "echo", nil, nil)
	if result.Success {
		t.Fatal("expected a configuration failure")
	}
	if !strings.Contains(result.Error, "configuration") {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestUnregisteredTool(t *testing.T) {
	e := NewEngine(tool.NewRegistry(), nil, Config{})
	result := e.Execute(context.Background(), "ghost", nil, nil)
	if result.Success {
		t.Fatal("expected failure for unregistered tool")
	}
	if !strings.Contains(result.Error, "not registered") {
		t.Errorf("Error = %q", result.Error)
	}
}

func TestHeuristicScores(t *testing.T) {
	tests := []struct {
		name        string
		spec        *tool.Spec
		wantBuiltin float64
		wantFC      float64
	}{
		{
			name:        "plain builtin tool",
			spec:        &tool.Spec{ID: "a", Builtin: echoBuiltin},
			wantBuiltin: 0.4,
			wantFC:      0,
		},
		{
			name:        "realtime terminal tool",
			spec:        &tool.Spec{ID: "b", Category: "terminal", RequiresRealtime: true, Builtin: echoBuiltin},
			wantBuiltin: 1.2, // 0.4 + 0.5 + 0.3
			wantFC:      0,
		},
		{
			name:        "no builtin",
			spec:        &tool.Spec{ID: "c"},
			wantBuiltin: 0,
			wantFC:      0.6,
		},
		{
			name: "language-heavy complex tool",
			spec: &tool.Spec{
				ID:          "d",
				Description: "Summarize natural language text",
				Parameters:  map[string]tool.ParamSpec{"doc": {Type: "object"}},
				Metadata:    map[string]any{"domain": "support"},
				Builtin:     echoBuiltin,
			},
			wantBuiltin: 0.4,
			wantFC:      1.0, // 0.3 complex + 0.4 nlp + 0.3 context-aware
		},
	}

	e := NewEngine(tool.NewRegistry(), nil, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builtin, fc := e.scoreSpec(tt.spec)
			if math.Abs(builtin-tt.wantBuiltin) > 1e-9 {
				t.Errorf("builtin score = %v, want %v", builtin, tt.wantBuiltin)
			}
			if math.Abs(fc-tt.wantFC) > 1e-9 {
				t.Errorf("function-calling score = %v, want %v", fc, tt.wantFC)
			}
		})
	}
}

func TestHeuristicScoresNormalized(t *testing.T) {
	reg := registryWith(t, &tool.Spec{
		ID:       "rt",
		Category: "shell",
		Builtin:  echoBuiltin,
	})
	e := NewEngine(reg, nil, Config{})

	result := e.Execute(context.Background(), "rt", map[string]any{"text": "x"}, nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	b := result.Metadata["builtinScore"].(float64)
	fc := result.Metadata["functionCallingScore"].(float64)
	if math.Abs(b+fc-1.0) > 1e-9 {
		t.Errorf("scores should normalize to 1, got %v + %v", b, fc)
	}
	if result.Metadata["chosenStrategy"] != "builtin" {
		t.Errorf("chosenStrategy = %v, want builtin for a realtime tool", result.Metadata["chosenStrategy"])
	}
}

func TestNoBuiltinNoProviderFails(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "remote"})
	e := NewEngine(reg, nil, Config{})

	result := e.Execute(context.Background(), "remote", nil, nil)
	if result.Success {
		t.Fatal("tool with no builtin and no provider should fail")
	}
}

func TestSpeedPreferenceBiasesBuiltin(t *testing.T) {
	// Balanced spec: builtin 0.4 vs fc 0.3 (complex params). The close
	// scores would invite the tie-break, so no provider is configured and
	// the statistical pick must stand.
	spec := &tool.Spec{
		ID:         "balanced",
		Parameters: map[string]tool.ParamSpec{"payload": {Type: "object"}},
		Builtin:    echoBuiltin,
	}
	reg := registryWith(t, spec)

	e := NewEngine(reg, nil, Config{Preference: PreferenceSpeed})
	result := e.Execute(context.Background(), "balanced", map[string]any{"text": "x"}, nil)
	if result.Metadata["chosenStrategy"] != "builtin" {
		t.Errorf("chosenStrategy = %v, want builtin under speed preference", result.Metadata["chosenStrategy"])
	}

	b := result.Metadata["builtinScore"].(float64)
	// 0.4*1.2 = 0.48 against 0.3 -> 0.615 after normalization.
	if math.Abs(b-0.48/0.78) > 1e-9 {
		t.Errorf("builtinScore = %v, want %v", b, 0.48/0.78)
	}
}

func TestTieBreakConsultsProvider(t *testing.T) {
	spec := &tool.Spec{
		ID:         "close",
		Parameters: map[string]tool.ParamSpec{"payload": {Type: "object"}},
		Builtin:    echoBuiltin,
	}
	reg := registryWith(t, spec)
	provider := &fakeProvider{content: "builtin"}
	e := NewEngine(reg, provider, Config{})

	result := e.Execute(context.Background(), "close", map[string]any{"text": "x"}, nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if result.Metadata["decisionSource"] != "llm_tiebreak" {
		t.Errorf("decisionSource = %v, want llm_tiebreak", result.Metadata["decisionSource"])
	}
	if result.Metadata["chosenStrategy"] != "builtin" {
		t.Errorf("chosenStrategy = %v, want builtin per the verdict", result.Metadata["chosenStrategy"])
	}
	if len(provider.requests) != 1 {
		t.Errorf("provider calls = %d, want 1", len(provider.requests))
	}
}

func TestTieBreakFailureKeepsStatisticalPick(t *testing.T) {
	spec := &tool.Spec{
		ID:         "close",
		Parameters: map[string]tool.ParamSpec{"payload": {Type: "object"}},
		Builtin:    echoBuiltin,
	}
	reg := registryWith(t, spec)
	provider := &fakeProvider{err: errors.New("provider down")}
	e := NewEngine(reg, provider, Config{})

	result := e.Execute(context.Background(), "close", map[string]any{"text": "x"}, nil)
	if !result.Success {
		t.Fatalf("tie-break failure must not fail the execution: %+v", result)
	}
	if result.Metadata["decisionSource"] != "heuristic" {
		t.Errorf("decisionSource = %v, want heuristic", result.Metadata["decisionSource"])
	}
}

func TestStatsRecorded(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "echo", Category: "terminal", Builtin: echoBuiltin})
	e := NewEngine(reg, nil, Config{})

	for i := 0; i < 4; i++ {
		e.Execute(context.Background(), "echo", map[string]any{"text": "x"}, nil)
	}

	stats := e.Stats("echo")
	if stats.TotalExecutions != 4 || stats.BuiltinExecutions != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.BuiltinSuccessRate != 1.0 {
		t.Errorf("BuiltinSuccessRate = %v, want 1.0", stats.BuiltinSuccessRate)
	}
}

func TestRecorderReceivesAuditRecord(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "echo", Category: "terminal", Builtin: echoBuiltin})
	e := NewEngine(reg, nil, Config{})

	var records []models.ExecutionRecord
	rec := recorderFunc(func(r models.ExecutionRecord) { records = append(records, r) })

	e.Execute(context.Background(), "echo", map[string]any{"text": "hi"}, rec)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].ToolID != "echo" || !records[0].Success {
		t.Errorf("record = %+v", records[0])
	}
}

type recorderFunc func(models.ExecutionRecord)

func (f recorderFunc) RecordExecution(r models.ExecutionRecord) { f(r) }

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		wantOK bool
		check  func(map[string]any) bool
	}{
		{
			name:   "bare object",
			text:   `{"status": "ok"}`,
			wantOK: true,
			check:  func(m map[string]any) bool { return m["status"] == "ok" },
		},
		{
			name:   "object embedded in prose",
			text:   `The result is {"count": 3} as requested.`,
			wantOK: true,
			check:  func(m map[string]any) bool { return m["count"] == float64(3) },
		},
		{
			name:   "braces inside strings are skipped",
			text:   `{"text": "a { stray } brace"}`,
			wantOK: true,
			check:  func(m map[string]any) bool { return m["text"] == "a { stray } brace" },
		},
		{
			name:   "nested object",
			text:   `{"outer": {"inner": true}}`,
			wantOK: true,
			check: func(m map[string]any) bool {
				inner, ok := m["outer"].(map[string]any)
				return ok && inner["inner"] == true
			},
		},
		{name: "no object", text: "just words", wantOK: false},
		{name: "unbalanced", text: `{"broken": `, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !tt.check(got) {
				t.Errorf("extracted object = %v", got)
			}
		})
	}
}

func TestExecuteFunctionCallingParsesContent(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "remote", Description: "remote only"})
	provider := &fakeProvider{content: `{"answer": 42}`}
	e := NewEngine(reg, provider, Config{Strategy: StrategyPreferFunctionCalling})

	result := e.Execute(context.Background(), "remote", map[string]any{"q": "life"}, nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["answer"] != float64(42) {
		t.Errorf("Data = %v", result.Data)
	}
	if result.ExecutionMethod != models.MethodFunctionCalling {
		t.Errorf("ExecutionMethod = %s", result.ExecutionMethod)
	}
}

func TestExecuteFunctionCallingWrapsPlainText(t *testing.T) {
	reg := registryWith(t, &tool.Spec{ID: "remote"})
	provider := &fakeProvider{content: "plain words"}
	e := NewEngine(reg, provider, Config{Strategy: StrategyPreferFunctionCalling})

	result := e.Execute(context.Background(), "remote", nil, nil)
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	data, ok := result.Data.(map[string]any)
	if !ok || data["text"] != "plain words" {
		t.Errorf("Data = %v", result.Data)
	}
}

func TestBuiltinErrorCapturedInResult(t *testing.T) {
	reg := registryWith(t, &tool.Spec{
		ID:       "boom",
		Category: "terminal",
		Builtin: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("device on fire")
		},
	})
	e := NewEngine(reg, nil, Config{})

	result := e.Execute(context.Background(), "boom", nil, nil)
	if result.Success {
		t.Fatal("builtin error should surface as failure")
	}
	if !strings.Contains(result.Error, "device on fire") {
		t.Errorf("Error = %q", result.Error)
	}

	stats := e.Stats("boom")
	if stats.BuiltinExecutions != 1 || stats.BuiltinSuccessRate != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
