package delegate

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/aristath/fleet/internal/config"
)

func roster() []config.WorkerSpec {
	return []config.WorkerSpec{
		{TaskID: "W1", Engine: config.EngineCodex, Role: "Backend/Runtime", Goal: "sqlite history", WorkMethod: "runtime", Enabled: config.Bool(false)},
		{TaskID: "W2", Engine: config.EngineClaudeCLI, Role: "UI/Design", Owner: "claude-ui", WorkMethod: "ui"},
		{TaskID: "W3", Engine: config.EngineCodex, Role: "Validation/QA", WorkMethod: "validate", Enabled: config.Bool(false)},
		{TaskID: "W4", Engine: config.EngineManual, Role: "Ops", Enabled: config.Bool(false)},
		{TaskID: "W5", Engine: config.EngineClaudeCLI, Role: "Reviewer", WorkMethod: "custom", FixedRole: true, Enabled: config.Bool(false)},
	}
}

func TestTextTags(t *testing.T) {
	tests := []struct {
		text string
		want []Tag
	}{
		{"", []Tag{}},
		{"method:ui; method:diagnostics", []Tag{TagSearch, TagUI}},
		{"fix login page layout", []Tag{TagAuth, TagUI}},
		{"method:bogus", []Tag{}},
		{"로그인 화면 정리", []Tag{TagAuth, TagRuntime, TagUI}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := TextTags(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TextTags(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTargetCount(t *testing.T) {
	tests := []struct {
		name             string
		intent           int
		request          string
		lo, hi, eligible int
		want             int
	}{
		{"parallel takes all", 1, "run ALL lanes", 1, 10, 7, 7},
		{"empty intent", 0, "hello", 1, 10, 7, 2},
		{"five tags", 5, "x", 1, 10, 7, 6},
		{"three tags", 3, "x", 1, 10, 7, 4},
		{"one tag", 1, "x", 1, 10, 7, 2},
		{"floor raises", 1, "x", 3, 10, 7, 3},
		{"single eligible", 5, "x", 1, 10, 1, 1},
		{"max caps", 5, "x", 1, 4, 7, 4},
		{"korean parallel", 2, "작업 분배 해줘", 1, 10, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TargetCount(tt.intent, tt.request, tt.lo, tt.hi, tt.eligible); got != tt.want {
				t.Errorf("TargetCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormalizeBounds(t *testing.T) {
	tests := []struct{ lo, hi, wantLo, wantHi int }{
		{0, 0, 1, 1},
		{1, 10, 1, 10},
		{3, 50, 3, 10},
		{8, 4, 4, 4},
		{-2, -5, 1, 1},
	}
	for _, tt := range tests {
		lo, hi := NormalizeBounds(tt.lo, tt.hi)
		if lo != tt.wantLo || hi != tt.wantHi {
			t.Errorf("NormalizeBounds(%d,%d) = %d,%d; want %d,%d", tt.lo, tt.hi, lo, hi, tt.wantLo, tt.wantHi)
		}
	}
}

// TestScoreUIPrefersSecondaryEngine verifies a ui request ranks the
// claude-cli worker above an equally tagged codex worker.
func TestScoreUIPrefersSecondaryEngine(t *testing.T) {
	intent := TextTags("method:ui")
	codex := config.WorkerSpec{TaskID: "A", Engine: config.EngineCodex, WorkMethod: "ui"}
	claude := config.WorkerSpec{TaskID: "B", Engine: config.EngineClaudeCLI, WorkMethod: "ui"}

	if sc, sl := Score(codex, intent), Score(claude, intent); sl <= sc {
		t.Fatalf("claude-cli score %d not above codex score %d", sl, sc)
	}
	if got := Score(codex, intent); got != 21 {
		t.Errorf("codex score = %d, want 21", got)
	}
	if got := Score(claude, intent); got != 29 {
		t.Errorf("claude-cli score = %d, want 29", got)
	}
}

func TestScoreValidateBonus(t *testing.T) {
	intent := []Tag{TagValidate}
	w := config.WorkerSpec{Engine: config.EngineCodex, Role: "Validation/QA", WorkMethod: "validate"}
	if got := Score(w, intent); got != 36 {
		t.Errorf("Score = %d, want 36", got)
	}
	qa := config.WorkerSpec{Engine: config.EngineManual, Role: "qa lead"}
	if got := Score(qa, intent); got != 5 {
		t.Errorf("qa role Score = %d, want 5", got)
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    []string
		wantTgt int
	}{
		{"ui request", Options{Request: "method:ui", Min: 1, Max: 10}, []string{"W2", "W5"}, 2},
		{"review forces fixed role", Options{Request: "rework the validation", Min: 1, Max: 10}, []string{"W3", "W1", "W5"}, 2},
		{"review respects max", Options{Request: "rework the validation", Min: 1, Max: 2}, []string{"W3", "W5"}, 2},
		{"parallel skips manual", Options{Request: "run everything in parallel", Min: 1, Max: 10}, []string{"W1", "W2", "W3", "W5"}, 4},
		{"min floor", Options{Request: "method:ui", Min: 3, Max: 10}, []string{"W2", "W5", "W1"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(roster(), tt.opts)
			if !reflect.DeepEqual(sel.Selected, tt.want) {
				t.Errorf("Selected = %v, want %v (scores %v)", sel.Selected, tt.want, sel.Scores)
			}
			if sel.Target != tt.wantTgt {
				t.Errorf("Target = %d, want %d", sel.Target, tt.wantTgt)
			}
		})
	}
}

func TestSelectEmptyRequestKeepsEnabled(t *testing.T) {
	sel := Select(roster(), Options{Min: 3, Max: 10})
	if !sel.Kept || !reflect.DeepEqual(sel.Selected, []string{"W2"}) {
		t.Fatalf("Select(empty) = %+v", sel)
	}

	// Nothing enabled: fall back to the empty-intent target.
	workers := roster()
	workers[1].Enabled = config.Bool(false)
	sel = Select(workers, Options{Request: "  ", Min: 1, Max: 10})
	if sel.Kept || len(sel.Selected) != 2 {
		t.Fatalf("Select(blank, none enabled) = %+v", sel)
	}
}

func TestSelectNoEligible(t *testing.T) {
	workers := []config.WorkerSpec{{TaskID: "M1", Engine: config.EngineManual}, {TaskID: "M2", Engine: config.EngineClaudeManual}}
	if sel := Select(workers, Options{Request: "all", Min: 1, Max: 10}); len(sel.Selected) != 0 {
		t.Fatalf("Selected = %v, want none", sel.Selected)
	}
}

// TestSelectBounds verifies every non-empty request enables between min and
// max workers, never more than are eligible.
func TestSelectBounds(t *testing.T) {
	requests := []string{
		"method:ui", "all", "rework", "review ui auth login test",
		"connect scan runtime login verify import layout", "zzz",
	}
	for n := 1; n <= config.MaxWorkers; n++ {
		workers := make([]config.WorkerSpec, n)
		eligible := 0
		for i := range workers {
			engine := config.EngineCodex
			switch i % 4 {
			case 1:
				engine = config.EngineClaudeCLI
			case 3:
				engine = config.EngineManual
			}
			if !engine.IsManual() {
				eligible++
			}
			workers[i] = config.WorkerSpec{TaskID: fmt.Sprintf("T%d", i+1), Engine: engine, FixedRole: i%5 == 0}
		}
		for _, req := range requests {
			for lo := 1; lo <= 4; lo++ {
				for hi := 1; hi <= 10; hi += 3 {
					l, h := NormalizeBounds(lo, hi)
					got := len(Select(workers, Options{Request: req, Min: lo, Max: hi}).Selected)
					if got > h || got > eligible || got < min(l, eligible) {
						t.Fatalf("n=%d req=%q min=%d max=%d: selected %d (eligible %d)", n, req, lo, hi, got, eligible)
					}
				}
			}
		}
	}
}

func TestApply(t *testing.T) {
	cfg := &config.OrchestratorConfig{OrchID: "X", Workers: roster()}
	cfg.Workers[0].WorkMethod = "auth"

	out, sel := Apply(cfg, Options{Request: "method:ui", Min: 1, Max: 10, AutoRole: true})

	if cfg.Workers[0].Role != "Backend/Runtime" || cfg.Defaults.PMLastRequest != "" {
		t.Fatal("Apply modified its input")
	}
	if out.Workers[0].Role != "Auth/Login" {
		t.Errorf("auto role = %q, want Auth/Login", out.Workers[0].Role)
	}
	if out.Workers[4].Role != "Reviewer" {
		t.Errorf("fixed role changed to %q", out.Workers[4].Role)
	}

	var enabled []string
	for _, w := range out.Workers {
		if w.IsEnabled() {
			enabled = append(enabled, w.TaskID)
		}
	}
	if want := []string{"W2", "W5"}; !reflect.DeepEqual(enabled, want) {
		t.Errorf("enabled = %v, want %v", enabled, want)
	}
	if !reflect.DeepEqual(out.Defaults.PMLastSelected, enabled) || out.Defaults.PMLastSelectedCount != 2 {
		t.Errorf("audit = %v/%d", out.Defaults.PMLastSelected, out.Defaults.PMLastSelectedCount)
	}
	if out.Defaults.PMLastRequest != "method:ui" {
		t.Errorf("PMLastRequest = %q", out.Defaults.PMLastRequest)
	}
	if len(sel.Selected) != 2 {
		t.Errorf("selection = %v", sel.Selected)
	}
}

// TestApplyEmptyRequestKeepsEligible verifies an empty request leaves the
// enabled eligible workers as they were and disables manual lanes.
func TestApplyEmptyRequestKeepsEligible(t *testing.T) {
	workers := roster()
	workers[3].Enabled = config.Bool(true)
	cfg := &config.OrchestratorConfig{Workers: workers}

	out, sel := Apply(cfg, Options{Min: 1, Max: 10})
	if !sel.Kept {
		t.Fatal("expected the current set to be kept")
	}
	enabled := 0
	for i, w := range out.Workers {
		want := cfg.Workers[i].IsEnabled()
		if w.Engine.IsManual() {
			want = false
		}
		if w.IsEnabled() != want {
			t.Errorf("%s enabled = %v, want %v", w.TaskID, w.IsEnabled(), want)
		}
		if w.IsEnabled() {
			enabled++
		}
	}
	if enabled > 10 {
		t.Errorf("enabled %d workers, max is 10", enabled)
	}
	if !reflect.DeepEqual(out.Defaults.PMLastSelected, sel.Selected) || out.Defaults.PMLastSelectedCount != len(sel.Selected) {
		t.Errorf("audit = %v/%d, selection = %v", out.Defaults.PMLastSelected, out.Defaults.PMLastSelectedCount, sel.Selected)
	}
	for _, id := range out.Defaults.PMLastSelected {
		for _, w := range out.Workers {
			if w.TaskID == id && w.Engine.IsManual() {
				t.Errorf("manual lane %s recorded as selected", id)
			}
		}
	}
}

func TestAssignRoleFromMethod(t *testing.T) {
	tests := []struct {
		w    config.WorkerSpec
		want string
	}{
		{config.WorkerSpec{Role: "x", WorkMethod: " Diagnostics "}, "Diagnostics/Search"},
		{config.WorkerSpec{Role: "x", WorkMethod: "unknown"}, "x"},
		{config.WorkerSpec{Role: "x", WorkMethod: ""}, "x"},
		{config.WorkerSpec{Role: "x", WorkMethod: "ui", FixedRole: true}, "x"},
	}
	for _, tt := range tests {
		if got := AssignRoleFromMethod(tt.w).Role; got != tt.want {
			t.Errorf("AssignRoleFromMethod(%+v) role = %q, want %q", tt.w, got, tt.want)
		}
	}
}
