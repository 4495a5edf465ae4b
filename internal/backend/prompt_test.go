package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/fleet/internal/config"
)

func TestRenderPrompt(t *testing.T) {
	w := config.WorkerSpec{
		TaskID:     "WEB-T1",
		Owner:      "ann",
		Repo:       "frontend",
		ScopePaths: []string{"src/ui", "src/css"},
		Goal:       "Fix header",
		DoneWhen:   []string{"tests pass"},
	}
	tmpl := `
Task {{TASK_ID}} for {{OWNER}} in {{REPO}}
Scope:
{{SCOPE_PATHS}}
Goal: {{GOAL}}
Done when:
{{DONE_WHEN}}
`
	want := "Task WEB-T1 for ann in frontend\nScope:\n- src/ui\n- src/css\nGoal: Fix header\nDone when:\n- tests pass"
	if got := RenderPrompt(tmpl, w); got != want {
		t.Errorf("RenderPrompt =\n%s\nwant\n%s", got, want)
	}
}

func TestWithGlobalPrompt(t *testing.T) {
	tests := []struct {
		prompt, global, want string
	}{
		{"do it", "", "do it"},
		{"do it", "   ", "do it"},
		{"do it", " be careful \n", "be careful\n\n---\n\ndo it"},
	}
	for _, tt := range tests {
		if got := WithGlobalPrompt(tt.prompt, tt.global); got != tt.want {
			t.Errorf("WithGlobalPrompt(%q, %q) = %q, want %q", tt.prompt, tt.global, got, tt.want)
		}
	}
}

func TestLoadPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.md")
	if err := os.WriteFile(path, []byte("  hello {{OWNER}}  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadPrompt(path, config.WorkerSpec{Owner: "bob"})
	if err != nil {
		t.Fatalf("LoadPrompt failed: %v", err)
	}
	if got != "hello bob" {
		t.Errorf("got %q", got)
	}

	if _, err := LoadPrompt(filepath.Join(t.TempDir(), "missing.md"), config.WorkerSpec{}); err == nil {
		t.Error("expected error for missing prompt file")
	}
}
