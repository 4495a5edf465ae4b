package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

// LoadPrompt reads a prompt template and renders it for w.
func LoadPrompt(path string, w config.WorkerSpec) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	return RenderPrompt(string(data), w), nil
}

// RenderPrompt substitutes the worker placeholders in a template and trims
// the result.
func RenderPrompt(template string, w config.WorkerSpec) string {
	r := strings.NewReplacer(
		"{{TASK_ID}}", w.TaskID,
		"{{OWNER}}", w.Owner,
		"{{REPO}}", w.Repo,
		"{{SCOPE_PATHS}}", bulletList(w.ScopePaths),
		"{{GOAL}}", w.Goal,
		"{{DONE_WHEN}}", bulletList(w.DoneWhen),
	)
	return strings.TrimSpace(r.Replace(template))
}

// WithGlobalPrompt prepends the shared prompt, separated by a rule.
func WithGlobalPrompt(prompt, global string) string {
	global = strings.TrimSpace(global)
	if global == "" {
		return prompt
	}
	return strings.TrimSpace(global + "\n\n---\n\n" + prompt)
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}
