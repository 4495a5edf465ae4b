// Package status infers a worker's state, progress, current activity and
// token usage from its liveness and the tail of its log.
package status

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

// State is the inferred lifecycle state of a launched worker.
type State string

const (
	StateRunning State = "RUNNING"
	StateExited  State = "EXITED"
	StateFailed  State = "FAILED"
	StateDone    State = "DONE"
	StateBlocked State = "BLOCKED"
)

const (
	HintBlocked = "policy/write blocked; check lane log and guard"
	HintOneShot = "one-shot completed"

	activityIdle    = "idle"
	activityRunning = "running"
	activityMax     = 88
	activityKeep    = 85
)

// Delta adjusts progress when Token occurs in the log.
type Delta struct {
	Token string
	Value int
}

// Rules holds every table the classifier matches against. Tokens are
// lowercase; logs are lowercased before matching.
type Rules struct {
	FailTokens    []string
	DoneTokens    []string
	BlockedTokens []string

	// Fallback is the state of a dead worker whose non-empty log matched
	// nothing.
	Fallback State

	BaseProgress   map[State]int
	ProgressDeltas []Delta
	DocBonus       int // Per attached document
	DocBonusCap    int

	ActivitySkipWords    []string
	ActivitySkipPrefixes []string

	InputPatterns  []*regexp.Regexp
	OutputPatterns []*regexp.Regexp
	TotalPatterns  []*regexp.Regexp
}

// DefaultRules returns the rule set used for codex and claude-cli logs.
func DefaultRules() Rules {
	return Rules{
		FailTokens: []string{
			"traceback (most recent call last)",
			"i can't find any task definition file",
			"cannot find any task definition file",
			"[fail]",
			"fatal:",
		},
		DoneTokens: []string{
			"updated the following files",
			"apply_patch",
			"compile check passed",
			"done",
			"completed",
			"success",
			"changed files",
			"residual risk",
			"runtime risk is low",
		},
		BlockedTokens: []string{
			"rejected: blocked by policy",
			"read-only policy",
			"[guard]",
			"switched to manual",
		},
		Fallback: StateDone,
		BaseProgress: map[State]int{
			StateRunning: 55,
			StateBlocked: 30,
			StateFailed:  35,
			StateExited:  75,
		},
		ProgressDeltas: []Delta{
			{"apply_patch", 10},
			{"updated the following files", 10},
			{"success", 5},
			{"completed", 10},
			{"done", 10},
			{"error", -10},
			{"fail", -10},
		},
		DocBonus:    3,
		DocBonusCap: 15,
		ActivitySkipWords: []string{
			"tokens used", "thinking", "plan update", "exec",
			"codex", "success.", "done", "completed",
		},
		ActivitySkipPrefixes: []string{"```", "---", "===", "**"},
		InputPatterns: compile(
			`\binput[_\s-]?tokens?\s*[:=]\s*([0-9,]+)`,
			`\bin[_\s-]?tokens?\s*[:=]\s*([0-9,]+)`,
		),
		OutputPatterns: compile(
			`\boutput[_\s-]?tokens?\s*[:=]\s*([0-9,]+)`,
			`\bout[_\s-]?tokens?\s*[:=]\s*([0-9,]+)`,
		),
		TotalPatterns: compile(
			`\btotal[_\s-]?tokens?\s*[:=]\s*([0-9,]+)`,
			`\btokens?\s+used\s*[:=]\s*([0-9,]+)`,
			`\bused\s+tokens?\s*[:=]\s*([0-9,]+)`,
			`\btokens?\s+used\s*\n\s*([0-9,]+)`,
			`\btotal\s*\n\s*([0-9,]+)\s*tokens?`,
		),
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Input is what the classifier knows about one worker.
type Input struct {
	Alive    bool
	Engine   config.Engine
	LogTail  string
	DocCount int
}

// Tokens is the token usage reported in a log. Nil means not reported.
type Tokens struct {
	Input  *int `json:"input"`
	Output *int `json:"output"`
	Total  *int `json:"total"`
}

// Status is the classifier's verdict for one worker.
type Status struct {
	State    State  `json:"state"`
	Progress int    `json:"progress"`
	Activity string `json:"activity"`
	Tokens   Tokens `json:"tokens"`
	Hint     string `json:"state_hint"`
}

// Classifier applies a rule set. The zero value is not usable; use New.
type Classifier struct {
	rules Rules
}

// New returns a classifier for rules. A missing fallback becomes DONE.
func New(rules Rules) *Classifier {
	if rules.Fallback == "" {
		rules.Fallback = StateDone
	}
	return &Classifier{rules: rules}
}

// Default returns a classifier with DefaultRules.
func Default() *Classifier {
	return New(DefaultRules())
}

// Classify derives the full status of a worker.
func (c *Classifier) Classify(in Input) Status {
	state, assumed := c.State(in.Alive, in.LogTail)
	if !in.Alive && in.Engine == config.EngineClaudeCLI && state == StateExited {
		// claude-cli lanes are one-shot; a silent exit is a finished lane.
		state = StateDone
	}

	var hint string
	switch {
	case state == StateBlocked:
		hint = HintBlocked
	case in.Engine == config.EngineClaudeCLI && state == StateDone:
		hint = HintOneShot
	case assumed:
		hint = "no completion marker found; assumed " + string(state)
	}

	return Status{
		State:    state,
		Progress: c.Progress(state, in.LogTail, in.DocCount),
		Activity: c.Activity(in.LogTail),
		Tokens:   c.Tokens(in.LogTail),
		Hint:     hint,
	}
}

// State classifies liveness and log text. assumed is true when no token
// matched and the fallback state was used.
func (c *Classifier) State(alive bool, logTail string) (state State, assumed bool) {
	if alive {
		return StateRunning, false
	}
	text := strings.TrimSpace(logTail)
	if text == "" {
		return StateExited, false
	}
	low := strings.ToLower(text)
	switch {
	case containsAny(low, c.rules.FailTokens):
		return StateFailed, false
	case containsAny(low, c.rules.DoneTokens):
		return StateDone, false
	case containsAny(low, c.rules.BlockedTokens):
		return StateBlocked, false
	}
	return c.rules.Fallback, true
}

// Progress estimates completion in [0,100].
func (c *Classifier) Progress(state State, logTail string, docCount int) int {
	if state == StateDone {
		return 100
	}
	p, ok := c.rules.BaseProgress[state]
	if !ok {
		p = 10
	}
	low := strings.ToLower(logTail)
	for _, d := range c.rules.ProgressDeltas {
		if strings.Contains(low, d.Token) {
			p += d.Value
		}
	}
	if docCount > 0 {
		p += min(c.rules.DocBonusCap, docCount*c.rules.DocBonus)
	}
	return max(0, min(100, p))
}

// Activity returns the most recent meaningful log line.
func (c *Classifier) Activity(logTail string) string {
	text := strings.ReplaceAll(logTail, "\r", "")
	if strings.TrimSpace(text) == "" {
		return activityIdle
	}
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || c.boilerplate(line) {
			continue
		}
		if r := []rune(line); len(r) > activityMax {
			line = string(r[:activityKeep]) + "..."
		}
		return line
	}
	return activityRunning
}

func (c *Classifier) boilerplate(line string) bool {
	low := strings.ToLower(line)
	for _, s := range c.rules.ActivitySkipWords {
		if low == s || strings.HasPrefix(low, s+" ") {
			return true
		}
	}
	for _, p := range c.rules.ActivitySkipPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// Tokens extracts token counts. The first matching pattern per field wins.
func (c *Classifier) Tokens(logTail string) Tokens {
	text := strings.ReplaceAll(logTail, "\r", "")
	if strings.TrimSpace(text) == "" {
		return Tokens{}
	}
	t := Tokens{
		Input:  firstInt(text, c.rules.InputPatterns),
		Output: firstInt(text, c.rules.OutputPatterns),
		Total:  firstInt(text, c.rules.TotalPatterns),
	}
	if t.Total == nil && t.Input != nil && t.Output != nil {
		sum := *t.Input + *t.Output
		t.Total = &sum
	}
	return t
}

func firstInt(text string, patterns []*regexp.Regexp) *int {
	for _, rx := range patterns {
		m := rx.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := parseCount(m[1]); ok {
			return &v
		}
	}
	return nil
}

// parseCount parses a decimal count with optional thousands separators.
func parseCount(raw string) (int, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
