// Package delegate picks the subset of roster workers that should run for a
// free-text request and applies that choice to the roster.
package delegate

import (
	"sort"
	"strings"

	"github.com/aristath/fleet/internal/config"
)

// Options are the inputs of one delegation.
type Options struct {
	Request  string
	Min      int
	Max      int
	AutoRole bool // Derive roles from work methods before scoring
}

// Selection is the outcome of Select.
type Selection struct {
	Intent   []Tag          // Sorted
	Target   int            // Count aimed for before review lanes and backfill
	Kept     bool           // Empty request; the current enabled set was kept
	Selected []string       // Task ids in selection order
	Scores   map[string]int // Per eligible task id
}

// NormalizeBounds clamps min to at least 1, max to [1, config.MaxWorkers],
// and min to at most max.
func NormalizeBounds(lo, hi int) (int, int) {
	lo = max(1, lo)
	hi = max(1, min(config.MaxWorkers, hi))
	return min(lo, hi), hi
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type tagSet map[Tag]struct{}

func (s tagSet) add(t Tag) { s[t] = struct{}{} }

func (s tagSet) has(t Tag) bool {
	_, ok := s[t]
	return ok
}

func (s tagSet) union(o tagSet) tagSet {
	out := make(tagSet, len(s)+len(o))
	for t := range s {
		out.add(t)
	}
	for t := range o {
		out.add(t)
	}
	return out
}

func (s tagSet) overlap(o tagSet) int {
	n := 0
	for t := range s {
		if o.has(t) {
			n++
		}
	}
	return n
}

func (s tagSet) sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// methodTags maps a work method to its tag; diagnostics counts as search.
func methodTags(method string) tagSet {
	out := tagSet{}
	m := Tag(normalize(method))
	if _, ok := RoleByMethod[m]; !ok {
		return out
	}
	if m == TagDiagnostics {
		m = TagSearch
	}
	out.add(m)
	return out
}

func roleTags(role string) tagSet {
	out := tagSet{}
	r := normalize(role)
	for _, kw := range keywordsByTag {
		if containsAny(r, kw.words[:min(roleKeywords, len(kw.words))]) {
			out.add(kw.tag)
		}
	}
	return out
}

// TextTags derives intent tags from free text: explicit method:<tag> chunks
// (comma or semicolon separated) plus keyword membership.
func TextTags(text string) []Tag {
	return textTags(text).sorted()
}

func textTags(text string) tagSet {
	out := tagSet{}
	q := normalize(text)
	if q == "" {
		return out
	}
	for _, chunk := range strings.Split(strings.ReplaceAll(q, ";", ","), ",") {
		chunk = strings.TrimSpace(chunk)
		method, ok := strings.CutPrefix(chunk, "method:")
		if !ok {
			continue
		}
		for t := range methodTags(method) {
			out.add(t)
		}
	}
	for _, kw := range keywordsByTag {
		if containsAny(q, kw.words) {
			out.add(kw.tag)
		}
	}
	return out
}

// IsParallelRequest reports whether the request asks for every worker.
func IsParallelRequest(text string) bool {
	q := normalize(text)
	return q != "" && containsAny(q, parallelHints)
}

// IsReviewRequest reports whether the request asks for review or rework.
func IsReviewRequest(text string) bool {
	q := normalize(text)
	return q != "" && containsAny(q, reviewHints)
}

// TargetCount sizes the selection from the intent and the bounds.
func TargetCount(intentSize int, request string, lo, hi, eligible int) int {
	ceiling := max(1, min(hi, eligible))
	floor := max(1, min(lo, ceiling))
	switch {
	case IsParallelRequest(request):
		return ceiling
	case intentSize == 0:
		return max(floor, min(2, ceiling))
	case intentSize >= 5:
		return min(ceiling, max(floor, 6))
	case intentSize >= 3:
		return min(ceiling, max(floor, 4))
	default:
		return min(ceiling, max(floor, 2))
	}
}

// Score rates how well w fits the intent.
func Score(w config.WorkerSpec, intent []Tag) int {
	in := tagSet{}
	for _, t := range intent {
		in.add(t)
	}
	return score(w, in)
}

func score(w config.WorkerSpec, intent tagSet) int {
	mTags := methodTags(w.WorkMethod)
	rgTags := roleTags(w.Role).union(textTags(w.Goal))
	tags := mTags.union(rgTags)

	s := mTags.overlap(intent)*scoreMethodMatch + rgTags.overlap(intent)*scoreRoleGoalMatch
	if w.Engine == config.EngineCodex || w.Engine == config.EngineClaudeCLI {
		s += scoreAutomated
	}
	if intent.has(TagUI) && w.Engine == config.EngineClaudeCLI {
		s += scoreUIEngine
	}
	if intent.has(TagUI) && strings.Contains(normalize(w.Owner), "claude") {
		s += scoreUIOwner
	}
	if intent.has(TagValidate) && (tags.has(TagValidate) || strings.Contains(normalize(w.Role), "qa")) {
		s += scoreValidate
	}
	return s
}

// AssignRoleFromMethod returns w with its role replaced by the label its
// work method implies. Fixed-role workers and unknown methods are unchanged.
func AssignRoleFromMethod(w config.WorkerSpec) config.WorkerSpec {
	if w.FixedRole {
		return w
	}
	if role, ok := RoleByMethod[Tag(normalize(w.WorkMethod))]; ok {
		w.Role = role
	}
	return w
}

// Select chooses workers for opts.Request. Manual-engine workers are never
// eligible. The selection never exceeds the eligible count or opts.Max.
func Select(workers []config.WorkerSpec, opts Options) Selection {
	lo, hi := NormalizeBounds(opts.Min, opts.Max)
	intent := textTags(opts.Request)
	sel := Selection{Intent: intent.sorted(), Scores: map[string]int{}}

	var eligible []int
	for i, w := range workers {
		if !w.Engine.IsManual() {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return sel
	}
	scores := make([]int, len(workers))
	for _, i := range eligible {
		scores[i] = score(workers[i], intent)
		sel.Scores[workers[i].TaskID] = scores[i]
	}

	if normalize(opts.Request) == "" {
		var current []int
		for _, i := range eligible {
			if workers[i].IsEnabled() {
				current = append(current, i)
			}
		}
		if len(current) > 0 {
			sel.Kept = true
			sel.Selected = ids(workers, current[:min(hi, len(current))])
			return sel
		}
	}

	sel.Target = TargetCount(len(intent), opts.Request, lo, hi, len(eligible))
	ranked := append([]int(nil), eligible...)
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})

	chosen := make(map[int]bool)
	var selected []int
	pick := func(i int) {
		if !chosen[i] {
			chosen[i] = true
			selected = append(selected, i)
		}
	}
	for _, i := range ranked[:sel.Target] {
		pick(i)
	}

	if IsReviewRequest(opts.Request) {
		for _, i := range eligible {
			if workers[i].FixedRole {
				pick(i)
			}
		}
		selected = trimToCap(workers, selected, ranked, hi)
		chosen = make(map[int]bool, len(selected))
		for _, i := range selected {
			chosen[i] = true
		}
	}

	for _, i := range ranked {
		if len(selected) >= lo {
			break
		}
		pick(i)
	}

	sel.Selected = ids(workers, selected)
	return sel
}

// trimToCap drops the lowest-ranked non-fixed-role workers until at most
// hi remain. Fixed-role workers go last, also lowest rank first.
func trimToCap(workers []config.WorkerSpec, selected, ranked []int, hi int) []int {
	if len(selected) <= hi {
		return selected
	}
	drop := make(map[int]bool)
	excess := len(selected) - hi
	for _, fixed := range []bool{false, true} {
		for k := len(ranked) - 1; k >= 0 && excess > 0; k-- {
			i := ranked[k]
			if drop[i] || workers[i].FixedRole != fixed || !contains(selected, i) {
				continue
			}
			drop[i] = true
			excess--
		}
	}
	out := make([]int, 0, hi)
	for _, i := range selected {
		if !drop[i] {
			out = append(out, i)
		}
	}
	return out
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func ids(workers []config.WorkerSpec, idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = workers[i].TaskID
	}
	return out
}

// Apply runs Select on cfg's workers and returns a new roster in which
// exactly the selected workers are enabled and the audit fields record the
// request and the enabled ids in roster order. cfg is not modified.
// Manual lanes are never selected, so they end up disabled even when an
// empty request keeps the current set.
func Apply(cfg *config.OrchestratorConfig, opts Options) (*config.OrchestratorConfig, Selection) {
	out := *cfg
	out.Defaults.PMLastSelected = nil
	out.Workers = make([]config.WorkerSpec, len(cfg.Workers))
	for i, w := range cfg.Workers {
		if opts.AutoRole {
			w = AssignRoleFromMethod(w)
		}
		out.Workers[i] = w
	}

	sel := Select(out.Workers, opts)
	picked := make(map[string]bool, len(sel.Selected))
	for _, id := range sel.Selected {
		picked[id] = true
	}

	applied := []string{}
	for i := range out.Workers {
		w := &out.Workers[i]
		enabled := picked[w.TaskID]
		w.Enabled = config.Bool(enabled)
		if enabled {
			applied = append(applied, w.TaskID)
		}
	}
	out.Defaults.PMLastRequest = opts.Request
	out.Defaults.PMLastSelected = applied
	out.Defaults.PMLastSelectedCount = len(applied)
	return &out, sel
}
