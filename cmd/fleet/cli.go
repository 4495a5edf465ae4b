// Package main defines the CLI structure using kong.
package main

import (
	"time"

	"github.com/alecthomas/kong"
)

// Globals are flags shared by every command.
type Globals struct {
	Tasks     string `short:"t" default:"tasks.json" env:"FLEET_TASKS" help:"Roster file (.json, .toml or .yaml)"`
	Runs      string `default:"runs" env:"FLEET_RUNS" help:"Directory holding run directories"`
	HistoryDB string `name:"history-db" env:"FLEET_HISTORY_DB" help:"History database (default <runs>/history.db)"`
	Quiet     bool   `short:"q" help:"Suppress operator notices"`
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Dispatch DispatchCmd `cmd:"" help:"Launch the enabled workers of the roster"`
	Delegate DelegateCmd `cmd:"" help:"Enable the workers that best fit a request"`
	Status   StatusCmd   `cmd:"" help:"Show the status of a run"`
	Runs     RunsCmd     `cmd:"" help:"List run directories"`
	Docs     DocsCmd     `cmd:"" help:"List the documents of a run"`
	Watch    WatchCmd    `cmd:"" help:"Monitor a run in the terminal"`
	History  HistoryCmd  `cmd:"" help:"Show recorded dispatch history"`
	Validate ValidateCmd `cmd:"" help:"Check the roster for errors"`
	Renumber RenumberCmd `cmd:"" help:"Rewrite task ids as <orch_id>-T<n>"`
	Version  VersionCmd  `cmd:"" help:"Show version information"`
}

// DispatchCmd launches a roster.
type DispatchCmd struct {
	Model           string `help:"Model override"`
	ReasoningEffort string `help:"Reasoning effort override"`
	Workspace       string `help:"Workspace root when the roster names none"`
	PromptRoot      string `help:"Base for relative prompt_file paths (default: roster directory)"`
	DryRun          bool   `help:"Record commands without launching"`
	Wait            bool   `help:"Block until every launched worker exits"`
	NoHistory       bool   `help:"Do not record the run in the history database"`
}

// DelegateCmd selects workers for a request.
type DelegateCmd struct {
	Request  string `arg:"" optional:"" help:"Request text; empty keeps the current selection"`
	Min      int    `default:"1" help:"Minimum workers to enable"`
	Max      int    `default:"10" help:"Maximum workers to enable"`
	AutoRole bool   `help:"Derive roles from work methods before scoring"`
	DryRun   bool   `help:"Print the selection without saving the roster"`
}

// StatusCmd reports on one run.
type StatusCmd struct {
	RunName string `arg:"" name:"run" help:"Run directory name"`
	JSON    bool   `help:"Print JSON"`
}

// RunsCmd lists runs.
type RunsCmd struct {
	Orch string `help:"Only runs of this orchestrator id"`
	JSON bool   `help:"Print JSON"`
}

// DocsCmd lists a run's documents.
type DocsCmd struct {
	RunName string `arg:"" name:"run" help:"Run directory name"`
	Task    string `help:"Only this task id"`
	JSON    bool   `help:"Print JSON"`
}

// WatchCmd runs the terminal monitor.
type WatchCmd struct {
	RunName  string        `arg:"" name:"run" help:"Run directory name"`
	Interval time.Duration `default:"2s" help:"Refresh interval"`
}

// HistoryCmd lists recorded runs, or one run's launches.
type HistoryCmd struct {
	Orch  string `help:"Only runs of this orchestrator id"`
	Limit int    `default:"20" help:"Maximum runs to list"`
	RunID string `name:"run" help:"Show the launches of this run id"`
}

// ValidateCmd checks a roster.
type ValidateCmd struct{}

// RenumberCmd renumbers task ids.
type RenumberCmd struct {
	DryRun bool `help:"Print the new ids without saving"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// kongVars returns variables for kong (version info).
func kongVars() kong.Vars {
	return kong.Vars{
		"version": version,
	}
}
