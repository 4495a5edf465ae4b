// Package main is the entry point for the fleet CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/aristath/fleet/internal/config"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func init() {
	// CODEX_CLI_CMD, CLAUDE_CLI_CMD and CLAUDE_PERMISSION_MODE may come from .env
	_ = godotenv.Load()
}

// app carries what commands need besides their flags.
type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	logger *log.Logger
}

func newApp(ctx context.Context, stdout, stderr io.Writer, quiet bool) *app {
	logOut := stderr
	if quiet {
		logOut = io.Discard
	}
	return &app{
		ctx:    ctx,
		stdout: stdout,
		stderr: stderr,
		logger: log.New(logOut, "", 0),
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("fleet"),
		kong.Description("Dispatch, monitor and delegate fleets of coding-agent workers."),
		kong.UsageOnError(),
		kongVars(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := kctx.Run(&cli.Globals, newApp(ctx, os.Stdout, os.Stderr, cli.Quiet))
	kctx.FatalIfErrorf(err)
}

// loadRoster reads and normalizes the roster named by --tasks.
func (g *Globals) loadRoster() (*config.OrchestratorConfig, error) {
	return config.Load(g.Tasks)
}

func (g *Globals) historyPath() string {
	if g.HistoryDB != "" {
		return g.HistoryDB
	}
	return filepath.Join(g.Runs, "history.db")
}

// Run prints version information.
func (c *VersionCmd) Run(a *app) error {
	a.printf("fleet %s (%s)\n", version, commit)
	return nil
}
