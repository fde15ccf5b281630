package main

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/handoff/internal/config"
	"github.com/hpungsan/handoff/internal/logging"
	"github.com/hpungsan/handoff/internal/mcp"
	"github.com/hpungsan/handoff/internal/ops"
	"github.com/hpungsan/handoff/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// baseDirEnv overrides the default ~/.handoff base directory.
const baseDirEnv = "HANDOFF_HOME"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"compact": true, "hydrate": true, "show": true, "pack": true,
	"list": true, "prune": true, "audit": true, "validate": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  handoff: session context carried across compaction

  Usage: handoff <command> [options]
         handoff --help

  MCP server mode requires piped input.`)
}

// resolveBaseDir returns $HANDOFF_HOME or ~/.handoff.
func resolveBaseDir() (string, error) {
	if dir := os.Getenv(baseDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".handoff"), nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// exitWith prints err and exits with its code, 1 unless err carries one.
func exitWith(err error) {
	code := 1
	var coder cli.ExitCoder
	if stderrors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	}
	os.Exit(code)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no store.
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	baseDir, err := resolveBaseDir()
	if err != nil {
		fail("%v", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	st, err := store.New(cfg.ResolveStoreDir(baseDir), logger)
	if err != nil {
		fail("failed to open store: %v", err)
	}
	env := ops.NewEnv(st, cfg, logger)

	if isCLIMode() {
		if err := newCLIApp(env).Run(os.Args); err != nil {
			exitWith(err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'handoff --help' for usage.\n")
		os.Exit(1)
	}

	if err := mcp.Run(env, Version); err != nil {
		fail("%v", err)
	}
}
