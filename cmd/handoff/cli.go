package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/handoff/internal/errors"
	"github.com/hpungsan/handoff/internal/handoff"
	"github.com/hpungsan/handoff/internal/ops"
)

// newCLIApp creates the CLI application with all commands. env may be nil
// when only help or version output is needed.
func newCLIApp(env *ops.Env) *cli.App {
	app := &cli.App{
		Name:    "handoff",
		Usage:   "Carry file-reference context from one coding session to the next",
		Version: Version,
		Commands: []*cli.Command{
			compactCmd(env),
			hydrateCmd(env),
			showCmd(env),
			packCmd(env),
			listCmd(env),
			pruneCmd(env),
			auditCmd(env),
			validateCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// compactCmd creates the compact command.
func compactCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "compact",
		Usage: "Build and store a handoff from file-touch events (JSONL on stdin or --events)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Repository root (default: current directory)"},
			&cli.StringFlag{Name: "events", Aliases: []string{"e"}, Usage: "Path to a .jsonl events file"},
			&cli.StringFlag{Name: "repo-id", Usage: "Repository identifier"},
			&cli.StringFlag{Name: "working-dir", Aliases: []string{"w"}, Usage: "Working directory relative to root"},
			&cli.IntFlag{Name: "max-refs", Usage: "Cap on accepted references (default: config)"},
			&cli.Int64Flag{Name: "max-bytes", Usage: "Cap on cumulative referenced bytes (default: config)"},
		},
		Action: func(c *cli.Context) error {
			root := c.String("root")
			if root == "" {
				wd, err := os.Getwd()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				root = wd
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return outputError(errors.NewInvalidRequest("root is not a valid path"))
			}

			input := ops.CompactInput{
				Root:       root,
				RepoID:     c.String("repo-id"),
				WorkingDir: c.String("working-dir"),
				EventsPath: c.String("events"),
				MaxRefs:    c.Int("max-refs"),
				MaxBytes:   c.Int64("max-bytes"),
			}
			if input.EventsPath == "" {
				if !hasPipedInput(c.App.Reader) {
					return outputError(errors.NewInvalidRequest("events must be piped via stdin or given with --events"))
				}
				for ev := range handoff.ReadEvents(c.App.Reader) {
					input.Events = append(input.Events, ev)
				}
			}

			output, err := ops.Compact(c.Context, env, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// hydrateCmd creates the hydrate command.
func hydrateCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "hydrate",
		Usage:     "Print the best pack of the latest (or given) handoff for a token budget",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "max-tokens", Aliases: []string{"t"}, Usage: "Token budget (default: config)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Hydrate(c.Context, env, ops.HydrateInput{
				ID:        c.Args().First(),
				MaxTokens: c.Int("max-tokens"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a handoff's header, metrics and audit log",
		ArgsUsage: "[id]",
		Action: func(c *cli.Context) error {
			output, err := ops.Show(env, ops.ShowInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// packCmd creates the pack command.
func packCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "Print the stored pack of one tier",
		ArgsUsage: "<shallow|medium|full>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Handoff id (default: latest)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("depth is required"))
			}
			output, err := ops.Pack(env, ops.PackInput{ID: c.String("id"), Depth: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored handoffs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Results to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(env, ops.ListInput{Limit: c.Int("limit"), Offset: c.Int("offset")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove old handoffs, keeping the newest N and the latest",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "keep", Aliases: []string{"k"}, Usage: "Handoffs to keep (default: config retention_count)"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Report without removing"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PruneInput{DryRun: c.Bool("dry-run")}
			if c.IsSet("keep") {
				keep := c.Int("keep")
				input.Keep = &keep
			}
			output, err := ops.Prune(c.Context, env, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// auditCmd creates the audit command.
func auditCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Print the most recent compact and hydrate runs",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultAuditLimit, Usage: "Max entries"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.AuditLog(env, ops.AuditLogInput{Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// validateCmd creates the validate command.
func validateCmd() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Count valid and invalid record lines in a handoff file",
		ArgsUsage: "<path.jsonl>",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(errors.NewInvalidRequest("path is required"))
			}
			output, err := ops.Validate(ops.ValidateInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			if err := outputJSON(c.App.Writer, output); err != nil {
				return err
			}
			if output.Invalid > 0 || !output.HasMeta {
				return cli.Exit("", 2)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats err for the CLI.
func outputError(err error) error {
	var hErr *errors.HandoffError
	if stderrors.As(err, &hErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", hErr.Code, hErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// hasPipedInput reports whether r is a pipe or file rather than a terminal.
// Readers other than *os.File always count as piped.
func hasPipedInput(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return r != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
