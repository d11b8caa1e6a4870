package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gemini-console/internal/console"
	"gemini-console/internal/keys"

	"github.com/urfave/cli/v2"
)

// keysAction loads the key list (server copy or staged draft) first.
func keysAction(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return action(func(c *cli.Context, e *env) error {
		if err := e.load(c.Context); err != nil {
			return err
		}
		return fn(c, e)
	})
}

// bulkText reads keys from --file ("-" for stdin) or the arguments; empty
// text opens the textarea dialog.
func bulkText(c *cli.Context) (string, error) {
	switch path := c.String("file"); path {
	case "":
		return strings.Join(c.Args().Slice(), "\n"), nil
	case "-":
		b, err := io.ReadAll(os.Stdin)
		return string(b), err
	default:
		b, err := os.ReadFile(path)
		return string(b), err
	}
}

func fileFlag() cli.Flag {
	return &cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "read one key per line from a file, - for stdin"}
}

func keysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "stage, check and save the Gemini API key list",
		Description: "Edits are staged locally and survive between invocations until " +
			"`keys save` (or `settings save` of the key category) persists them.",
		Subcommands: []*cli.Command{
			{
				Name:  "pull",
				Usage: "replace the staged list with the server copy",
				Action: keysAction(func(c *cli.Context, e *env) error {
					if err := e.console.Keys.Pull(c.Context); err != nil {
						return err
					}
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:  "list",
				Usage: "list staged keys with their latest check",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "reveal", Usage: "print full keys"}},
				Action: keysAction(func(c *cli.Context, e *env) error {
					return console.RenderKeys(e.out, e.console.Keys.Store(), c.Bool("reveal"))
				}),
			},
			{
				Name:      "add",
				Usage:     "stage one key",
				ArgsUsage: "[key]",
				Action: keysAction(func(c *cli.Context, e *env) error {
					if err := e.console.Keys.Add(c.Context, c.Args().First()); err != nil {
						return err
					}
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:      "edit",
				Usage:     "replace one staged key",
				ArgsUsage: "<old> [new]",
				Action: keysAction(func(c *cli.Context, e *env) error {
					old := c.Args().First()
					if old == "" {
						return cli.Exit("usage: geminictl keys edit <old> [new]", 1)
					}
					if err := e.console.Keys.Edit(c.Context, old, c.Args().Get(1)); err != nil {
						return err
					}
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:      "delete",
				Usage:     "unstage one key",
				ArgsUsage: "<key>",
				Action: keysAction(func(c *cli.Context, e *env) error {
					key := c.Args().First()
					if key == "" {
						return cli.Exit("usage: geminictl keys delete <key>", 1)
					}
					if err := e.console.Keys.Delete(c.Context, key); err != nil {
						return err
					}
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:      "bulk-add",
				Usage:     "stage many keys, one per line",
				ArgsUsage: "[key...]",
				Flags:     []cli.Flag{fileFlag()},
				Action: keysAction(func(c *cli.Context, e *env) error {
					text, err := bulkText(c)
					if err != nil {
						return err
					}
					res, err := e.console.Keys.BulkAdd(c.Context, text)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "Added %d keys, skipped %d duplicates\n", res.Added, res.Skipped)
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:      "bulk-delete",
				Usage:     "unstage many keys, one per line",
				ArgsUsage: "[key...]",
				Flags:     []cli.Flag{fileFlag()},
				Action: keysAction(func(c *cli.Context, e *env) error {
					text, err := bulkText(c)
					if err != nil {
						return err
					}
					res, err := e.console.Keys.BulkDelete(c.Context, text)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "Removed %d keys, %d not found\n", res.Removed, res.NotFound)
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:      "check",
				Usage:     "check one staged key",
				ArgsUsage: "<key>",
				Action: keysAction(func(c *cli.Context, e *env) error {
					key := c.Args().First()
					if key == "" {
						return cli.Exit("usage: geminictl keys check <key>", 1)
					}
					res, err := e.console.Keys.CheckOne(c.Context, key)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "%s: %s %s\n", keys.Mask(res.Key), res.Status, res.Message)
					return nil
				}),
			},
			{
				Name:  "check-all",
				Usage: "check every staged key",
				Action: keysAction(func(c *cli.Context, e *env) error {
					report, err := e.console.Keys.CheckAll(c.Context)
					if err != nil {
						return err
					}
					if err := console.RenderKeys(e.out, e.console.Keys.Store(), false); err != nil {
						return err
					}
					return console.RenderReport(e.out, report)
				}),
			},
			{
				Name:  "check-real",
				Usage: "run a real generation with every staged key",
				Flags: []cli.Flag{&cli.StringFlag{Name: "model", Usage: "model to test against (prompted when omitted)"}},
				Action: keysAction(func(c *cli.Context, e *env) error {
					report, err := e.console.Keys.CheckReal(c.Context, c.String("model"))
					if err != nil {
						return err
					}
					if err := console.RenderKeys(e.out, e.console.Keys.Store(), false); err != nil {
						return err
					}
					return console.RenderReport(e.out, report)
				}),
			},
			{
				Name:  "delete-invalid",
				Usage: "unstage the keys the latest check found invalid",
				Action: keysAction(func(c *cli.Context, e *env) error {
					res, err := e.console.Keys.DeleteInvalid(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "Removed %d keys, %d not found\n", res.Removed, res.NotFound)
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:  "save",
				Usage: "persist the staged list on the proxy",
				Action: keysAction(func(c *cli.Context, e *env) error {
					res, err := e.console.Keys.Save(c.Context)
					if err != nil {
						return err
					}
					e.message(res, "Keys saved")
					return nil
				}),
			},
			{
				Name:  "discard",
				Usage: "drop the staged draft and reload the server copy",
				Action: action(func(c *cli.Context, e *env) error {
					if err := e.console.Keys.Discard(); err != nil {
						return err
					}
					if err := e.load(c.Context); err != nil {
						return err
					}
					return console.RenderKeyStatus(e.out, e.console.Keys.Store())
				}),
			},
			{
				Name:  "status",
				Usage: "show whether the list has unsaved changes and recent check runs",
				Flags: []cli.Flag{&cli.IntFlag{Name: "runs", Value: 5, Usage: "number of recent runs to show"}},
				Action: keysAction(func(c *cli.Context, e *env) error {
					if err := console.RenderKeyStatus(e.out, e.console.Keys.Store()); err != nil {
						return err
					}
					runs, err := keys.NewDrafts(e.db).RecentRuns(e.cfg.Server.BaseURL, c.Int("runs"))
					if err != nil {
						return err
					}
					if len(runs) == 0 {
						return nil
					}
					fmt.Fprintln(e.out)
					return console.RenderRuns(e.out, runs)
				}),
			},
		},
	}
}
