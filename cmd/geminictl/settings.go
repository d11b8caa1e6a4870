package main

import (
	"fmt"
	"strings"

	"gemini-console/internal/console"
	"gemini-console/internal/settings"

	"github.com/urfave/cli/v2"
)

func settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "show and change proxy settings",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "print every settings panel, or one category",
				ArgsUsage: "[category]",
				Action: action(func(c *cli.Context, e *env) error {
					if err := e.load(c.Context); err != nil {
						return err
					}
					panels := e.console.Settings.Panels()
					if category := c.Args().First(); category != "" {
						p, err := e.console.Settings.Panel(category)
						if err != nil {
							return err
						}
						panels = []settings.Panel{p}
					}
					return console.RenderSettings(e.out, panels)
				}),
			},
			{
				Name:      "set",
				Usage:     "change fields of one category and save it",
				ArgsUsage: "<category> KEY=VALUE...",
				Action: action(func(c *cli.Context, e *env) error {
					if c.NArg() < 2 {
						return cli.Exit("usage: geminictl settings set <category> KEY=VALUE...", 1)
					}
					if err := e.load(c.Context); err != nil {
						return err
					}
					category := c.Args().First()
					for _, pair := range c.Args().Tail() {
						key, value, ok := strings.Cut(pair, "=")
						if !ok {
							return fmt.Errorf("expected KEY=VALUE, got %q", pair)
						}
						if key == settings.KeysField {
							return fmt.Errorf("%s is managed with `geminictl keys`", settings.KeysField)
						}
						if err := e.console.Settings.Set(category, key, value); err != nil {
							return err
						}
					}
					res, err := e.console.SaveSettings(c.Context, category)
					if err != nil {
						return err
					}
					e.message(res, "Settings saved")
					return nil
				}),
			},
			{
				Name:      "save",
				Usage:     "post one category as it currently stands, including staged Gemini keys",
				ArgsUsage: "<category>",
				Action: action(func(c *cli.Context, e *env) error {
					category := c.Args().First()
					if category == "" {
						return cli.Exit("usage: geminictl settings save <category>", 1)
					}
					if err := e.load(c.Context); err != nil {
						return err
					}
					res, err := e.console.SaveSettings(c.Context, category)
					if err != nil {
						return err
					}
					e.message(res, "Settings saved")
					return nil
				}),
			},
		},
	}
}
