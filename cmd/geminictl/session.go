package main

import (
	"fmt"

	"gemini-console/internal/config"
	"gemini-console/internal/console"
	"gemini-console/internal/dialog"

	"github.com/urfave/cli/v2"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "store the admin bearer token issued by the proxy login page",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "token", Usage: "bearer token (prompted when omitted)", EnvVars: []string{"GEMINICTL_TOKEN"}},
		},
		Action: action(func(c *cli.Context, e *env) error {
			token := c.String("token")
			if token == "" {
				v, ok, err := e.dialogs.Prompt(c.Context, "Login", "Paste the admin bearer token:", "", dialog.InputPassword)
				if err != nil {
					return err
				}
				if !ok {
					return console.ErrCancelled
				}
				token = v
			}
			if err := e.guard.Login(token); err != nil {
				return err
			}
			if _, err := e.client.Env(c.Context); err != nil {
				return console.MapError(err)
			}
			fmt.Fprintf(e.out, "Logged in to %s\n", e.cfg.Server.BaseURL)
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "forget the stored token",
		Action: action(func(c *cli.Context, e *env) error {
			if err := e.guard.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "Logged out")
			return nil
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "load every panel and print a summary",
		Action: action(func(c *cli.Context, e *env) error {
			res, err := e.console.Load(c.Context)
			if err != nil {
				return err
			}
			cs := e.console
			fmt.Fprintf(e.out, "Proxy:     %s\n", e.cfg.Server.BaseURL)
			fmt.Fprintf(e.out, "Settings:  %d panels\n", len(cs.Settings.Panels()))
			fmt.Fprint(e.out, "Keys:      ")
			console.RenderKeyStatus(e.out, cs.Keys.Store())
			panel := func(label string, p console.Panel, line string) {
				if perr, ok := res.Errors[p]; ok {
					line = "failed: " + console.MapError(perr).Error()
				}
				fmt.Fprintf(e.out, "%-10s %s\n", label, line)
			}
			panel("Mappings:", console.PanelMappings, fmt.Sprintf("%d mappings", len(cs.Mappings.Rows())))
			panel("Access:", console.PanelAccess, fmt.Sprintf("%d access keys", len(cs.Access.Rows())))
			pg := cs.Media.Pagination()
			panel("Media:", console.PanelMedia, pg.StorageType+" "+pg.String())
			if _, failed := res.Errors[console.PanelQuota]; failed {
				panel("Storage:", console.PanelQuota, "")
				return nil
			}
			return console.RenderQuota(e.out, cs.Media.Quota())
		}),
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "print a bcrypt hash for watch.metrics.password_hash, or generate credentials with --enable",
		ArgsUsage: "[password]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "enable", Usage: "generate a password, store its hash and enable /metrics"},
			&cli.StringFlag{Name: "username", Value: "prometheus", Usage: "metrics username for --enable"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("enable") {
				cfgPath := c.String("config")
				cfg, err := config.Load(cfgPath)
				if err != nil {
					return err
				}
				password, err := config.EnableMetrics(cfg, c.String("username"))
				if err != nil {
					return err
				}
				if err := config.SaveConfig(cfg, cfgPath); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Metrics enabled for %s. Password: %s\n", cfg.Watch.Metrics.Username, password)
				return nil
			}
			password := c.Args().First()
			if password == "" {
				return cli.Exit("usage: geminictl hash-password <password>", 1)
			}
			hash, err := config.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, hash)
			return nil
		},
	}
}
