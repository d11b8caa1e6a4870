package main

import (
	"fmt"
	"strconv"
	"time"

	"gemini-console/internal/accesskeys"
	"gemini-console/internal/console"
	"gemini-console/internal/dialog"
	"gemini-console/internal/models"

	"github.com/urfave/cli/v2"
)

func accessFormFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "name", Usage: "key name"},
		&cli.StringFlag{Name: "limit", Usage: "usage limit, empty for unlimited"},
		&cli.StringFlag{Name: "expires-in", Usage: "hours until expiry, empty for never"},
		&cli.BoolFlag{Name: "reset-daily", Usage: "reset the usage count every day (needs --limit)"},
		&cli.BoolFlag{Name: "active", Value: true, Usage: "whether the key is active (edit only)"},
	}
}

func accessFlagsSet(c *cli.Context) bool {
	for _, name := range []string{"name", "limit", "expires-in", "reset-daily", "active"} {
		if c.IsSet(name) {
			return true
		}
	}
	return false
}

// accessInput fills unset flags from base so edits only touch what was given.
func accessInput(c *cli.Context, base dialog.AccessKeyInput) dialog.AccessKeyInput {
	if c.IsSet("name") {
		base.Name = c.String("name")
	}
	if c.IsSet("limit") {
		base.UsageLimit = c.String("limit")
	}
	if c.IsSet("expires-in") {
		base.ExpiresInHours = c.String("expires-in")
	}
	if c.IsSet("reset-daily") {
		base.ResetDaily = c.Bool("reset-daily")
	}
	if c.IsSet("active") {
		base.IsActive = c.Bool("active")
	}
	return base
}

func renderAccess(e *env) error {
	return console.RenderAccessKeys(e.out, e.console.Access.Header(), e.console.Access.Visible(), time.Now())
}

func accessCommand() *cli.Command {
	return &cli.Command{
		Name:  "access",
		Usage: "manage client access keys",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list keys, newest first",
				Flags: []cli.Flag{&cli.StringFlag{Name: "status", Value: "all", Usage: "all, active or inactive"}},
				Action: action(func(c *cli.Context, e *env) error {
					filter, err := accesskeys.ParseFilter(c.String("status"))
					if err != nil {
						return err
					}
					if _, err := e.console.Access.List(c.Context); err != nil {
						return err
					}
					e.console.Access.SetFilter(filter)
					return renderAccess(e)
				}),
			},
			{
				Name:  "filter",
				Usage: "cycle the status filter all → active → inactive and print each view",
				Flags: []cli.Flag{&cli.IntFlag{Name: "times", Value: 1, Usage: "how many times to advance the filter"}},
				Action: action(func(c *cli.Context, e *env) error {
					if _, err := e.console.Access.List(c.Context); err != nil {
						return err
					}
					for i := 0; i < c.Int("times"); i++ {
						f := e.console.Access.CycleFilter()
						if i > 0 {
							fmt.Fprintln(e.out)
						}
						fmt.Fprintf(e.out, "filter: %s\n", f)
						if err := renderAccess(e); err != nil {
							return err
						}
					}
					return nil
				}),
			},
			{
				Name:  "add",
				Usage: "create a key (form when flags are omitted)",
				Flags: accessFormFlags(),
				Action: action(func(c *cli.Context, e *env) error {
					var key *models.AccessKey
					var err error
					if accessFlagsSet(c) {
						var form dialog.AccessKeyForm
						form, err = dialog.ParseAccessKey(accessInput(c, dialog.AccessKeyInput{IsActive: true}), false)
						if err != nil {
							return err
						}
						key, err = e.console.Access.Create(c.Context, form)
					} else {
						key, err = e.console.Access.Add(c.Context)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "Created %s (%s)\n", key.Name, key.Key)
					return nil
				}),
			},
			{
				Name:      "edit",
				Usage:     "change a key (form when flags are omitted)",
				ArgsUsage: "<key>",
				Flags:     accessFormFlags(),
				Action: action(func(c *cli.Context, e *env) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("usage: geminictl access edit <key>", 1)
					}
					var key *models.AccessKey
					var err error
					if accessFlagsSet(c) {
						key, err = editAccessWithFlags(c, e, id)
					} else {
						key, err = e.console.Access.Edit(c.Context, id)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(e.out, "Updated %s (%s)\n", key.Name, key.Key)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a key",
				ArgsUsage: "<key>",
				Action: action(func(c *cli.Context, e *env) error {
					id := c.Args().First()
					if id == "" {
						return cli.Exit("usage: geminictl access delete <key>", 1)
					}
					if err := e.console.Access.Delete(c.Context, id); err != nil {
						return err
					}
					fmt.Fprintln(e.out, "Access key deleted")
					return nil
				}),
			},
		},
	}
}

func editAccessWithFlags(c *cli.Context, e *env, id string) (*models.AccessKey, error) {
	rows, err := e.console.Access.List(c.Context)
	if err != nil {
		return nil, err
	}
	var base dialog.AccessKeyInput
	found := false
	for _, k := range rows {
		if k.Key != id {
			continue
		}
		found = true
		base = dialog.AccessKeyInput{
			Name:           k.Name,
			ExpiresInHours: accesskeys.HoursRemaining(time.Now(), k.ExpiresAt),
			IsActive:       k.IsActive,
			ResetDaily:     k.ResetDaily,
		}
		if k.UsageLimit != nil {
			base.UsageLimit = strconv.Itoa(*k.UsageLimit)
		}
	}
	if !found {
		return nil, accesskeys.ErrNotFound
	}
	form, err := dialog.ParseAccessKey(accessInput(c, base), true)
	if err != nil {
		return nil, err
	}
	return e.console.Access.Update(c.Context, id, form)
}
