package main

import (
	"gemini-console/internal/api"
	"gemini-console/internal/console"
	"gemini-console/internal/mappings"
	"gemini-console/internal/models"

	"github.com/urfave/cli/v2"
)

func mappingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "prefix", Usage: "path prefix, e.g. /openai"},
		&cli.StringFlag{Name: "target", Usage: "target base URL"},
	}
}

func mappingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "mappings",
		Usage: "manage API path mappings",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list mappings in server order",
				Action: action(func(c *cli.Context, e *env) error {
					rows, err := e.console.Mappings.List(c.Context)
					if err != nil {
						return err
					}
					return console.RenderMappings(e.out, rows)
				}),
			},
			{
				Name:  "add",
				Usage: "add a mapping (form when flags are omitted)",
				Flags: mappingFlags(),
				Action: action(func(c *cli.Context, e *env) error {
					var res *api.MessageResult
					var err error
					if c.IsSet("prefix") || c.IsSet("target") {
						res, err = e.console.Mappings.Create(c.Context, models.APIMapping{
							Prefix:    c.String("prefix"),
							TargetURL: c.String("target"),
						})
					} else {
						res, err = e.console.Mappings.Add(c.Context)
					}
					if err != nil {
						return err
					}
					e.message(res, "Mapping added")
					return console.RenderMappings(e.out, e.console.Mappings.Rows())
				}),
			},
			{
				Name:      "edit",
				Usage:     "change a mapping (form when flags are omitted)",
				ArgsUsage: "<prefix>",
				Flags:     mappingFlags(),
				Action: action(func(c *cli.Context, e *env) error {
					prefix := c.Args().First()
					if prefix == "" {
						return cli.Exit("usage: geminictl mappings edit <prefix>", 1)
					}
					var res *api.MessageResult
					var err error
					if c.IsSet("prefix") || c.IsSet("target") {
						res, err = editMappingWithFlags(c, e, prefix)
					} else {
						res, err = e.console.Mappings.Edit(c.Context, prefix)
					}
					if err != nil {
						return err
					}
					e.message(res, "Mapping updated")
					return console.RenderMappings(e.out, e.console.Mappings.Rows())
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete a mapping",
				ArgsUsage: "<prefix>",
				Action: action(func(c *cli.Context, e *env) error {
					prefix := c.Args().First()
					if prefix == "" {
						return cli.Exit("usage: geminictl mappings delete <prefix>", 1)
					}
					res, err := e.console.Mappings.Delete(c.Context, prefix)
					if err != nil {
						return err
					}
					e.message(res, "Mapping deleted")
					return nil
				}),
			},
		},
	}
}

// editMappingWithFlags keeps whichever side of the mapping was not given.
func editMappingWithFlags(c *cli.Context, e *env, prefix string) (*api.MessageResult, error) {
	rows, err := e.console.Mappings.List(c.Context)
	if err != nil {
		return nil, err
	}
	next := models.APIMapping{Prefix: c.String("prefix"), TargetURL: c.String("target")}
	for _, m := range rows {
		if m.Prefix == mappings.NormalizePrefix(prefix) {
			if next.Prefix == "" {
				next.Prefix = m.Prefix
			}
			if next.TargetURL == "" {
				next.TargetURL = m.TargetURL
			}
		}
	}
	return e.console.Mappings.Update(c.Context, prefix, next)
}
