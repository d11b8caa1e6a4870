package main

import (
	"fmt"

	"gemini-console/internal/console"
	"gemini-console/internal/media"

	"github.com/urfave/cli/v2"
)

func pageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage", Usage: "storage backend (defaults to media.storage_type)"},
		&cli.IntFlag{Name: "page", Value: 1, Usage: "page number"},
		&cli.IntFlag{Name: "page-size", Usage: "10, 20, 50 or 100 (defaults to media.page_size)"},
	}
}

// fetchPage loads the page named by the flags into the gallery.
func fetchPage(c *cli.Context, e *env) error {
	storage := c.String("storage")
	if storage == "" {
		storage = e.cfg.Media.StorageType
	}
	size := c.Int("page-size")
	if size == 0 {
		size = e.cfg.Media.PageSize
	}
	_, err := e.console.Media.Fetch(c.Context, c.Int("page"), size, storage)
	return err
}

func mediaCommand() *cli.Command {
	return &cli.Command{
		Name:  "media",
		Usage: "browse and delete stored media",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list one page of media files",
				Flags: pageFlags(),
				Action: action(func(c *cli.Context, e *env) error {
					if err := fetchPage(c, e); err != nil {
						return err
					}
					g := e.console.Media
					return console.RenderMedia(e.out, g.Files(), g.Selected(), g.Pagination())
				}),
			},
			{
				Name:      "view",
				Usage:     "page through the images and videos of a page, starting at a file",
				ArgsUsage: "<filename>",
				Flags: append(pageFlags(),
					&cli.IntFlag{Name: "step", Usage: "move forward (positive) or back (negative) from the file"},
				),
				Action: action(func(c *cli.Context, e *env) error {
					name := c.Args().First()
					if name == "" {
						return cli.Exit("usage: geminictl media view <filename>", 1)
					}
					if err := fetchPage(c, e); err != nil {
						return err
					}
					v, err := e.console.Media.Viewer(name)
					if err != nil {
						return err
					}
					for i := 0; i < c.Int("step"); i++ {
						v.Next()
					}
					for i := 0; i > c.Int("step"); i-- {
						v.Prev()
					}
					f := v.Current()
					fmt.Fprintf(e.out, "[%d/%d] %s (%s)\n", v.Index()+1, v.Len(), f.Filename, media.MIMEType(f.Filename))
					fmt.Fprintf(e.out, "%s%s\n", e.cfg.Server.BaseURL, f.URL)
					return nil
				}),
			},
			{
				Name:      "delete",
				Usage:     "delete files from the current page",
				ArgsUsage: "<filename...>",
				Flags: append(pageFlags(),
					&cli.BoolFlag{Name: "all", Usage: "select every file on the page"},
				),
				Action: action(func(c *cli.Context, e *env) error {
					if err := fetchPage(c, e); err != nil {
						return err
					}
					g := e.console.Media
					if c.Bool("all") {
						g.ToggleAll()
					}
					for _, name := range c.Args().Slice() {
						if _, err := g.Toggle(name); err != nil {
							return fmt.Errorf("%s: %w", name, err)
						}
					}
					res, err := g.DeleteSelected(c.Context)
					if err != nil {
						return err
					}
					e.message(res, "Files deleted")
					return console.RenderMedia(e.out, g.Files(), g.Selected(), g.Pagination())
				}),
			},
			{
				Name:  "quota",
				Usage: "show storage usage",
				Flags: []cli.Flag{&cli.StringFlag{Name: "storage", Usage: "storage backend (defaults to media.storage_type)"}},
				Action: action(func(c *cli.Context, e *env) error {
					storage := c.String("storage")
					if storage == "" {
						storage = e.cfg.Media.StorageType
					}
					q, err := e.console.Media.LoadQuota(c.Context, storage)
					if err != nil {
						return err
					}
					return console.RenderQuota(e.out, q)
				}),
			},
		},
	}
}
