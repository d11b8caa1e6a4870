package main

import (
	"time"

	"gemini-console/internal/config"
	"gemini-console/internal/logger"
	"gemini-console/internal/watch"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "re-check the server's Gemini keys periodically and serve metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "listen address (defaults to watch.listen)"},
			&cli.DurationFlag{Name: "interval", Usage: "time between check runs (defaults to watch.interval_seconds)"},
			&cli.BoolFlag{Name: "json-logs", Usage: "log as JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			interval := cfg.Watch.Interval()
			if c.IsSet("interval") {
				interval = c.Duration("interval")
			}
			listen := cfg.Watch.Listen
			if c.IsSet("listen") {
				listen = c.String("listen")
			}

			monitor := watch.New(watch.Options{
				Interval:            interval,
				MetricsEnabled:      cfg.Watch.Metrics.Enabled,
				MetricsUsername:     cfg.Watch.Metrics.Username,
				MetricsPasswordHash: cfg.Watch.Metrics.PasswordHash,
				RateLimitPerMinute:  cfg.Watch.RateLimitPerMinute,
			})
			// The watched list is always the server copy; local drafts are
			// left alone.
			run := actionWith(envOptions{jsonLogs: c.Bool("json-logs"), observer: monitor, noDraft: true}, func(c *cli.Context, e *env) error {
				if _, err := e.guard.Token(); err != nil {
					return err
				}
				monitor.AttachDB(e.db)
				logger.Sugar.Infof("[WATCH] Checking %s every %s", e.cfg.Server.BaseURL, interval.Round(time.Second))

				g, ctx := errgroup.WithContext(c.Context)
				g.Go(func() error { return monitor.Serve(ctx, listen) })
				g.Go(func() error { return monitor.Run(ctx, e.console.Keys) })
				return g.Wait()
			})
			return run(c)
		},
	}
}
