package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"gemini-console/internal/api"
	"gemini-console/internal/config"
	"gemini-console/internal/console"
	"gemini-console/internal/database"
	"gemini-console/internal/dialog"
	"gemini-console/internal/keys"
	"gemini-console/internal/logger"
	"gemini-console/internal/runner"
	"gemini-console/internal/session"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "geminictl",
		Usage:   "administer a Gemini proxy from the terminal",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Value:   config.DefaultPath(),
				EnvVars: []string{"GEMINICTL_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "proxy base URL (overrides config)",
				EnvVars: []string{"GEMINICTL_BASE_URL"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "verbose logging",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			settingsCommand(),
			mappingsCommand(),
			keysCommand(),
			accessCommand(),
			mediaCommand(),
			watchCommand(),
			hashPasswordCommand(),
		},
		ExitErrHandler: func(c *cli.Context, err error) {},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		os.Exit(report(os.Stderr, err))
	}
}

// report prints err for the user and returns the exit code. Transport
// failures get a generic message; the cause goes to the log.
func report(w io.Writer, err error) int {
	var netErr *api.NetworkError
	var exitErr cli.ExitCoder
	switch {
	case console.Cancelled(err):
		fmt.Fprintln(w, "Operation cancelled.")
		return 2
	case errors.As(err, &netErr):
		logger.Sugar.Errorf("[CLI] %v", err)
		fmt.Fprintln(w, "Error: the proxy could not be reached. Check server.base_url and your network.")
		return 1
	case errors.As(err, &exitErr):
		fmt.Fprintln(w, "Error:", err)
		return exitErr.ExitCode()
	}
	fmt.Fprintln(w, "Error:", err)
	return 1
}

// env is the per-invocation wiring shared by every command.
type env struct {
	cfgPath string
	cfg     *config.Config
	db      *gorm.DB
	guard   *session.Guard
	client  *api.Client
	dialogs *dialog.Service
	console *console.Console
	out     io.Writer

	stopDialogs func()
}

type envOptions struct {
	jsonLogs bool
	observer keys.Observer
	// noDraft runs the key manager in memory only.
	noDraft bool
}

func setup(c *cli.Context, opts envOptions) (*env, error) {
	cfgPath := c.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if base := c.String("base-url"); base != "" {
		cfg.Server.BaseURL = base
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	if err := logger.Init(c.Bool("debug") || cfg.Logging.IsDebug(), opts.jsonLogs); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger, using silent: %v\n", err)
		logger.InitSilent()
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	profile := cfg.Server.BaseURL
	guard := session.NewGuard(session.NewStore(db), profile)
	client := api.New(api.Options{
		BaseURL: cfg.Server.BaseURL,
		Timeout: cfg.Server.Timeout(),
		HTTP2:   cfg.Server.HTTP2,
	}, guard)

	dialogs := dialog.New()
	stopDialogs := dialog.Start(c.Context, dialogs, dialog.NewTerminal(os.Stdin, os.Stderr))

	keyOpts := keys.Options{
		Profile:      profile,
		DefaultModel: cfg.Checks.DefaultModel,
		Runner:       runner.New(cfg.Checks.Concurrency, cfg.Checks.Delay()),
		Observer:     opts.observer,
	}
	if !opts.noDraft {
		keyOpts.Drafts = keys.NewDrafts(db)
	}

	e := &env{
		cfgPath: cfgPath,
		cfg:     cfg,
		db:      db,
		guard:   guard,
		client:  client,
		dialogs: dialogs,
		console: console.New(client, guard, dialogs, console.Options{
			Keys:        keyOpts,
			StorageType: cfg.Media.StorageType,
			PageSize:    cfg.Media.PageSize,
		}),
		out:         c.App.Writer,
		stopDialogs: stopDialogs,
	}
	return e, nil
}

func (e *env) close() {
	e.stopDialogs()
	if err := database.Close(e.db); err != nil {
		logger.Sugar.Warnf("[CLI] Failed to close database: %v", err)
	}
	logger.Sync()
}

// load opens the dashboard; failed list panels are reported, not fatal.
func (e *env) load(ctx context.Context) error {
	res, err := e.console.Load(ctx)
	if err != nil {
		return err
	}
	for panel, perr := range res.Errors {
		fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", panel, console.MapError(perr))
	}
	return nil
}

// action wraps a command body with setup, teardown and error mapping.
func action(fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return actionWith(envOptions{}, fn)
}

func actionWith(opts envOptions, fn func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := setup(c, opts)
		if err != nil {
			return err
		}
		defer e.close()
		return console.MapError(fn(c, e))
	}
}

// message prints a backend confirmation when there is one.
func (e *env) message(res *api.MessageResult, fallback string) {
	if res != nil && res.Message != "" {
		fmt.Fprintln(e.out, res.Message)
		return
	}
	fmt.Fprintln(e.out, fallback)
}
