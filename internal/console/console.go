// Package console wires the admin panels together and loads them the way the
// dashboard does on open: settings first, then every list panel at once.
package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gemini-console/internal/accesskeys"
	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/keys"
	"gemini-console/internal/logger"
	"gemini-console/internal/mappings"
	"gemini-console/internal/media"
	"gemini-console/internal/session"
	"gemini-console/internal/settings"

	"golang.org/x/sync/errgroup"
)

// ErrCancelled is returned when a dialog opened by the console itself is
// dismissed.
var ErrCancelled = errors.New("operation cancelled")

type Panel string

const (
	PanelMappings Panel = "mappings"
	PanelAccess   Panel = "access keys"
	PanelQuota    Panel = "storage"
	PanelMedia    Panel = "media"
)

// Backend is everything the panels need from the admin API.
type Backend interface {
	keys.Backend
	mappings.Backend
	accesskeys.Backend
	media.Backend
}

// Tokens is the session the console is bound to.
type Tokens interface {
	Token() (string, error)
}

type Options struct {
	Keys        keys.Options
	StorageType string
	PageSize    int
}

type Console struct {
	Dialogs  *dialog.Service
	Settings *settings.Form
	Keys     *keys.Manager
	Mappings *mappings.Manager
	Access   *accesskeys.Manager
	Media    *media.Gallery

	backend     Backend
	tokens      Tokens
	storageType string
	pageSize    int
	restore     sync.Once
}

func New(backend Backend, tokens Tokens, dialogs *dialog.Service, opts Options) *Console {
	c := &Console{
		Dialogs:     dialogs,
		Settings:    settings.NewForm(backend, dialogs),
		Keys:        keys.NewManager(backend, dialogs, opts.Keys),
		Mappings:    mappings.NewManager(backend, dialogs),
		Access:      accesskeys.NewManager(backend, dialogs),
		Media:       media.NewGallery(backend, dialogs),
		backend:     backend,
		tokens:      tokens,
		storageType: opts.StorageType,
		pageSize:    opts.PageSize,
	}
	if c.storageType == "" {
		c.storageType = media.DefaultStorage
	}
	if !media.ValidPageSize(c.pageSize) {
		c.pageSize = media.PageSizes[0]
	}
	c.Settings.MirrorKeys(c.Keys.Store().Joined)
	return c
}

// LoadResult carries the per-panel failures of a load. Panels not listed
// loaded fine.
type LoadResult struct {
	Errors map[Panel]error
}

func (r *LoadResult) OK() bool {
	return len(r.Errors) == 0
}

// Err joins the panel failures in a stable order.
func (r *LoadResult) Err() error {
	if r.OK() {
		return nil
	}
	panels := make([]string, 0, len(r.Errors))
	for p := range r.Errors {
		panels = append(panels, string(p))
	}
	sort.Strings(panels)
	errs := make([]error, 0, len(panels))
	for _, p := range panels {
		errs = append(errs, fmt.Errorf("%s: %w", p, r.Errors[Panel(p)]))
	}
	return errors.Join(errs...)
}

// Load requires a session, builds settings and the key list from
// /admin/env and then loads the list panels concurrently. A failing list
// panel does not stop the others; a rejected token stops everything.
func (c *Console) Load(ctx context.Context) (*LoadResult, error) {
	if _, err := c.tokens.Token(); err != nil {
		return nil, err
	}

	var restoreErr error
	c.restore.Do(func() {
		var restored bool
		restored, restoreErr = c.Keys.Restore()
		if restored {
			logger.Sugar.Infof("[CONSOLE] Restored local key draft (%d keys)", c.Keys.Store().Len())
		}
	})
	if restoreErr != nil {
		logger.Sugar.Warnf("[CONSOLE] Failed to restore key draft: %v", restoreErr)
	}

	schema, err := c.backend.Env(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	c.Settings.Load(schema)
	if err := c.Keys.LoadSchema(schema); err != nil {
		logger.Sugar.Warnf("[CONSOLE] Failed to persist key draft: %v", err)
	}

	result := &LoadResult{Errors: map[Panel]error{}}
	var mu sync.Mutex
	var g errgroup.Group
	load := func(p Panel, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logger.Sugar.Warnf("[CONSOLE] Failed to load %s: %v", p, err)
				mu.Lock()
				result.Errors[p] = err
				mu.Unlock()
			}
			return nil
		})
	}
	load(PanelMappings, func() error {
		_, err := c.Mappings.List(ctx)
		return err
	})
	load(PanelAccess, func() error {
		_, err := c.Access.List(ctx)
		return err
	})
	load(PanelQuota, func() error {
		_, err := c.Media.LoadQuota(ctx, c.storageType)
		return err
	})
	load(PanelMedia, func() error {
		_, err := c.Media.Fetch(ctx, 1, c.pageSize, c.storageType)
		return err
	})
	g.Wait()

	for _, err := range result.Errors {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, session.ErrSessionExpired
		}
	}
	logger.Sugar.Debugf("[CONSOLE] Loaded %d settings panels, %d failed list panels", len(c.Settings.Panels()), len(result.Errors))
	return result, nil
}

// SaveSettings saves one settings panel. Saving the panel that carries the
// Gemini key list also settles the key manager's staged changes.
func (c *Console) SaveSettings(ctx context.Context, category string) (*api.MessageResult, error) {
	values, err := c.Settings.Values(category)
	if err != nil {
		return nil, err
	}
	res, err := c.Settings.Save(ctx, category)
	if err != nil {
		return nil, MapError(err)
	}
	if joined, ok := values[settings.KeysField]; ok {
		if err := c.Keys.MarkSaved(joined); err != nil {
			logger.Sugar.Warnf("[CONSOLE] Failed to persist key draft: %v", err)
		}
	}
	return res, nil
}

// MapError turns a rejected token into the session error the user acts on.
func MapError(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return session.ErrSessionExpired
	}
	return err
}

// Cancelled reports whether err is a dismissed dialog from any panel.
func Cancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, keys.ErrCancelled) ||
		errors.Is(err, settings.ErrCancelled) ||
		errors.Is(err, mappings.ErrCancelled) ||
		errors.Is(err, accesskeys.ErrCancelled) ||
		errors.Is(err, media.ErrCancelled)
}
