// Package media browses and prunes files held by the proxy's media storage
// backends.
package media

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/logger"
	"gemini-console/internal/models"
)

var (
	ErrNothingSelected = errors.New("no files selected")
	ErrNotOnPage       = errors.New("file is not on the current page")
	ErrInvalidPageSize = errors.New("page size must be one of 10, 20, 50 or 100")
	ErrCancelled       = errors.New("operation cancelled")
)

const DefaultStorage = "local"

type Backend interface {
	Media(ctx context.Context, storageType string, page, pageSize int) (*models.MediaPage, error)
	DeleteMedia(ctx context.Context, storageType string, filenames []string) (*api.MessageResult, error)
	StorageDetails(ctx context.Context, storageType string) (*models.StorageDetails, error)
}

// Gallery holds the rendered page, its selection and the storage quota.
type Gallery struct {
	backend Backend
	dialogs *dialog.Service

	mu         sync.RWMutex
	files      []models.MediaFile
	pagination Pagination
	selected   map[string]bool
	selectAll  bool
	quota      *Quota
}

func NewGallery(backend Backend, dialogs *dialog.Service) *Gallery {
	return &Gallery{
		backend:  backend,
		dialogs:  dialogs,
		selected: map[string]bool{},
		pagination: Pagination{
			Page:        1,
			PageSize:    PageSizes[0],
			StorageType: DefaultStorage,
		},
	}
}

// Fetch loads one page. The selection is cleared because the rendered
// items change; on error the previous page stays.
func (g *Gallery) Fetch(ctx context.Context, page, pageSize int, storageType string) ([]models.MediaFile, error) {
	if !ValidPageSize(pageSize) {
		return nil, ErrInvalidPageSize
	}
	if page < 1 {
		page = 1
	}
	if storageType == "" {
		storageType = DefaultStorage
	}

	result, err := g.backend.Media(ctx, storageType, page, pageSize)
	if err != nil {
		logger.Sugar.Warnf("[MEDIA] Failed to fetch %s page %d: %v", storageType, page, err)
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.files = result.Files
	g.pagination = Pagination{
		Page:        result.Page,
		PageSize:    result.PageSize,
		StorageType: storageType,
		Total:       result.Total,
	}
	g.selected = map[string]bool{}
	g.selectAll = false
	logger.Sugar.Debugf("[MEDIA] %s %s", storageType, g.pagination)
	return slices.Clone(g.files), nil
}

// Refresh refetches the current page.
func (g *Gallery) Refresh(ctx context.Context) ([]models.MediaFile, error) {
	p := g.Pagination()
	return g.Fetch(ctx, p.Page, p.PageSize, p.StorageType)
}

func (g *Gallery) NextPage(ctx context.Context) ([]models.MediaFile, error) {
	p := g.Pagination()
	if !p.HasNext() {
		return g.Files(), nil
	}
	return g.Fetch(ctx, p.Page+1, p.PageSize, p.StorageType)
}

func (g *Gallery) PrevPage(ctx context.Context) ([]models.MediaFile, error) {
	p := g.Pagination()
	if !p.HasPrev() {
		return g.Files(), nil
	}
	return g.Fetch(ctx, p.Page-1, p.PageSize, p.StorageType)
}

// SetPageSize reloads from page 1 with the new size.
func (g *Gallery) SetPageSize(ctx context.Context, size int) ([]models.MediaFile, error) {
	return g.Fetch(ctx, 1, size, g.Pagination().StorageType)
}

// SwitchStorage reloads page 1 and the quota for another backend. Both
// requests are issued; the first error is returned.
func (g *Gallery) SwitchStorage(ctx context.Context, storageType string) error {
	_, fetchErr := g.Fetch(ctx, 1, g.Pagination().PageSize, storageType)
	_, quotaErr := g.LoadQuota(ctx, storageType)
	if fetchErr != nil {
		return fetchErr
	}
	return quotaErr
}

func (g *Gallery) Files() []models.MediaFile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.files)
}

func (g *Gallery) Pagination() Pagination {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pagination
}

// Toggle flips the selection of one file on the current page.
func (g *Gallery) Toggle(filename string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.onPage(filename) {
		return false, ErrNotOnPage
	}
	g.selected[filename] = !g.selected[filename]
	return g.selected[filename], nil
}

// ToggleAll flips the select-all state and applies it to every file.
func (g *Gallery) ToggleAll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selectAll = !g.selectAll
	for _, f := range g.files {
		g.selected[f.Filename] = g.selectAll
	}
	return g.selectAll
}

func (g *Gallery) AllSelected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selectAll
}

// Selected returns the selected filenames in page order.
func (g *Gallery) Selected() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, f := range g.files {
		if g.selected[f.Filename] {
			out = append(out, f.Filename)
		}
	}
	return out
}

// DeleteSelected removes the selected files after confirmation and reloads
// the current page.
func (g *Gallery) DeleteSelected(ctx context.Context) (*api.MessageResult, error) {
	names := g.Selected()
	if len(names) == 0 {
		return nil, ErrNothingSelected
	}
	ok, err := g.dialogs.Confirm(ctx, "Delete files",
		fmt.Sprintf("Delete the %d selected files? This cannot be undone.", len(names)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	storage := g.Pagination().StorageType
	res, err := g.backend.DeleteMedia(ctx, storage, names)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[MEDIA] Deleted %d files from %s: %s", len(names), storage, res.Message)
	_, err = g.Refresh(ctx)
	return res, err
}

// Viewer opens the image/video viewer on a file of the current page.
func (g *Gallery) Viewer(filename string) (*Viewer, error) {
	return NewViewer(g.Files(), filename)
}

// onPage requires mu.
func (g *Gallery) onPage(filename string) bool {
	return slices.ContainsFunc(g.files, func(f models.MediaFile) bool { return f.Filename == filename })
}
