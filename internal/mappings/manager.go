// Package mappings manages the proxy's prefix → upstream URL routing table.
package mappings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/logger"
	"gemini-console/internal/models"
)

var (
	ErrDuplicatePrefix = errors.New("a mapping with this prefix already exists")
	ErrNotFound        = errors.New("mapping not found")
	ErrCancelled       = errors.New("operation cancelled")
)

type Backend interface {
	APIMappings(ctx context.Context) ([]models.APIMapping, error)
	CreateAPIMapping(ctx context.Context, m models.APIMapping) (*api.MessageResult, error)
	UpdateAPIMapping(ctx context.Context, oldPrefix string, m models.APIMapping) (*api.MessageResult, error)
	DeleteAPIMapping(ctx context.Context, prefix string) (*api.MessageResult, error)
}

type Manager struct {
	backend Backend
	dialogs *dialog.Service

	mu   sync.RWMutex
	rows []models.APIMapping
}

func NewManager(backend Backend, dialogs *dialog.Service) *Manager {
	return &Manager{backend: backend, dialogs: dialogs}
}

// NormalizePrefix makes sure the prefix starts with "/".
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || strings.HasPrefix(prefix, "/") {
		return prefix
	}
	return "/" + prefix
}

// List refetches the table in server order.
func (m *Manager) List(ctx context.Context) ([]models.APIMapping, error) {
	rows, err := m.backend.APIMappings(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.rows = rows
	m.mu.Unlock()
	return slices.Clone(rows), nil
}

func (m *Manager) Rows() []models.APIMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rows)
}

// Add asks for a mapping and creates it.
func (m *Manager) Add(ctx context.Context) (*api.MessageResult, error) {
	in, ok, err := m.dialogs.Mapping(ctx, "New API mapping", dialog.MappingInput{})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	return m.Create(ctx, models.APIMapping{Prefix: in.Prefix, TargetURL: in.TargetURL})
}

func (m *Manager) Create(ctx context.Context, mapping models.APIMapping) (*api.MessageResult, error) {
	mapping, err := normalize(mapping)
	if err != nil {
		return nil, err
	}
	rows, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if indexOf(rows, mapping.Prefix) >= 0 {
		return nil, ErrDuplicatePrefix
	}
	res, err := m.backend.CreateAPIMapping(ctx, mapping)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[MAPPINGS] Added %s -> %s", mapping.Prefix, mapping.TargetURL)
	_, err = m.List(ctx)
	return res, err
}

// Edit shows the mapping for prefix in the form and saves the result.
func (m *Manager) Edit(ctx context.Context, prefix string) (*api.MessageResult, error) {
	rows, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(rows, NormalizePrefix(prefix))
	if i < 0 {
		return nil, ErrNotFound
	}
	current := rows[i]
	in, ok, err := m.dialogs.Mapping(ctx, "Edit API mapping", dialog.MappingInput{Prefix: current.Prefix, TargetURL: current.TargetURL})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	return m.update(ctx, rows, current.Prefix, models.APIMapping{Prefix: in.Prefix, TargetURL: in.TargetURL})
}

// Update replaces the mapping at oldPrefix without a dialog.
func (m *Manager) Update(ctx context.Context, oldPrefix string, mapping models.APIMapping) (*api.MessageResult, error) {
	rows, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	oldPrefix = NormalizePrefix(oldPrefix)
	if indexOf(rows, oldPrefix) < 0 {
		return nil, ErrNotFound
	}
	return m.update(ctx, rows, oldPrefix, mapping)
}

func (m *Manager) update(ctx context.Context, rows []models.APIMapping, oldPrefix string, mapping models.APIMapping) (*api.MessageResult, error) {
	mapping, err := normalize(mapping)
	if err != nil {
		return nil, err
	}
	if mapping.Prefix != oldPrefix && indexOf(rows, mapping.Prefix) >= 0 {
		return nil, ErrDuplicatePrefix
	}
	res, err := m.backend.UpdateAPIMapping(ctx, oldPrefix, mapping)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[MAPPINGS] Updated %s -> %s %s", oldPrefix, mapping.Prefix, mapping.TargetURL)
	_, err = m.List(ctx)
	return res, err
}

func (m *Manager) Delete(ctx context.Context, prefix string) (*api.MessageResult, error) {
	prefix = NormalizePrefix(prefix)
	ok, err := m.dialogs.Confirm(ctx, "Delete API mapping", fmt.Sprintf("Delete mapping %s?", prefix))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	res, err := m.backend.DeleteAPIMapping(ctx, prefix)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[MAPPINGS] Deleted %s", prefix)
	_, err = m.List(ctx)
	return res, err
}

func normalize(mapping models.APIMapping) (models.APIMapping, error) {
	mapping.Prefix = NormalizePrefix(mapping.Prefix)
	mapping.TargetURL = strings.TrimSpace(mapping.TargetURL)
	if mapping.Prefix == "" || mapping.TargetURL == "" {
		return mapping, dialog.ErrMappingRequired
	}
	return mapping, nil
}

func indexOf(rows []models.APIMapping, prefix string) int {
	return slices.IndexFunc(rows, func(r models.APIMapping) bool { return r.Prefix == prefix })
}
