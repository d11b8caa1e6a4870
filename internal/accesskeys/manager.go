// Package accesskeys manages the proxy's access key records. Unlike the
// Gemini key list every change is sent to the backend immediately.
package accesskeys

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/logger"
	"gemini-console/internal/models"
)

var (
	ErrDuplicateName = errors.New("an access key with this name already exists")
	ErrNotFound      = errors.New("access key not found")
	ErrCancelled     = errors.New("operation cancelled")
)

type Backend interface {
	AccessKeys(ctx context.Context) ([]models.AccessKey, error)
	CreateAccessKey(ctx context.Context, k models.AccessKey) (*api.MessageResult, error)
	UpdateAccessKey(ctx context.Context, k models.AccessKey) (*api.MessageResult, error)
	DeleteAccessKey(ctx context.Context, key string) (*api.MessageResult, error)
}

type Manager struct {
	backend Backend
	dialogs *dialog.Service

	mu     sync.RWMutex
	rows   []models.AccessKey
	loaded bool
	filter Filter

	// now and newKey are replaced in tests.
	now    func() time.Time
	newKey func() string
}

func NewManager(backend Backend, dialogs *dialog.Service) *Manager {
	return &Manager{
		backend: backend,
		dialogs: dialogs,
		now:     time.Now,
		newKey:  func() string { return GenerateKey(DefaultKeyPrefix) },
	}
}

// List refetches every key. Rows are kept newest first, the reverse of the
// server's document order.
func (m *Manager) List(ctx context.Context) ([]models.AccessKey, error) {
	keys, err := m.backend.AccessKeys(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(keys)

	m.mu.Lock()
	m.rows = keys
	m.loaded = true
	m.mu.Unlock()
	return slices.Clone(keys), nil
}

// Rows returns every loaded key in display order.
func (m *Manager) Rows() []models.AccessKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.rows)
}

// Visible returns the loaded rows that pass the status filter.
func (m *Manager) Visible() []models.AccessKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AccessKey, 0, len(m.rows))
	for _, k := range m.rows {
		if m.filter.Match(k) {
			out = append(out, k)
		}
	}
	return out
}

func (m *Manager) Filter() Filter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter
}

func (m *Manager) SetFilter(f Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
}

// CycleFilter advances the status filter without refetching.
func (m *Manager) CycleFilter() Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = m.filter.Next()
	return m.filter
}

func (m *Manager) Header() string {
	return m.Filter().Header()
}

// Add asks for a new key through the access key form and creates it.
func (m *Manager) Add(ctx context.Context) (*models.AccessKey, error) {
	form, ok, err := m.dialogs.AccessKey(ctx, "New access key", dialog.AccessKeyInput{IsActive: true}, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	return m.Create(ctx, form)
}

// Create stores a new key from an already validated form.
func (m *Manager) Create(ctx context.Context, form dialog.AccessKeyForm) (*models.AccessKey, error) {
	if err := m.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if m.nameTaken(form.Name, "") {
		return nil, ErrDuplicateName
	}

	key := models.AccessKey{
		Key:        m.newKey(),
		Name:       form.Name,
		UsageLimit: form.UsageLimit,
		UsageCount: 0,
		ExpiresAt:  ExpiryFromHours(m.now(), form.ExpiresInHours),
		IsActive:   true,
		ResetDaily: form.ResetDaily && form.UsageLimit != nil,
	}
	if _, err := m.backend.CreateAccessKey(ctx, key); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[ACCESS] Created access key %q", key.Name)
	if _, err := m.List(ctx); err != nil {
		return &key, err
	}
	return &key, nil
}

// Edit refetches the key, shows it in the form and saves the result.
func (m *Manager) Edit(ctx context.Context, key string) (*models.AccessKey, error) {
	current, err := m.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	defaults := dialog.AccessKeyInput{
		Name:           current.Name,
		ExpiresInHours: HoursRemaining(m.now(), current.ExpiresAt),
		IsActive:       current.IsActive,
		ResetDaily:     current.ResetDaily,
	}
	if current.UsageLimit != nil {
		defaults.UsageLimit = strconv.Itoa(*current.UsageLimit)
	}

	form, ok, err := m.dialogs.AccessKey(ctx, "Edit access key", defaults, true)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	return m.update(ctx, current, form)
}

// Update saves form over key without a dialog.
func (m *Manager) Update(ctx context.Context, key string, form dialog.AccessKeyForm) (*models.AccessKey, error) {
	current, err := m.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return m.update(ctx, current, form)
}

func (m *Manager) update(ctx context.Context, current models.AccessKey, form dialog.AccessKeyForm) (*models.AccessKey, error) {
	if m.nameTaken(form.Name, current.Key) {
		return nil, ErrDuplicateName
	}
	updated := models.AccessKey{
		Key:        current.Key,
		Name:       form.Name,
		UsageLimit: form.UsageLimit,
		UsageCount: current.UsageCount,
		ExpiresAt:  keepOrConvertExpiry(m.now(), current.ExpiresAt, form.ExpiresInHours),
		IsActive:   form.IsActive,
		ResetDaily: form.ResetDaily && form.UsageLimit != nil,
	}
	if _, err := m.backend.UpdateAccessKey(ctx, updated); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[ACCESS] Updated access key %q", updated.Name)
	if _, err := m.List(ctx); err != nil {
		return &updated, err
	}
	return &updated, nil
}

// keepOrConvertExpiry keeps the stored expiry when the form still shows the
// rounded hours it was displayed with.
func keepOrConvertExpiry(now time.Time, current *int64, hours *float64) *int64 {
	if current != nil && hours != nil && strconv.FormatFloat(*hours, 'f', -1, 64) == HoursRemaining(now, current) {
		return current
	}
	return ExpiryFromHours(now, hours)
}

// Delete removes one key after confirmation.
func (m *Manager) Delete(ctx context.Context, key string) error {
	ok, err := m.dialogs.Confirm(ctx, "Delete access key", fmt.Sprintf("Delete access key %s?", key))
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	if _, err := m.backend.DeleteAccessKey(ctx, key); err != nil {
		return err
	}
	logger.Sugar.Infof("[ACCESS] Deleted access key %s", key)
	_, err = m.List(ctx)
	return err
}

// fetch refreshes the list so edits start from the server's current record.
func (m *Manager) fetch(ctx context.Context, key string) (models.AccessKey, error) {
	rows, err := m.List(ctx)
	if err != nil {
		return models.AccessKey{}, err
	}
	for _, k := range rows {
		if k.Key == key {
			return k, nil
		}
	}
	return models.AccessKey{}, ErrNotFound
}

func (m *Manager) ensureLoaded(ctx context.Context) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}
	_, err := m.List(ctx)
	return err
}

// nameTaken reports whether any key other than except is called name.
func (m *Manager) nameTaken(name, except string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.rows {
		if k.Key != except && k.Name == name {
			return true
		}
	}
	return false
}
