package keys

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/logger"
	"gemini-console/internal/models"
	"gemini-console/internal/runner"

	"github.com/google/uuid"
)

const (
	// Category and Field locate the key list in the /admin/env schema.
	Category = "API与访问控制"
	Field    = "GEMINI_API_KEYS"

	DefaultModel = "gemini-2.0-flash"
)

// Backend is the part of the admin API the key manager uses.
type Backend interface {
	Env(ctx context.Context) (models.Schema, error)
	Update(ctx context.Context, fields map[string]string, password string) (*api.MessageResult, error)
	CheckGeminiKey(ctx context.Context, key string) (models.KeyCheckResult, error)
	CheckGeminiKeyReal(ctx context.Context, key, model string) (models.KeyCheckResult, error)
}

// Run describes one bulk check. Model is empty for the plain liveness check.
type Run struct {
	ID    string
	Model string
	Total int
}

// Result is the outcome of checking one key.
type Result struct {
	Key      string
	Status   Status
	Message  string
	Duration time.Duration
}

// Report summarises a finished bulk check.
type Report struct {
	Run      Run
	Checked  int
	Valid    int
	Invalid  []string
	Duration time.Duration
}

// Observer is told about check progress; the watch server feeds its metrics
// and websocket clients from it.
type Observer interface {
	CheckStarted(run Run)
	KeyChecked(run Run, res Result)
	CheckFinished(report Report)
}

type nopObserver struct{}

func (nopObserver) CheckStarted(Run)       {}
func (nopObserver) KeyChecked(Run, Result) {}
func (nopObserver) CheckFinished(Report)   {}

type Options struct {
	Profile      string
	DefaultModel string
	Runner       *runner.Runner
	// Drafts persists the store after every change; nil keeps it in memory.
	Drafts   *Drafts
	Observer Observer
}

// BulkResult reports the effect of a bulk add or delete.
type BulkResult struct {
	Added    int
	Skipped  int
	Removed  int
	NotFound int
}

type Manager struct {
	store        *Store
	backend      Backend
	dialogs      *dialog.Service
	runner       *runner.Runner
	drafts       *Drafts
	observer     Observer
	profile      string
	defaultModel string

	busy atomic.Bool
}

func NewManager(backend Backend, dialogs *dialog.Service, opts Options) *Manager {
	m := &Manager{
		store:        NewStore(),
		backend:      backend,
		dialogs:      dialogs,
		runner:       opts.Runner,
		drafts:       opts.Drafts,
		observer:     opts.Observer,
		profile:      opts.Profile,
		defaultModel: opts.DefaultModel,
	}
	if m.runner == nil {
		m.runner = runner.New(1, 200*time.Millisecond)
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.defaultModel == "" {
		m.defaultModel = DefaultModel
	}
	return m
}

func (m *Manager) Store() *Store {
	return m.store
}

// Busy reports whether a bulk check is running.
func (m *Manager) Busy() bool {
	return m.busy.Load()
}

// Restore loads the persisted draft, reporting whether one existed.
func (m *Manager) Restore() (bool, error) {
	if m.drafts == nil {
		return false, nil
	}
	snap, err := m.drafts.Load(m.profile)
	if err != nil || snap == nil {
		return false, err
	}
	m.store.Restore(*snap)
	return true, nil
}

// LoadSchema takes the key list from a fetched schema. Unsaved local edits
// win over the server copy.
func (m *Manager) LoadSchema(schema models.Schema) error {
	if m.store.Modified() {
		logger.Sugar.Infof("[KEYS] Keeping %d staged keys with unsaved changes", m.store.Len())
		return nil
	}
	var list []string
	if setting, ok := schema.Lookup(Category, Field); ok {
		list = ParseList(setting.Value)
	} else {
		logger.Sugar.Warnf("[KEYS] %s/%s missing from the settings schema", Category, Field)
	}
	m.store.Load(list)
	logger.Sugar.Debugf("[KEYS] Loaded %d keys", len(list))
	return m.persist()
}

// Pull replaces the working list with the server copy, asking first when
// that would discard unsaved changes.
func (m *Manager) Pull(ctx context.Context) error {
	if m.store.Modified() {
		ok, err := m.dialogs.Confirm(ctx, "Discard changes", "The key list has unsaved changes. Discard them and reload from the server?")
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
	}
	schema, err := m.backend.Env(ctx)
	if err != nil {
		return err
	}
	var list []string
	if setting, ok := schema.Lookup(Category, Field); ok {
		list = ParseList(setting.Value)
	}
	m.store.Load(list)
	return m.persist()
}

// Add stages one key, prompting for it when key is empty.
func (m *Manager) Add(ctx context.Context, key string) error {
	if key == "" {
		v, ok, err := m.dialogs.Prompt(ctx, "Add key", "Enter the new Gemini API key:", "", dialog.InputText)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
		key = v
	}
	if err := m.store.Add(key); err != nil {
		return err
	}
	return m.persist()
}

// Edit renames oldKey, prompting for the new value when newKey is empty.
func (m *Manager) Edit(ctx context.Context, oldKey, newKey string) error {
	if !slices.Contains(m.store.Current(), oldKey) {
		return ErrKeyNotFound
	}
	if newKey == "" {
		v, ok, err := m.dialogs.Prompt(ctx, "Edit key", "Edit the Gemini API key:", oldKey, dialog.InputText)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
		newKey = v
	}
	if err := m.store.Edit(oldKey, newKey); err != nil {
		return err
	}
	return m.persist()
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	if !slices.Contains(m.store.Current(), key) {
		return ErrKeyNotFound
	}
	ok, err := m.dialogs.Confirm(ctx, "Delete key", fmt.Sprintf("Delete key %q?", Mask(key)))
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	if err := m.store.Delete(key); err != nil {
		return err
	}
	return m.persist()
}

// BulkAdd stages newline-separated keys. Duplicates are only skipped after
// the user agrees; declining leaves the list untouched.
func (m *Manager) BulkAdd(ctx context.Context, text string) (BulkResult, error) {
	if strings.TrimSpace(text) == "" {
		v, ok, err := m.dialogs.Textarea(ctx, "Bulk add keys", "One key per line:", "")
		if err != nil {
			return BulkResult{}, err
		}
		if !ok {
			return BulkResult{}, ErrCancelled
		}
		text = v
	}

	plan := m.store.PlanBulkAdd(text)
	if len(plan.Add) == 0 && len(plan.Duplicates) == 0 {
		return BulkResult{}, ErrEmptyKey
	}
	if len(plan.Duplicates) > 0 {
		msg := fmt.Sprintf("%d of %d keys already exist. Skip them and add the remaining %d?",
			len(plan.Duplicates), len(plan.Add)+len(plan.Duplicates), len(plan.Add))
		ok, err := m.dialogs.Confirm(ctx, "Duplicate keys", msg)
		if err != nil {
			return BulkResult{}, err
		}
		if !ok {
			return BulkResult{}, ErrCancelled
		}
	}

	added, skipped := m.store.BulkAdd(text)
	logger.Sugar.Infof("[KEYS] Bulk add: %d added, %d skipped", added, skipped)
	return BulkResult{Added: added, Skipped: skipped}, m.persist()
}

// BulkDelete removes newline-separated keys after confirmation.
func (m *Manager) BulkDelete(ctx context.Context, text string) (BulkResult, error) {
	if strings.TrimSpace(text) == "" {
		v, ok, err := m.dialogs.Textarea(ctx, "Bulk delete keys", "One key per line:", "")
		if err != nil {
			return BulkResult{}, err
		}
		if !ok {
			return BulkResult{}, ErrCancelled
		}
		text = v
	}
	lines := splitLines(text)
	if len(lines) == 0 {
		return BulkResult{}, ErrEmptyKey
	}
	ok, err := m.dialogs.Confirm(ctx, "Bulk delete", fmt.Sprintf("Delete %d keys from the list?", len(lines)))
	if err != nil {
		return BulkResult{}, err
	}
	if !ok {
		return BulkResult{}, ErrCancelled
	}
	return m.bulkDelete(text)
}

func (m *Manager) bulkDelete(text string) (BulkResult, error) {
	removed, notFound := m.store.BulkDelete(text)
	logger.Sugar.Infof("[KEYS] Bulk delete: %d removed, %d not found", removed, notFound)
	return BulkResult{Removed: removed, NotFound: notFound}, m.persist()
}

// Save persists the working list with the admin password. On failure the
// working list stays as it is and remains modified.
func (m *Manager) Save(ctx context.Context) (*api.MessageResult, error) {
	if !m.store.Modified() {
		return nil, ErrNotModified
	}
	password, ok, err := m.dialogs.Prompt(ctx, "Confirm", "Enter the admin password to save the key list:", "", dialog.InputPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}

	res, err := m.backend.Update(ctx, map[string]string{Field: m.store.Joined()}, password)
	if err != nil {
		logger.Sugar.Warnf("[KEYS] Save failed: %v", err)
		return nil, err
	}
	m.store.MarkSaved()
	logger.Sugar.Infof("[KEYS] Saved %d keys", m.store.Len())
	return res, m.persist()
}

// MarkSaved records that joined reached the server through the settings
// panel carrying the key field. A list edited since then stays modified.
func (m *Manager) MarkSaved(joined string) error {
	if m.store.Joined() != joined {
		return nil
	}
	m.store.MarkSaved()
	return m.persist()
}

// CheckOne checks a single key from the working list.
func (m *Manager) CheckOne(ctx context.Context, key string) (Result, error) {
	if !slices.Contains(m.store.Current(), key) {
		return Result{}, ErrKeyNotFound
	}
	run := Run{ID: uuid.NewString(), Total: 1}
	res, err := m.check(ctx, run, key)
	if perr := m.persist(); err == nil {
		err = perr
	}
	return res, err
}

// CheckAll clears the invalid list and checks a snapshot of the working list.
func (m *Manager) CheckAll(ctx context.Context) (Report, error) {
	return m.checkAll(ctx, "")
}

// CheckReal runs a real generation per key against model, prompting for the
// model when it is empty.
func (m *Manager) CheckReal(ctx context.Context, model string) (Report, error) {
	if model == "" {
		v, ok, err := m.dialogs.Prompt(ctx, "Real check", "Model to test each key against:", m.defaultModel, dialog.InputText)
		if err != nil {
			return Report{}, err
		}
		model = strings.TrimSpace(v)
		if !ok || model == "" {
			return Report{}, ErrCancelled
		}
	}
	return m.checkAll(ctx, model)
}

func (m *Manager) checkAll(ctx context.Context, model string) (Report, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return Report{}, ErrBusy
	}
	defer m.busy.Store(false)

	keys := m.store.Current()
	m.store.resetChecks()
	run := Run{ID: uuid.NewString(), Model: model, Total: len(keys)}
	report := Report{Run: run}
	start := time.Now()

	m.observer.CheckStarted(run)
	logger.Sugar.Infof("[KEYS] Checking %d keys (run %s)", len(keys), run.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result, len(keys))
	err := m.runner.Run(runCtx, len(keys), func(ctx context.Context, i int) error {
		res, err := m.check(ctx, run, keys[i])
		results[i] = res
		if errors.Is(err, api.ErrUnauthorized) {
			// Every later call would be rejected too.
			cancel()
			return err
		}
		return nil
	})

	for _, res := range results {
		switch res.Status {
		case StatusValid:
			report.Checked++
			report.Valid++
		case StatusInvalid, StatusFailed:
			report.Checked++
		}
	}
	report.Invalid = m.store.Invalid()
	report.Duration = time.Since(start)
	m.observer.CheckFinished(report)
	logger.Sugar.Infof("[KEYS] Check finished: %d/%d valid, %d invalid in %s",
		report.Valid, report.Checked, len(report.Invalid), report.Duration.Round(time.Millisecond))

	if perr := m.persist(); perr != nil {
		logger.Sugar.Warnf("[KEYS] Failed to persist draft: %v", perr)
	}
	if errors.Is(err, api.ErrUnauthorized) {
		return report, api.ErrUnauthorized
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, nil
}

// check runs one liveness check. Failed requests count as invalid; an
// interrupted or unauthorised one leaves the key unchecked.
func (m *Manager) check(ctx context.Context, run Run, key string) (Result, error) {
	m.store.setState(key, CheckState{Status: StatusChecking})
	start := time.Now()

	var verdict models.KeyCheckResult
	var err error
	if run.Model == "" {
		verdict, err = m.backend.CheckGeminiKey(ctx, key)
	} else {
		verdict, err = m.backend.CheckGeminiKeyReal(ctx, key, run.Model)
	}
	res := Result{Key: key, Duration: time.Since(start)}

	switch {
	case err != nil && (ctx.Err() != nil || errors.Is(err, api.ErrUnauthorized)):
		res.Status = StatusUnchecked
		m.store.setState(key, CheckState{Status: StatusUnchecked})
		return res, err
	case err != nil:
		res.Status = StatusFailed
		res.Message = err.Error()
	case verdict.Valid:
		res.Status = StatusValid
		res.Message = verdict.Message
	default:
		res.Status = StatusInvalid
		res.Message = verdict.Message
	}
	m.store.setState(key, CheckState{Status: res.Status, Message: res.Message})
	m.observer.KeyChecked(run, res)
	m.record(run, res)
	logger.Sugar.Debugf("[KEYS] %s: %s (%s)", Mask(key), res.Status, res.Message)
	return res, err
}

func (m *Manager) record(run Run, res Result) {
	if m.drafts == nil {
		return
	}
	entry := &models.KeyCheckLog{
		Profile:   m.profile,
		RunID:     run.ID,
		KeyHint:   Mask(res.Key),
		Model:     run.Model,
		Valid:     res.Status == StatusValid,
		Message:   res.Message,
		LatencyMs: int(res.Duration.Milliseconds()),
	}
	if err := m.drafts.RecordCheck(entry); err != nil {
		logger.Sugar.Warnf("[KEYS] Failed to record check: %v", err)
	}
}

// DeleteInvalid offers the keys flagged by the last check for review and
// removes whatever the user leaves in the list.
func (m *Manager) DeleteInvalid(ctx context.Context) (BulkResult, error) {
	invalid := m.store.Invalid()
	if len(invalid) == 0 {
		return BulkResult{}, ErrNothingInvalid
	}
	text, ok, err := m.dialogs.Textarea(ctx, "Delete invalid keys",
		fmt.Sprintf("%d keys failed the last check. Remove any you want to keep, then confirm:", len(invalid)),
		strings.Join(invalid, "\n"))
	if err != nil {
		return BulkResult{}, err
	}
	if !ok {
		return BulkResult{}, ErrCancelled
	}
	return m.bulkDelete(text)
}

// Discard drops the local draft; the next load takes the server copy.
func (m *Manager) Discard() error {
	m.store.Load(nil)
	if m.drafts == nil {
		return nil
	}
	return m.drafts.Discard(m.profile)
}

func (m *Manager) persist() error {
	if m.drafts == nil {
		return nil
	}
	return m.drafts.Save(m.profile, m.store.Snapshot())
}

// Mask hides the middle of a key for logs and metrics labels.
func Mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + "..." + key[len(key)-4:]
}
