// Package settings turns the /admin/env schema into editable panels, one
// per category, each saved as a whole.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gemini-console/internal/api"
	"gemini-console/internal/dialog"
	"gemini-console/internal/logger"
	"gemini-console/internal/models"
)

var (
	ErrUnknownCategory = errors.New("unknown settings category")
	ErrUnknownField    = errors.New("unknown setting")
	ErrInvalidOption   = errors.New("value is not one of the options")
	ErrCancelled       = errors.New("operation cancelled")
)

// KeysField is mirrored from the Gemini key manager instead of edited here.
const KeysField = "GEMINI_API_KEYS"

type Option struct {
	Value       string
	Description string
	Checked     bool
}

type Field struct {
	Key         string
	Label       string
	Type        string
	Description string
	Value       string
	Options     []Option
}

func (f Field) IsRadio() bool {
	return f.Type == "radio" && len(f.Options) > 0
}

// ShowDescription reports whether the field-level description is shown;
// radio groups describe each option instead.
func (f Field) ShowDescription() bool {
	return f.Description != "" && !f.IsRadio()
}

type Panel struct {
	Name   string
	Fields []Field
}

// Build lays out one panel per category in schema order.
func Build(schema models.Schema) []Panel {
	panels := make([]Panel, 0, len(schema))
	for _, c := range schema {
		p := Panel{Name: c.Name, Fields: make([]Field, 0, len(c.Settings))}
		for _, s := range c.Settings {
			p.Fields = append(p.Fields, newField(s))
		}
		panels = append(panels, p)
	}
	return panels
}

func newField(s models.Setting) Field {
	f := Field{
		Key:         s.Key,
		Label:       s.Label,
		Type:        s.Type,
		Description: s.Description,
		Value:       s.Value,
	}
	if s.IsRadio() {
		for _, o := range s.Options {
			f.Options = append(f.Options, Option{Value: o.Value, Description: o.Description})
		}
		f.check()
	}
	return f
}

func (f *Field) check() {
	for i := range f.Options {
		f.Options[i].Checked = f.Options[i].Value == f.Value
	}
}

type Updater interface {
	Update(ctx context.Context, fields map[string]string, password string) (*api.MessageResult, error)
}

// Form holds the panels and their pending edits.
type Form struct {
	backend Updater
	dialogs *dialog.Service

	mu     sync.RWMutex
	panels []Panel
	keys   func() string
}

func NewForm(backend Updater, dialogs *dialog.Service) *Form {
	return &Form{backend: backend, dialogs: dialogs}
}

// Load rebuilds the panels, discarding unsaved edits.
func (f *Form) Load(schema models.Schema) {
	panels := Build(schema)
	f.mu.Lock()
	f.panels = panels
	f.mu.Unlock()
}

// MirrorKeys makes the GEMINI_API_KEYS field follow joined().
func (f *Form) MirrorKeys(joined func() string) {
	f.mu.Lock()
	f.keys = joined
	f.mu.Unlock()
}

// Panels returns a copy of every panel with mirrored values applied.
func (f *Form) Panels() []Panel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Panel, len(f.panels))
	for i, p := range f.panels {
		out[i] = Panel{Name: p.Name, Fields: make([]Field, len(p.Fields))}
		for j, field := range p.Fields {
			field.Options = append([]Option(nil), field.Options...)
			if field.Key == KeysField && f.keys != nil {
				field.Value = f.keys()
			}
			out[i].Fields[j] = field
		}
	}
	return out
}

func (f *Form) Panel(category string) (Panel, error) {
	for _, p := range f.Panels() {
		if p.Name == category {
			return p, nil
		}
	}
	return Panel{}, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
}

// Set edits one field. Radio values must match an option.
func (f *Form) Set(category, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.panels {
		if f.panels[i].Name != category {
			continue
		}
		for j := range f.panels[i].Fields {
			field := &f.panels[i].Fields[j]
			if field.Key != key {
				continue
			}
			if field.IsRadio() && !hasOption(field.Options, value) {
				return fmt.Errorf("%w: %q for %s", ErrInvalidOption, value, key)
			}
			field.Value = value
			field.check()
			return nil
		}
		return fmt.Errorf("%w: %s/%s", ErrUnknownField, category, key)
	}
	return fmt.Errorf("%w: %s", ErrUnknownCategory, category)
}

// Values serialises a panel the way it is posted. A radio group without a
// checked option contributes nothing.
func (f *Form) Values(category string) (map[string]string, error) {
	p, err := f.Panel(category)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(p.Fields))
	for _, field := range p.Fields {
		if field.IsRadio() && !hasOption(field.Options, field.Value) {
			continue
		}
		values[field.Key] = field.Value
	}
	return values, nil
}

// Save posts every field of the category with the admin password.
func (f *Form) Save(ctx context.Context, category string) (*api.MessageResult, error) {
	values, err := f.Values(category)
	if err != nil {
		return nil, err
	}
	password, ok, err := f.dialogs.Prompt(ctx, "Confirm changes", fmt.Sprintf("Enter the admin password to save %s:", category), "", dialog.InputPassword)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCancelled
	}
	res, err := f.backend.Update(ctx, values, password)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("[SETTINGS] Saved %d fields of %s", len(values), category)
	return res, nil
}

func hasOption(options []Option, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
