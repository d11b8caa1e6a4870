package models

import (
	"time"
)

// Setting is one configurable field of the proxy, as described by /admin/env.
type Setting struct {
	Key         string          `json:"-"`
	Label       string          `json:"label"`
	Type        string          `json:"type"`
	Value       string          `json:"value"`
	Description string          `json:"description,omitempty"`
	Options     []SettingOption `json:"options,omitempty"`
}

type SettingOption struct {
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// IsRadio reports whether the setting renders as a radio group.
func (s Setting) IsRadio() bool {
	return s.Type == "radio" && len(s.Options) > 0
}

// Category groups settings that are saved together.
type Category struct {
	Name     string    `json:"name"`
	Settings []Setting `json:"settings"`
}

// Schema is the ordered category list returned by /admin/env.
type Schema []Category

func (s Schema) Category(name string) *Category {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}

func (s Schema) Lookup(category, key string) (Setting, bool) {
	c := s.Category(category)
	if c == nil {
		return Setting{}, false
	}
	for _, setting := range c.Settings {
		if setting.Key == key {
			return setting, true
		}
	}
	return Setting{}, false
}

type APIMapping struct {
	Prefix    string `json:"prefix"`
	TargetURL string `json:"target_url"`
}

type AccessKey struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	UsageLimit *int   `json:"usage_limit"`
	UsageCount int    `json:"usage_count"`
	ExpiresAt  *int64 `json:"expires_at"`
	IsActive   bool   `json:"is_active"`
	ResetDaily bool   `json:"reset_daily"`
}

// Unlimited reports whether the key has no usage cap.
func (k AccessKey) Unlimited() bool {
	return k.UsageLimit == nil
}

func (k AccessKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && *k.ExpiresAt <= now.Unix()
}

type MediaFile struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
}

type MediaPage struct {
	Files    []MediaFile `json:"media_files"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

type StorageDetails struct {
	TotalImages int     `json:"total_images"`
	MaxImages   int     `json:"max_images"`
	TotalSizeMB float64 `json:"total_size_mb"`
	MaxSizeMB   float64 `json:"max_size_mb"`
}

// KeyCheckResult is the backend's verdict on one Gemini key.
type KeyCheckResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// AdminSession holds the bearer token issued by the proxy login page.
type AdminSession struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Profile   string    `gorm:"type:varchar(255);uniqueIndex" json:"profile"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// KeyDraft is the locally staged Gemini key list between CLI invocations.
// Lists are stored newline-joined because keys never contain newlines.
type KeyDraft struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Profile   string    `gorm:"type:varchar(255);uniqueIndex" json:"profile"`
	Current   string    `gorm:"type:text" json:"current"`
	Original  string    `gorm:"type:text" json:"original"`
	Invalid   string    `gorm:"type:text" json:"invalid"`
	States    string    `gorm:"type:text" json:"states"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyCheckLog records one liveness check outcome.
type KeyCheckLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Profile   string    `gorm:"type:varchar(255);index" json:"profile"`
	RunID     string    `gorm:"type:varchar(36);index" json:"run_id"`
	KeyHint   string    `gorm:"type:varchar(32)" json:"key_hint"`
	Model     string    `gorm:"type:varchar(100)" json:"model"`
	Valid     bool      `json:"valid"`
	Message   string    `gorm:"type:text" json:"message"`
	LatencyMs int       `json:"latency_ms"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
