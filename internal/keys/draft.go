package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gemini-console/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Drafts persists the staged key lists per profile so unsaved edits survive
// between CLI invocations, and keeps a history of check outcomes.
type Drafts struct {
	db *gorm.DB
}

func NewDrafts(db *gorm.DB) *Drafts {
	return &Drafts{db: db}
}

// Load returns the stored snapshot, or nil when the profile has none.
func (d *Drafts) Load(profile string) (*Snapshot, error) {
	var draft models.KeyDraft
	err := d.db.Where("profile = ?", profile).First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load key draft: %w", err)
	}
	snap := &Snapshot{
		Current:  splitLines(draft.Current),
		Original: splitLines(draft.Original),
		Invalid:  splitLines(draft.Invalid),
	}
	if draft.States != "" {
		if err := json.Unmarshal([]byte(draft.States), &snap.States); err != nil {
			return nil, fmt.Errorf("failed to decode key states: %w", err)
		}
	}
	return snap, nil
}

func (d *Drafts) Save(profile string, snap Snapshot) error {
	states, err := json.Marshal(snap.States)
	if err != nil {
		return fmt.Errorf("failed to encode key states: %w", err)
	}
	draft := &models.KeyDraft{
		Profile:   profile,
		Current:   strings.Join(snap.Current, "\n"),
		Original:  strings.Join(snap.Original, "\n"),
		Invalid:   strings.Join(snap.Invalid, "\n"),
		States:    string(states),
		UpdatedAt: time.Now(),
	}
	err = d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}},
		DoUpdates: clause.AssignmentColumns([]string{"current", "original", "invalid", "states", "updated_at"}),
	}).Create(draft).Error
	if err != nil {
		return fmt.Errorf("failed to save key draft: %w", err)
	}
	return nil
}

func (d *Drafts) Discard(profile string) error {
	return d.db.Delete(&models.KeyDraft{}, "profile = ?", profile).Error
}

func (d *Drafts) RecordCheck(entry *models.KeyCheckLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return d.db.Create(entry).Error
}

// RecentChecks returns the latest check outcomes for a profile, newest first.
func (d *Drafts) RecentChecks(profile string, limit int) ([]models.KeyCheckLog, error) {
	var logs []models.KeyCheckLog
	query := d.db.Where("profile = ?", profile).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&logs).Error
	return logs, err
}

// RunSummary aggregates one check run.
type RunSummary struct {
	RunID        string
	Model        string
	Total        int64
	Valid        int64
	AvgLatencyMs float64
	StartedAt    time.Time
}

// RecentRuns summarises the latest check runs, newest first.
func (d *Drafts) RecentRuns(profile string, limit int) ([]RunSummary, error) {
	var rows []struct {
		RunID        string
		Model        string
		Total        int64
		Valid        int64
		AvgLatencyMs float64
		StartedAt    string
	}
	err := d.db.Model(&models.KeyCheckLog{}).
		Select(`run_id, MAX(model) as model, COUNT(*) as total,
				COALESCE(SUM(CASE WHEN valid THEN 1 ELSE 0 END), 0) as valid,
				COALESCE(AVG(latency_ms), 0) as avg_latency_ms,
				MIN(created_at) as started_at`).
		Where("profile = ?", profile).
		Group("run_id").
		Order("started_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, RunSummary{
			RunID:        r.RunID,
			Model:        r.Model,
			Total:        r.Total,
			Valid:        r.Valid,
			AvgLatencyMs: r.AvgLatencyMs,
			StartedAt:    parseSQLiteTime(r.StartedAt),
		})
	}
	return out, nil
}

// parseSQLiteTime reads the text form the sqlite driver stores for time.Time.
func parseSQLiteTime(v string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
