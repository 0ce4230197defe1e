// Package progress implements the Progress Tracker: a durable JSON
// snapshot of a discovery or download run, with ETA/throughput
// computation and a bounded checkpoint ring.
//
// Grounded directly on progress_tracker.py's ProgressTracker class —
// the schema (session/overall_stats/books_stats/performance/
// current_activity/completed_items/failed_items/checkpoints), the
// checkpoint-ring cap of 10, and the ETA formula are all lifted from
// that file's methods.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"oreilly-library/internal/apperrors"
)

// schemaVersion is bumped whenever the on-disk snapshot shape changes
// in a way migrateV0 needs to handle. spec.md §9 flags the original
// format as undocumented/versionless; this field makes future schema
// changes self-describing instead of requiring a second silent
// heuristic migration.
const schemaVersion = 1

// Session records identity and lifecycle state for one run.
type Session struct {
	SchemaVersion int       `json:"schema_version"`
	SessionID     string    `json:"session_id"`
	Type          string    `json:"type"` // "discovery" or "download"
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	LastUpdate    time.Time `json:"last_update"`
}

// OverallStats tracks skill-level completion counts.
type OverallStats struct {
	TotalSkills      int    `json:"total_skills"`
	CompletedSkills  int    `json:"completed_skills"`
	InProgressSkill  string `json:"in_progress_skill,omitempty"`
	FailedSkills     int    `json:"failed_skills"`
	SkippedSkills    int    `json:"skipped_skills"`
}

// BooksStats tracks book-level completion counts.
type BooksStats struct {
	TotalBooksDiscovered int `json:"total_books_discovered"`
	DownloadedBooks      int `json:"downloaded_books"`
	FailedBooks          int `json:"failed_books"`
	SkippedBooks         int `json:"skipped_books"`
}

// Performance tracks throughput and ETA.
type Performance struct {
	AverageItemsPerMinute         float64   `json:"average_items_per_minute"`
	EstimatedTimeRemainingMinutes int       `json:"estimated_time_remaining_minutes"`
	TotalElapsedSeconds           float64   `json:"total_elapsed_seconds"`
	LastSpeedCheck                time.Time `json:"last_speed_check"`
}

// CurrentActivity tracks what the run is doing right now, for
// tail -f-style human inspection.
type CurrentActivity struct {
	CurrentSkill         string `json:"current_skill,omitempty"`
	CurrentSkillProgress string `json:"current_skill_progress"`
	CurrentItem          string `json:"current_item,omitempty"`
	CurrentItemID        string `json:"current_item_id,omitempty"`
}

// Checkpoint is one point-in-time rollup, retained for the last 10.
type Checkpoint struct {
	Timestamp        time.Time `json:"timestamp"`
	CompletedItems   int       `json:"completed_items"`
	CompletedSkills  int       `json:"completed_skills"`
	FailedItems      int       `json:"failed_items"`
}

// Snapshot is the full on-disk progress document.
type Snapshot struct {
	Session         Session          `json:"session"`
	OverallStats    OverallStats     `json:"overall_stats"`
	BooksStats      BooksStats       `json:"books_stats"`
	Performance     Performance      `json:"performance"`
	CurrentActivity CurrentActivity  `json:"current_activity"`
	CompletedItems  []string         `json:"completed_items"`
	FailedItems     map[string]string `json:"failed_items"`
	SkillsCompleted []string         `json:"skills_completed"`
	SkillsPending   []string         `json:"skills_pending"`
	Checkpoints     []Checkpoint     `json:"checkpoints"`
}

const maxCheckpoints = 10

func newSnapshot(sessionType string) *Snapshot {
	now := time.Now()
	return &Snapshot{
		Session: Session{
			SchemaVersion: schemaVersion,
			SessionID:     uuid.NewString(),
			Type:          sessionType,
			Status:        "initialized",
			StartTime:     now,
			LastUpdate:    now,
		},
		CurrentActivity: CurrentActivity{CurrentSkillProgress: "0/0"},
		CompletedItems:  []string{},
		FailedItems:     map[string]string{},
		SkillsCompleted: []string{},
		SkillsPending:   []string{},
		Checkpoints:     []Checkpoint{},
	}
}

// legacyV0 mirrors the pre-schema_version on-disk shape: a flat
// "downloaded"/"failed"/"timestamp" document with no session wrapper.
// Grounded on progress_tracker.py's _upgrade_format.
type legacyV0 struct {
	Downloaded []string          `json:"downloaded"`
	Failed     map[string]string `json:"failed"`
	Timestamp  float64           `json:"timestamp"`
}

func migrateV0(data []byte, sessionType string) (*Snapshot, error) {
	var old legacyV0
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("parse legacy progress file: %w", err)
	}

	snap := newSnapshot(sessionType)
	if old.Downloaded != nil {
		snap.CompletedItems = old.Downloaded
		snap.BooksStats.DownloadedBooks = len(old.Downloaded)
	}
	if old.Failed != nil {
		snap.FailedItems = old.Failed
		snap.BooksStats.FailedBooks = len(old.Failed)
	}
	if old.Timestamp > 0 {
		snap.Session.LastUpdate = time.Unix(int64(old.Timestamp), 0)
	}
	return snap, nil
}

// Tracker owns the mutable Snapshot and persists it to path on every
// mutating call, mirroring progress_tracker.py's save-on-every-write
// behavior.
type Tracker struct {
	mu   sync.Mutex
	path string
	data *Snapshot
}

// Load reads an existing snapshot from path, migrating a legacy
// schema-less document if found, or creates a fresh one of sessionType
// if the file does not exist.
func Load(path, sessionType string) (*Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tracker{path: path, data: newSnapshot(sessionType)}, nil
		}
		return nil, apperrors.New(apperrors.KindFilesystem, "read progress file", err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, apperrors.New(apperrors.KindFilesystem, "parse progress file", err)
	}

	if _, hasSession := probe["session"]; !hasSession {
		snap, err := migrateV0(data, sessionType)
		if err != nil {
			return nil, apperrors.New(apperrors.KindFilesystem, "migrate legacy progress file", err)
		}
		return &Tracker{path: path, data: snap}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.New(apperrors.KindFilesystem, "parse progress file", err)
	}
	if snap.FailedItems == nil {
		snap.FailedItems = map[string]string{}
	}
	return &Tracker{path: path, data: &snap}, nil
}

// save writes the snapshot atomically (temp file + rename) and stamps
// LastUpdate, matching the Credential Store's persistence pattern.
func (t *Tracker) save() error {
	t.data.Session.LastUpdate = time.Now()

	if dir := filepath.Dir(t.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.New(apperrors.KindFilesystem, "create progress dir", err)
		}
	}

	out, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return apperrors.New(apperrors.KindFilesystem, "marshal progress snapshot", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "write progress snapshot", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "commit progress snapshot", err)
	}
	return nil
}

// StartSession resets the session start time and stamps expected totals.
func (t *Tracker) StartSession(totalSkills, totalBooks int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Session.Status = "in_progress"
	t.data.Session.StartTime = time.Now()
	t.data.OverallStats.TotalSkills = totalSkills
	t.data.BooksStats.TotalBooksDiscovered = totalBooks
	return t.save()
}

func (t *Tracker) PauseSession() error  { return t.setStatus("paused") }
func (t *Tracker) ResumeSession() error { return t.setStatus("in_progress") }
func (t *Tracker) CompleteSession() error { return t.setStatus("completed") }

func (t *Tracker) setStatus(status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.Session.Status = status
	return t.save()
}

// UpdateCurrentSkill records which skill is in flight.
func (t *Tracker) UpdateCurrentSkill(skillName string, current, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.CurrentActivity.CurrentSkill = skillName
	t.data.CurrentActivity.CurrentSkillProgress = fmt.Sprintf("%d/%d", current, total)
	t.data.OverallStats.InProgressSkill = skillName
	return t.save()
}

// UpdateCurrentItem records which book is in flight.
func (t *Tracker) UpdateCurrentItem(itemName, itemID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.CurrentActivity.CurrentItem = itemName
	t.data.CurrentActivity.CurrentItemID = itemID
	return t.save()
}

// AddCompletedItem records a finished book, clearing any prior failure
// entry for it, then recomputes throughput/ETA.
func (t *Tracker) AddCompletedItem(itemID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !contains(t.data.CompletedItems, itemID) {
		t.data.CompletedItems = append(t.data.CompletedItems, itemID)
		t.data.BooksStats.DownloadedBooks = len(t.data.CompletedItems)
	}
	if _, failed := t.data.FailedItems[itemID]; failed {
		delete(t.data.FailedItems, itemID)
		t.data.BooksStats.FailedBooks = len(t.data.FailedItems)
	}

	t.updatePerformance()
	return t.save()
}

// AddFailedItem records a book failure with its error message.
func (t *Tracker) AddFailedItem(itemID, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.FailedItems[itemID] = errMsg
	t.data.BooksStats.FailedBooks = len(t.data.FailedItems)
	return t.save()
}

// CompleteSkill marks a skill done and clears the in-progress marker.
func (t *Tracker) CompleteSkill(skillName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !contains(t.data.SkillsCompleted, skillName) {
		t.data.SkillsCompleted = append(t.data.SkillsCompleted, skillName)
		t.data.OverallStats.CompletedSkills = len(t.data.SkillsCompleted)
	}
	t.data.SkillsPending = remove(t.data.SkillsPending, skillName)
	t.data.CurrentActivity.CurrentSkill = ""
	t.data.OverallStats.InProgressSkill = ""
	return t.save()
}

// SetPendingSkills replaces the pending-skills list, excluding any
// already marked complete — the mechanism that makes resume skip
// finished skills.
func (t *Tracker) SetPendingSkills(skills []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := make([]string, 0, len(skills))
	for _, s := range skills {
		if !contains(t.data.SkillsCompleted, s) {
			pending = append(pending, s)
		}
	}
	t.data.SkillsPending = pending
	return t.save()
}

// updatePerformance recomputes throughput and ETA from elapsed time
// and completed-item count. Caller must hold t.mu.
func (t *Tracker) updatePerformance() {
	now := time.Now()
	elapsed := now.Sub(t.data.Session.StartTime).Seconds()
	t.data.Performance.TotalElapsedSeconds = elapsed

	completed := len(t.data.CompletedItems)
	if elapsed > 0 && completed > 0 {
		itemsPerMinute := (float64(completed) / elapsed) * 60
		t.data.Performance.AverageItemsPerMinute = round2(itemsPerMinute)

		remaining := t.data.BooksStats.TotalBooksDiscovered - completed
		if itemsPerMinute > 0 {
			t.data.Performance.EstimatedTimeRemainingMinutes = int(roundHalfAwayFromZero(float64(remaining) / itemsPerMinute))
		} else {
			t.data.Performance.EstimatedTimeRemainingMinutes = 0
		}
	}
	t.data.Performance.LastSpeedCheck = now
}

// CreateCheckpoint appends a rollup snapshot, retaining only the last
// maxCheckpoints entries.
func (t *Tracker) CreateCheckpoint() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := Checkpoint{
		Timestamp:       time.Now(),
		CompletedItems:  len(t.data.CompletedItems),
		CompletedSkills: len(t.data.SkillsCompleted),
		FailedItems:     len(t.data.FailedItems),
	}
	t.data.Checkpoints = append(t.data.Checkpoints, cp)
	if len(t.data.Checkpoints) > maxCheckpoints {
		t.data.Checkpoints = t.data.Checkpoints[len(t.data.Checkpoints)-maxCheckpoints:]
	}
	return t.save()
}

// ProgressPercentage returns (skillsPercent, booksPercent).
func (t *Tracker) ProgressPercentage() (float64, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var skillsPct, booksPct float64
	if t.data.OverallStats.TotalSkills > 0 {
		skillsPct = float64(t.data.OverallStats.CompletedSkills) / float64(t.data.OverallStats.TotalSkills) * 100
	}
	if t.data.BooksStats.TotalBooksDiscovered > 0 {
		booksPct = float64(t.data.BooksStats.DownloadedBooks) / float64(t.data.BooksStats.TotalBooksDiscovered) * 100
	}
	return skillsPct, booksPct
}

// ETAString renders the current ETA as "Calculating...", "<m>m",
// "<h>h <m>m" or "<d>d <h>h" depending on magnitude.
func (t *Tracker) ETAString() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	eta := t.data.Performance.EstimatedTimeRemainingMinutes
	switch {
	case eta <= 0:
		return "Calculating..."
	case eta < 60:
		return fmt.Sprintf("%dm", eta)
	case eta < 1440:
		return fmt.Sprintf("%dh %dm", eta/60, eta%60)
	default:
		return fmt.Sprintf("%dd %dh", eta/1440, (eta%1440)/60)
	}
}

// Snapshot returns a copy of the current document for read-only
// consumers such as the status HTTP surface.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.data
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func roundHalfAwayFromZero(f float64) float64 {
	if f < 0 {
		return -roundHalfAwayFromZero(-f)
	}
	return float64(int(f + 0.5))
}
