// Package models holds the data types shared across the discovery and
// download pipelines, plus the job-tracking type used by the optional
// status HTTP surface.
package models

import "sync"

// Skill is a subject keyword the remote service indexes books by. It is
// read from the input catalog at job start and never mutated.
type Skill struct {
	Name     string   `yaml:"name" json:"name"`
	Expected int      `yaml:"expected,omitempty" json:"expected,omitempty"`
	Priority bool     `yaml:"priority,omitempty" json:"priority,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Book is the stable record for one title that survived the Filter
// Pipeline. ID prefers an ISBN-like digit string, falling back to an
// opaque archive identifier.
type Book struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	ISBN   string   `json:"isbn"`
	Format string   `json:"format"`
	Topics []string `json:"topics,omitempty"`
}

// SkillResult is the per-skill discovery output, persisted atomically.
type SkillResult struct {
	SkillName          string  `json:"skill_name"`
	DiscoveryTimestamp float64 `json:"discovery_timestamp"`
	TotalBooks         int     `json:"total_books"`
	Books              []Book  `json:"books"`
}

// RawSearchItem is one entry of a search response, prior to filtering.
// Field names mirror both the v1 and v2 endpoint shapes; the Search
// Adapter is responsible for populating it uniformly.
type RawSearchItem struct {
	ArchiveID string   `json:"archive_id"`
	ISBN      string   `json:"isbn"`
	OURN      string   `json:"ourn"`
	Title     string   `json:"title"`
	Format    string   `json:"format"`
	Language  string   `json:"language"`
	Subjects  []string `json:"subjects"`
	Topics    []string `json:"topics"`
	URL       string   `json:"url"`
}

// SearchPage is the normalized result of one Search Adapter call.
type SearchPage struct {
	Items     []RawSearchItem
	HasNext   bool
	TotalHint int
}

// Chapter is materialized from the remote chapter index and discarded
// once the EPUB for its book has been assembled.
type Chapter struct {
	Position     int      `json:"position"`
	Title        string   `json:"title"`
	Filename     string   `json:"filename"`
	ContentURL   string   `json:"content"`
	Stylesheets  []string `json:"stylesheets"`
	SiteStyles   []string `json:"site_styles"`
	Images       []string `json:"images"`
	AssetBaseURL string   `json:"asset_base_url"`
}

// BookMetadata is the normalized form of the remote book metadata
// document. Missing text fields default to "n/a" (Cover and WebURL
// stay empty when absent); ISBN defaults to the book identifier when
// absent.
type BookMetadata struct {
	Title       string
	Authors     []string
	Publisher   string
	ISBN        string
	Description string
	Subjects    []string
	Rights      string
	Issued      string
	Cover       string
	WebURL      string
}

// TOCItem is one node of the remote table-of-contents tree.
type TOCItem struct {
	Label    string    `json:"label"`
	Href     string    `json:"href"`
	Fragment string    `json:"fragment"`
	Depth    int       `json:"depth"`
	Children []TOCItem `json:"children"`
}

// Variant selects an EPUB generation shape.
type Variant string

const (
	VariantLegacy   Variant = "legacy"
	VariantEnhanced Variant = "enhanced"
	VariantKindle   Variant = "kindle"
)

// VariantSet resolves the CLI "legacy|enhanced|kindle|dual" shorthand
// into a concrete set of variants to render.
func VariantSet(name string) []Variant {
	switch name {
	case "legacy":
		return []Variant{VariantLegacy}
	case "kindle":
		return []Variant{VariantKindle}
	case "dual":
		return []Variant{VariantEnhanced, VariantKindle}
	default:
		return []Variant{VariantEnhanced}
	}
}

// ProgressCallback reports fine-grained stage progress from the EPUB
// Builder back up to whatever is driving it (Download Controller, or a
// one-off CLI invocation).
type ProgressCallback func(stage string, progress int, message string)

// Job tracks one in-flight or completed book build for the optional
// status HTTP surface. It is intentionally separate from the Progress
// snapshot owned by the Progress Tracker: a Job is ephemeral,
// request-scoped bookkeeping for the status API, while the snapshot is
// the durable, resumable ground truth for the whole run.
type Job struct {
	ID        string `json:"id"`
	BookID    string `json:"book_id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
	EpubPath  string `json:"epub_path,omitempty"`
	BookTitle string `json:"book_title,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Timestamp int64  `json:"timestamp"`

	mutex sync.RWMutex
}

// UpdateStatus safely updates job status.
func (j *Job) UpdateStatus(status, message string, progress int) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.Status = status
	j.Message = message
	j.Progress = progress
}

// SetError safely records a terminal error.
func (j *Job) SetError(err string) {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	j.Status = "error"
	j.Error = err
	j.Message = err
}

// GetStatus safely reads the current status triple.
func (j *Job) GetStatus() (string, string, int) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.Status, j.Message, j.Progress
}
