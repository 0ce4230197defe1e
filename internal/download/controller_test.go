package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oreilly-library/internal/auth"
	"oreilly-library/internal/config"
	"oreilly-library/internal/epub"
	"oreilly-library/internal/models"
	"oreilly-library/internal/progress"
)

type fakeFetcher struct{}

func (f *fakeFetcher) FetchBookMetadata(bookID string) (models.BookMetadata, error) {
	return models.BookMetadata{Title: "Learning Go", Authors: []string{"Ada Lovelace"}, ISBN: "9780000000001"}, nil
}
func (f *fakeFetcher) FetchChapterIndex(string) ([]models.Chapter, error) {
	return []models.Chapter{{Position: 1, Title: "Intro", Filename: "ch01.html", ContentURL: "https://example.test/ch01"}}, nil
}
func (f *fakeFetcher) FetchTOC(string) ([]models.TOCItem, error) {
	return []models.TOCItem{{Label: "Intro", Href: "ch01.html", Depth: 1}}, nil
}
func (f *fakeFetcher) FetchChapterHTML(models.Chapter) (string, error) {
	return `<div id="sbo-rt-content"><h1>Intro</h1></div>`, nil
}
func (f *fakeFetcher) FetchAsset(string) ([]byte, error) { return nil, nil }

func TestPascalizeSkillName_CapitalizesAndKeepsAcronyms(t *testing.T) {
	assert.Equal(t, "Machine Learning", PascalizeSkillName("machine learning"))
	assert.Equal(t, "AI for the Enterprise", PascalizeSkillName("ai_for_the_enterprise"))
}

func TestOrderPriorityFirst_MovesPriorityToFront(t *testing.T) {
	results := []models.SkillResult{
		{SkillName: "python"},
		{SkillName: "golang"},
		{SkillName: "rust"},
	}
	ordered := OrderPriorityFirst(results, []string{"rust"})
	require.Len(t, ordered, 3)
	assert.Equal(t, "rust", ordered[0].SkillName)
}

func TestController_Run_BuildsAndMarksCompleted(t *testing.T) {
	root := t.TempDir()

	cookiePath := filepath.Join(root, "cookies.json")
	require.NoError(t, os.WriteFile(cookiePath, []byte(`{"session":"abc"}`), 0o600))
	store, err := auth.Load(cookiePath)
	require.NoError(t, err)

	tracker, err := progress.Load(filepath.Join(root, "progress.json"), "download")
	require.NoError(t, err)

	stats, err := progress.NewLiveStats(filepath.Join(root, "live_stats.txt"))
	require.NoError(t, err)

	builder := &epub.Builder{Fetcher: &fakeFetcher{}}
	cfg := config.DefaultDownloadConfig()
	cfg.RateLimitDelaySeconds = 0

	var events []string
	c := New(builder, tracker, stats, store, cfg, filepath.Join(root, "library"),
		[]models.Variant{models.VariantEnhanced}, func(skill, bookID, stage, detail string) {
			events = append(events, stage)
		})

	results := []models.SkillResult{
		{SkillName: "golang", Books: []models.Book{{ID: "1001", Title: "Learning Go"}}},
	}

	err = c.Run(results)
	require.NoError(t, err)

	snap := tracker.Snapshot()
	assert.Contains(t, snap.CompletedItems, "1001")
	assert.Equal(t, []string{"golang"}, snap.SkillsCompleted)
	assert.Contains(t, events, "book_done")
	assert.Contains(t, events, "skill_done")

	matches, err := filepath.Glob(filepath.Join(root, "library", "Golang", "*(1001)*", "*.epub"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestController_Run_SkipsBookAlreadyOnDisk(t *testing.T) {
	root := t.TempDir()

	cookiePath := filepath.Join(root, "cookies.json")
	require.NoError(t, os.WriteFile(cookiePath, []byte(`{}`), 0o600))
	store, err := auth.Load(cookiePath)
	require.NoError(t, err)

	tracker, err := progress.Load(filepath.Join(root, "progress.json"), "download")
	require.NoError(t, err)

	stats, err := progress.NewLiveStats(filepath.Join(root, "live_stats.txt"))
	require.NoError(t, err)

	skillDir := filepath.Join(root, "library", "Golang", "Learning Go (1001)")
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "Learning Go - Ada Lovelace.epub"), []byte("x"), 0o644))

	builder := &epub.Builder{Fetcher: &fakeFetcher{}}
	c := New(builder, tracker, stats, store, config.DefaultDownloadConfig(), filepath.Join(root, "library"),
		[]models.Variant{models.VariantEnhanced}, nil)

	results := []models.SkillResult{
		{SkillName: "golang", Books: []models.Book{{ID: "1001", Title: "Learning Go"}}},
	}

	require.NoError(t, c.Run(results))

	snap := tracker.Snapshot()
	assert.Contains(t, snap.CompletedItems, "1001")
}

func TestController_Run_StopsAfterInFlightBookOnCancel(t *testing.T) {
	root := t.TempDir()

	cookiePath := filepath.Join(root, "cookies.json")
	require.NoError(t, os.WriteFile(cookiePath, []byte(`{}`), 0o600))
	store, err := auth.Load(cookiePath)
	require.NoError(t, err)

	tracker, err := progress.Load(filepath.Join(root, "progress.json"), "download")
	require.NoError(t, err)

	stats, err := progress.NewLiveStats(filepath.Join(root, "live_stats.txt"))
	require.NoError(t, err)

	builder := &epub.Builder{Fetcher: &fakeFetcher{}}
	cfg := config.DefaultDownloadConfig()
	cfg.RateLimitDelaySeconds = 0

	cancel := make(chan struct{})
	close(cancel) // already cancelled: the in-flight book still finishes

	c := New(builder, tracker, stats, store, cfg, filepath.Join(root, "library"),
		[]models.Variant{models.VariantEnhanced}, nil)
	c.Cancel = cancel

	results := []models.SkillResult{
		{SkillName: "golang", Books: []models.Book{
			{ID: "1001", Title: "Learning Go"},
			{ID: "1002", Title: "Advanced Go"},
		}},
		{SkillName: "rust", Books: []models.Book{{ID: "2001", Title: "Learning Rust"}}},
	}

	require.NoError(t, c.Run(results))

	snap := tracker.Snapshot()
	assert.Contains(t, snap.CompletedItems, "1001")
	assert.NotContains(t, snap.CompletedItems, "1002")
	assert.NotContains(t, snap.CompletedItems, "2001")
	assert.Equal(t, "paused", snap.Session.Status)
}
