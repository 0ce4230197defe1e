package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oreilly-library/internal/config"
	"oreilly-library/internal/models"
)

type fakeSearcher struct {
	pages map[string][]models.SearchPage
	calls map[string]int
}

func (f *fakeSearcher) FetchPage(topic string, page, pageSize int) (*models.SearchPage, error) {
	f.calls[topic]++
	pages := f.pages[topic]
	idx := page - 1
	if idx < 0 || idx >= len(pages) {
		return &models.SearchPage{}, nil
	}
	p := pages[idx]
	return &p, nil
}

func TestController_DiscoverSkill_FiltersAndDedupes(t *testing.T) {
	searcher := &fakeSearcher{
		calls: map[string]int{},
		pages: map[string][]models.SearchPage{
			"golang": {
				{
					Items: []models.RawSearchItem{
						{Title: "The Go Programming Language", Format: "book", ISBN: "9780134190440"},
						{Title: "Go", Format: "book"},
						{Title: "Chapter 1: Getting Started", Format: "book", ISBN: "123"},
					},
					HasNext: false,
				},
			},
			"go": {
				{
					Items: []models.RawSearchItem{
						{Title: "The Go Programming Language", Format: "book", ISBN: "9780134190440"},
					},
					HasNext: false,
				},
			},
		},
	}

	discCfg := config.DefaultDiscoveryConfig()
	discCfg.RequestDelay = 0
	discCfg.SkillDelay = 0

	c := New(searcher, config.DefaultFilterThresholds(), discCfg, t.TempDir(), nil)
	c.sleep = func(d time.Duration) {}

	result, err := c.DiscoverSkill(models.Skill{Name: "golang"}, nil, []string{"golang"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalBooks)
	assert.Equal(t, "The Go Programming Language", result.Books[0].Title)
}

func TestController_EstimatePageCap_UsesExpectedWithSlack(t *testing.T) {
	discCfg := config.DefaultDiscoveryConfig()
	discCfg.PageSize = 100
	discCfg.PageSlack = 2
	discCfg.MaxPagesAbsolute = 100

	c := New(nil, config.DefaultFilterThresholds(), discCfg, t.TempDir(), nil)
	cap := c.estimatePageCap(models.Skill{Name: "golang", Expected: 150})
	assert.Equal(t, 4, cap) // ceil(150/100) + 2
}

func TestController_EstimatePageCap_FallsBackToAbsoluteCap(t *testing.T) {
	discCfg := config.DefaultDiscoveryConfig()
	c := New(nil, config.DefaultFilterThresholds(), discCfg, t.TempDir(), nil)
	cap := c.estimatePageCap(models.Skill{Name: "golang"})
	assert.Equal(t, discCfg.MaxPagesAbsolute, cap)
}

func TestController_DiscoverSkill_SkipsTooBroadBeforeAnyRequest(t *testing.T) {
	searcher := &fakeSearcher{calls: map[string]int{}, pages: map[string][]models.SearchPage{}}

	discCfg := config.DefaultDiscoveryConfig()
	discCfg.TooBroadThreshold = 500

	outputDir := t.TempDir()
	var gotStage, gotSkill string
	c := New(searcher, config.DefaultFilterThresholds(), discCfg, outputDir, func(skill, stage, detail string) {
		gotSkill, gotStage = skill, stage
	})

	result, err := c.DiscoverSkill(models.Skill{Name: "Business", Expected: 8000}, nil, []string{"Business"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "Business", gotSkill)
	assert.Equal(t, "skill_skip_too_broad", gotStage)
	assert.Empty(t, searcher.calls)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestController_DiscoverSkill_ExpectedAtThresholdIsProcessed(t *testing.T) {
	searcher := &fakeSearcher{
		calls: map[string]int{},
		pages: map[string][]models.SearchPage{
			"golang": {{Items: []models.RawSearchItem{{Title: "The Go Programming Language", ISBN: "9780134190440"}}}},
		},
	}

	discCfg := config.DefaultDiscoveryConfig()
	discCfg.TooBroadThreshold = 500
	discCfg.RequestDelay = 0
	discCfg.SkillDelay = 0

	outputDir := t.TempDir()
	c := New(searcher, config.DefaultFilterThresholds(), discCfg, outputDir, nil)
	c.sleep = func(d time.Duration) {}

	result, err := c.DiscoverSkill(models.Skill{Name: "golang", Expected: 500}, nil, []string{"golang"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotZero(t, searcher.calls["golang"])

	_, err = os.Stat(filepath.Join(outputDir, "golang.json"))
	assert.NoError(t, err)
}
