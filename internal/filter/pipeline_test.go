package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"oreilly-library/internal/config"
	"oreilly-library/internal/models"
)

func newTestPipeline() *Pipeline {
	return New(config.DefaultFilterThresholds(), "kubernetes", []string{"k8s"})
}

func TestPipeline_AcceptsPlainBook(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{
		Title:    "Kubernetes Up and Running",
		Format:   "book",
		Language: "en",
		ISBN:     "9781492046530",
		Subjects: []string{"kubernetes", "devops"},
	})
	assert.True(t, v.Keep)
	assert.Equal(t, "9781492046530", v.Book.ID)
}

func TestPipeline_RejectsVideoFormat(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "Kubernetes Deep Dive", Format: "video"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageFormat, v.Stage)
}

func TestPipeline_RejectsNonEnglish(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "Kubernetes en Pratique", Format: "book", Language: "fr"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageLanguage, v.Stage)
}

func TestPipeline_RejectsShortTitle(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "K8s", Format: "book"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageTitleLength, v.Stage)
}

func TestPipeline_RejectsMediumTitleWithoutISBN(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "K8s Intro", Format: "book"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageTitleLength, v.Stage)
}

func TestPipeline_RejectsChapterLikeTitle(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "Chapter 3: Deployments and Services", Format: "book", ISBN: "123"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageChapterLike, v.Stage)
}

func TestPipeline_RejectsNumericOnlyTitle(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "12345", Format: "book", ISBN: "123"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageNumericOnly, v.Stage)
}

func TestPipeline_RejectsNonBookKeywordWithoutISBN(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "Kubernetes Fundamentals Video Course", Format: "book"})
	assert.False(t, v.Keep)
	assert.Equal(t, StageNeedsISBN, v.Stage)
}

func TestPipeline_RejectsDuplicateWithinBatch(t *testing.T) {
	p := newTestPipeline()
	item := models.RawSearchItem{Title: "Kubernetes Up and Running", Format: "book", ISBN: "9781492046530"}
	first := p.Apply(item)
	second := p.Apply(item)
	assert.True(t, first.Keep)
	assert.False(t, second.Keep)
	assert.Equal(t, StageDuplicate, second.Stage)
}

func TestPipeline_AcceptsLongTitleWithoutISBN(t *testing.T) {
	p := newTestPipeline()
	v := p.Apply(models.RawSearchItem{Title: "Kubernetes Patterns for Cloud Native Applications", Format: "book"})
	assert.True(t, v.Keep)
}
