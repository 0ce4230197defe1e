package epub

import (
	"archive/zip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oreilly-library/internal/models"
)

type fakeFetcher struct {
	meta     models.BookMetadata
	chapters []models.Chapter
	toc      []models.TOCItem
	html     map[string]string
	assets   map[string][]byte
}

func (f *fakeFetcher) FetchBookMetadata(string) (models.BookMetadata, error) { return f.meta, nil }
func (f *fakeFetcher) FetchChapterIndex(string) ([]models.Chapter, error)    { return f.chapters, nil }
func (f *fakeFetcher) FetchTOC(string) ([]models.TOCItem, error)             { return f.toc, nil }
func (f *fakeFetcher) FetchChapterHTML(ch models.Chapter) (string, error) {
	return f.html[ch.ContentURL], nil
}
func (f *fakeFetcher) FetchAsset(url string) ([]byte, error) { return f.assets[url], nil }

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		meta: models.BookMetadata{
			Title:   "Test Driven Go",
			Authors: []string{"Ada Lovelace"},
			ISBN:    "9780000000001",
		},
		chapters: []models.Chapter{
			{Position: 1, Title: "Intro", Filename: "ch01.html", ContentURL: "https://example.test/ch01"},
			{Position: 2, Title: "Concurrency", Filename: "ch02.html", ContentURL: "https://example.test/ch02"},
		},
		toc: []models.TOCItem{
			{Label: "Intro", Href: "ch01.html", Depth: 1},
			{Label: "Concurrency", Href: "ch02.html", Depth: 1},
		},
		html: map[string]string{
			"https://example.test/ch01": `<div id="sbo-rt-content"><h1>Intro</h1><img src="images/fig1.png"/></div>`,
			"https://example.test/ch02": `<div id="sbo-rt-content"><h1>Concurrency</h1></div>`,
		},
		assets: map[string][]byte{
			"api/v2/epubs/urn:orm:book:9999/files/images/fig1.png": []byte("fake-png-bytes"),
		},
	}
}

func TestBuilder_Build_ProducesValidZipStructure(t *testing.T) {
	f := newFakeFetcher()
	b := &Builder{Fetcher: f, WorkDir: t.TempDir()}

	result, err := b.Build("9999", []models.Variant{models.VariantEnhanced})
	require.NoError(t, err)

	epubPath := result.EpubPaths[models.VariantEnhanced]
	require.NotEmpty(t, epubPath)

	zr, err := zip.OpenReader(epubPath)
	require.NoError(t, err)
	defer zr.Close()

	require.NotEmpty(t, zr.File)
	assert.Equal(t, "mimetype", zr.File[0].Name)
	assert.Equal(t, zip.Store, zr.File[0].Method)

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["OEBPS/content.opf"])
	assert.True(t, names["OEBPS/toc.ncx"])
	assert.True(t, names["OEBPS/nav.xhtml"])
	assert.True(t, names["META-INF/container.xml"])
	assert.True(t, names["OEBPS/ch01.xhtml"])
	assert.True(t, names["OEBPS/ch02.xhtml"])
}

func TestBuilder_Build_LegacyVariantOmitsNav(t *testing.T) {
	f := newFakeFetcher()
	b := &Builder{Fetcher: f, WorkDir: t.TempDir()}

	result, err := b.Build("9999", []models.Variant{models.VariantLegacy})
	require.NoError(t, err)

	zr, err := zip.OpenReader(result.EpubPaths[models.VariantLegacy])
	require.NoError(t, err)
	defer zr.Close()

	for _, f := range zr.File {
		assert.NotEqual(t, "OEBPS/nav.xhtml", f.Name)
	}
}

func TestBuilder_Build_DualVariantsDoNotCrossContaminate(t *testing.T) {
	f := newFakeFetcher()
	b := &Builder{Fetcher: f, WorkDir: t.TempDir()}

	result, err := b.Build("9999", []models.Variant{models.VariantEnhanced, models.VariantKindle})
	require.NoError(t, err)

	enhanced, err := zip.OpenReader(result.EpubPaths[models.VariantEnhanced])
	require.NoError(t, err)
	defer enhanced.Close()
	kindle, err := zip.OpenReader(result.EpubPaths[models.VariantKindle])
	require.NoError(t, err)
	defer kindle.Close()

	kindleOPF := readZipEntry(t, kindle, "OEBPS/content.opf")
	enhancedOPF := readZipEntry(t, enhanced, "OEBPS/content.opf")

	assert.Contains(t, string(kindleOPF), "is_kindle")
	assert.NotContains(t, string(enhancedOPF), "is_kindle")
}

type countingFetcher struct {
	*fakeFetcher
	assetCalls int
}

func (f *countingFetcher) FetchAsset(url string) ([]byte, error) {
	f.assetCalls++
	return f.fakeFetcher.FetchAsset(url)
}

func TestBuilder_Build_ReusesAlreadyDownloadedAssetsOnSecondRun(t *testing.T) {
	f := &countingFetcher{fakeFetcher: newFakeFetcher()}
	workDir := t.TempDir()

	_, err := (&Builder{Fetcher: f, WorkDir: workDir}).Build("9999", []models.Variant{models.VariantEnhanced})
	require.NoError(t, err)
	firstRunCalls := f.assetCalls
	require.NotZero(t, firstRunCalls)

	_, err = (&Builder{Fetcher: f, WorkDir: workDir}).Build("9999", []models.Variant{models.VariantEnhanced})
	require.NoError(t, err)

	assert.Equal(t, firstRunCalls, f.assetCalls, "second build over the same work dir should fetch zero assets")
}

func readZipEntry(t *testing.T, zr *zip.ReadCloser, name string) []byte {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			require.NoError(t, err)
			defer rc.Close()
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			return data
		}
	}
	t.Fatalf("entry %s not found", name)
	return nil
}
