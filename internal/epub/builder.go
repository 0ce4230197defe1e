package epub

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"oreilly-library/internal/apperrors"
	"oreilly-library/internal/httpclient"
	"oreilly-library/internal/models"
)

// Fetcher is everything the Builder needs from the remote service,
// narrowed from the full HTTP Client so this package can be tested
// without a live session. The concrete implementation is
// RemoteFetcher, below.
type Fetcher interface {
	FetchBookMetadata(bookID string) (models.BookMetadata, error)
	FetchChapterIndex(bookID string) ([]models.Chapter, error)
	FetchTOC(bookID string) ([]models.TOCItem, error)
	FetchChapterHTML(chapter models.Chapter) (string, error)
	FetchAsset(url string) ([]byte, error)
}

// RemoteFetcher implements Fetcher against the live service, grounded
// on the teacher's GetBookInfo/GetChapters/createTOC/downloadChapter/
// downloadAsset methods.
type RemoteFetcher struct {
	Client  *httpclient.Client
	BaseURL string
}

func (f *RemoteFetcher) FetchBookMetadata(bookID string) (models.BookMetadata, error) {
	resp, err := f.Client.Get(fmt.Sprintf("%s/api/v1/book/%s/", f.BaseURL, bookID))
	if err != nil {
		return models.BookMetadata{}, err
	}
	defer resp.Body.Close()

	if !httpclient.StatusOK(resp.StatusCode) {
		return models.BookMetadata{}, apperrors.New(apperrors.KindAssembly, fmt.Sprintf("book info unavailable (status %d)", resp.StatusCode), nil)
	}

	var raw struct {
		Title       string   `json:"title"`
		Authors     []struct{ Name string `json:"name"` } `json:"authors"`
		Publishers  []struct{ Name string `json:"name"` } `json:"publishers"`
		ISBN        string   `json:"isbn"`
		Identifier  string   `json:"identifier"`
		Description string   `json:"description"`
		Subjects    []struct{ Name string `json:"name"` } `json:"subjects"`
		Rights      string   `json:"rights"`
		Issued      string   `json:"issued"`
		Cover       string   `json:"cover"`
		WebURL      string   `json:"web_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.BookMetadata{}, apperrors.New(apperrors.KindAssembly, "parse book metadata", err)
	}
	if raw.Title == "" {
		return models.BookMetadata{}, apperrors.New(apperrors.KindAssembly, "book metadata missing title", nil)
	}

	md := models.BookMetadata{
		Title:       raw.Title,
		Publisher:   orDefault(joinNames(raw.Publishers), "n/a"),
		ISBN:        orDefault(raw.ISBN, orDefault(raw.Identifier, bookID)),
		Description: orDefault(raw.Description, "n/a"),
		Rights:      orDefault(raw.Rights, "n/a"),
		Issued:      orDefault(raw.Issued, "n/a"),
		Cover:       raw.Cover,
		WebURL:      raw.WebURL,
	}
	for _, a := range raw.Authors {
		md.Authors = append(md.Authors, a.Name)
	}
	for _, s := range raw.Subjects {
		md.Subjects = append(md.Subjects, s.Name)
	}
	return md, nil
}

func joinNames(items []struct{ Name string `json:"name"` }) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return strings.Join(names, ", ")
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func (f *RemoteFetcher) FetchChapterIndex(bookID string) ([]models.Chapter, error) {
	var all []models.Chapter
	page := 1
	for {
		resp, err := f.Client.Get(fmt.Sprintf("%s/api/v1/book/%s/chapter/?page=%d", f.BaseURL, bookID, page))
		if err != nil {
			return nil, err
		}

		var body struct {
			Results []models.Chapter `json:"results"`
			Next    *string          `json:"next"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, apperrors.New(apperrors.KindAssembly, "parse chapter index", decodeErr)
		}

		var covers, regular []models.Chapter
		for _, ch := range body.Results {
			if strings.Contains(strings.ToLower(ch.Filename), "cover") || strings.Contains(strings.ToLower(ch.Title), "cover") {
				covers = append(covers, ch)
			} else {
				regular = append(regular, ch)
			}
		}
		all = append(all, covers...)
		all = append(all, regular...)

		if body.Next == nil || *body.Next == "" {
			break
		}
		page++
	}
	if len(all) == 0 {
		return nil, apperrors.New(apperrors.KindAssembly, "book has no chapters", nil)
	}
	return all, nil
}

func (f *RemoteFetcher) FetchTOC(bookID string) ([]models.TOCItem, error) {
	resp, err := f.Client.Get(fmt.Sprintf("%s/api/v1/book/%s/toc/", f.BaseURL, bookID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var toc []models.TOCItem
	if err := json.NewDecoder(resp.Body).Decode(&toc); err != nil {
		return nil, apperrors.New(apperrors.KindAssembly, "parse table of contents", err)
	}
	return toc, nil
}

func (f *RemoteFetcher) FetchChapterHTML(chapter models.Chapter) (string, error) {
	resp, err := f.Client.Get(chapter.ContentURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.New(apperrors.KindAsset, "read chapter body", err)
	}
	return string(data), nil
}

func (f *RemoteFetcher) FetchAsset(url string) ([]byte, error) {
	resp, err := f.Client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !httpclient.StatusOK(resp.StatusCode) {
		return nil, apperrors.New(apperrors.KindAsset, fmt.Sprintf("asset download failed (status %d): %s", resp.StatusCode, url), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.New(apperrors.KindAsset, "read asset body", err)
	}
	return data, nil
}

// Builder assembles one book's EPUB file(s) from remote content,
// orchestrating Fetcher, ChapterVisitor, and the OPF/NCX/nav/ZIP
// renderers. Grounded on the teacher's Client.Download top-level
// sequence (GetBookInfo -> GetChapters -> createDirectories ->
// downloadCover -> DownloadContent -> CreateEPUB).
type Builder struct {
	Fetcher   Fetcher
	WorkDir   string // scratch root; one subdirectory per book
	OnProgress models.ProgressCallback
}

func (b *Builder) progress(stage string, pct int, msg string) {
	if b.OnProgress != nil {
		b.OnProgress(stage, pct, msg)
	}
}

// BuildResult is what one successful Build call produces.
type BuildResult struct {
	BookDir   string
	Metadata  models.BookMetadata
	EpubPaths map[models.Variant]string
}

// Build fetches and assembles bookID into the requested variants,
// returning the path to each rendered .epub.
func (b *Builder) Build(bookID string, variants []models.Variant) (*BuildResult, error) {
	b.progress("info", 10, "fetching book metadata")
	meta, err := b.Fetcher.FetchBookMetadata(bookID)
	if err != nil {
		return nil, err
	}

	b.progress("chapters", 20, "fetching chapter index")
	chapters, err := b.Fetcher.FetchChapterIndex(bookID)
	if err != nil {
		return nil, err
	}

	b.progress("toc", 25, "fetching table of contents")
	toc, err := b.Fetcher.FetchTOC(bookID)
	if err != nil {
		return nil, err
	}

	bookDir := filepath.Join(b.WorkDir, fmt.Sprintf("%s (%s)", SanitizeTitleForArchive(meta.Title), bookID))
	if err := prepareDirectories(bookDir); err != nil {
		return nil, err
	}

	visitor := NewChapterVisitor(bookID)
	var renderedChapters []models.Chapter

	b.progress("content", 30, "downloading chapters")
	for i, ch := range chapters {
		html, err := b.Fetcher.FetchChapterHTML(ch)
		if err != nil {
			b.progress("content", 30, fmt.Sprintf("warning: chapter %q unreachable: %v", ch.Title, err))
			continue
		}

		visited, err := visitor.Visit(html, ch, i == 0)
		if err != nil {
			return nil, apperrors.New(apperrors.KindAssembly, fmt.Sprintf("chapter %q malformed", ch.Title), err)
		}

		for _, cssURL := range visited.NewCSS {
			if err := b.fetchAndSaveCSS(bookDir, cssURL, visitor); err != nil {
				b.progress("content", 30, fmt.Sprintf("warning: css asset failed: %v", err))
			}
		}
		for _, img := range visited.NewImages {
			if err := b.fetchAndSaveAsset(bookDir, "Images", img.Filename, img.URL); err != nil {
				b.progress("content", 30, fmt.Sprintf("warning: image asset failed: %v", err))
			}
		}

		filename := strings.Replace(ch.Filename, ".html", ".xhtml", 1)
		xhtml := fmt.Sprintf(chapterXHTMLTemplate, visited.InlineCSS, visited.BodyHTML)
		if err := os.WriteFile(filepath.Join(bookDir, "OEBPS", filename), []byte(xhtml), 0o644); err != nil {
			return nil, apperrors.New(apperrors.KindFilesystem, "write chapter xhtml", err)
		}

		ch.Filename = filename
		renderedChapters = append(renderedChapters, ch)

		pct := 30 + int(float64(i+1)/float64(len(chapters))*40)
		b.progress("content", pct, fmt.Sprintf("chapter %d/%d", i+1, len(chapters)))
	}

	if meta.Cover != "" && visitor.CoverImage() == "" {
		if err := b.fetchAndSaveAsset(bookDir, "Images", "cover.jpg", meta.Cover); err == nil {
			visitor.mu.Lock()
			visitor.coverImage = "cover.jpg"
			visitor.mu.Unlock()
		}
	}

	pkg := BookPackage{
		BookID:     bookID,
		Metadata:   meta,
		Chapters:   renderedChapters,
		TOC:        toc,
		CSSCount:   visitor.CSSCount(),
		Images:     visitor.Images(),
		CoverImage: visitor.CoverImage(),
	}

	result := &BuildResult{BookDir: bookDir, Metadata: meta, EpubPaths: map[models.Variant]string{}}

	for _, variant := range variants {
		b.progress("epub", 80, fmt.Sprintf("packaging %s variant", variant))
		epubPath, err := b.renderVariant(bookDir, bookID, pkg, variant)
		if err != nil {
			return nil, err
		}
		result.EpubPaths[variant] = epubPath
	}

	b.progress("epub", 100, "epub created")
	return result, nil
}

const chapterXHTMLTemplate = `<!DOCTYPE html>
<html lang="en" xmlns="http://www.w3.org/1999/xhtml">
<head>
%s
<style type="text/css">
body{margin:1em;background-color:transparent!important;}
#sbo-rt-content *{text-indent:0pt!important;}
#sbo-rt-content .bq{margin-right:1em!important;}
</style>
</head>
<body>%s</body>
</html>`

func prepareDirectories(bookDir string) error {
	dirs := []string{
		bookDir,
		filepath.Join(bookDir, "META-INF"),
		filepath.Join(bookDir, "OEBPS"),
		filepath.Join(bookDir, "OEBPS", "Images"),
		filepath.Join(bookDir, "OEBPS", "Styles"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return apperrors.New(apperrors.KindFilesystem, "create book directory", err)
		}
	}
	return nil
}

func (b *Builder) fetchAndSaveCSS(bookDir, url string, visitor *ChapterVisitor) error {
	idx, _ := visitor.indexOfCSS(url)
	path := filepath.Join(bookDir, "OEBPS", "Styles", fmt.Sprintf("Style%02d.css", idx))
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := b.Fetcher.FetchAsset(url)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (b *Builder) fetchAndSaveAsset(bookDir, subdir, filename, url string) error {
	path := filepath.Join(bookDir, "OEBPS", subdir, filename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := b.Fetcher.FetchAsset(url)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.New(apperrors.KindFilesystem, "write asset", err)
	}
	return nil
}

// renderVariant writes the variant-specific OEBPS artifacts, the
// variant-invariant mimetype/container.xml, and packages the ZIP.
// Legacy omits nav.xhtml (EPUB2 readers don't use it); Enhanced and
// Kindle both include it, Kindle additionally flagging is_kindle in
// the OPF metadata per RenderEnhancedOPF.
func (b *Builder) renderVariant(bookDir, bookID string, pkg BookPackage, variant models.Variant) (string, error) {
	if err := os.WriteFile(filepath.Join(bookDir, "mimetype"), []byte("application/epub+zip"), 0o644); err != nil {
		return "", apperrors.New(apperrors.KindFilesystem, "write mimetype", err)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "META-INF", "container.xml"), []byte(containerXML), 0o644); err != nil {
		return "", apperrors.New(apperrors.KindFilesystem, "write container.xml", err)
	}

	var opf string
	switch variant {
	case models.VariantLegacy:
		opf = RenderLegacyOPF(pkg)
	case models.VariantKindle:
		opf = RenderEnhancedOPF(pkg, true)
	default:
		opf = RenderEnhancedOPF(pkg, false)
	}
	if err := os.WriteFile(filepath.Join(bookDir, "OEBPS", "content.opf"), []byte(opf), 0o644); err != nil {
		return "", apperrors.New(apperrors.KindFilesystem, "write content.opf", err)
	}

	if err := os.WriteFile(filepath.Join(bookDir, "OEBPS", "toc.ncx"), []byte(RenderTOCNCX(pkg)), 0o644); err != nil {
		return "", apperrors.New(apperrors.KindFilesystem, "write toc.ncx", err)
	}

	if variant != models.VariantLegacy {
		if err := os.WriteFile(filepath.Join(bookDir, "OEBPS", "nav.xhtml"), []byte(RenderNavXHTML(pkg)), 0o644); err != nil {
			return "", apperrors.New(apperrors.KindFilesystem, "write nav.xhtml", err)
		}
	}

	epubName := fmt.Sprintf("%s.%s.epub", bookID, variant)
	epubPath := filepath.Join(bookDir, epubName)
	if err := PackageDirectory(bookDir, epubPath); err != nil {
		return "", apperrors.New(apperrors.KindAssembly, "package epub archive", err)
	}
	return epubPath, nil
}

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
<rootfiles>
<rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml" />
</rootfiles>
</container>`
