package epub

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"oreilly-library/internal/models"
)

// ChapterVisitor walks one chapter's parsed HTML document, collecting
// the stylesheet/image references it needs fetched and rewriting
// in-place the attributes that must point at the EPUB's own local
// layout instead of the remote site's. A single visitor instance is
// reused across every chapter of a book so the CSS/image dedup tables
// (cssSeen/imageSeen) are shared, matching the teacher's per-Client
// c.cssFiles/c.imageFiles bookkeeping.
//
// Grounded on the teacher's processStylesheets, convertSVGImages,
// processImages, extractCover and fixLinks methods on *oreilly.Client,
// reorganized into a plain visitor with no network calls of its own —
// per REDESIGN FLAGS, the Builder is the only thing that touches the
// HTTP Client.
type ChapterVisitor struct {
	mu sync.Mutex

	bookID string

	cssOrder []string         // download order, index is the Style## suffix
	cssSeen  map[string]bool

	imageOrder []string
	imageSeen  map[string]bool

	coverImage string
}

// NewChapterVisitor creates a visitor scoped to one book.
func NewChapterVisitor(bookID string) *ChapterVisitor {
	return &ChapterVisitor{
		bookID:   bookID,
		cssSeen:  make(map[string]bool),
		imageSeen: make(map[string]bool),
	}
}

// VisitResult is what one chapter pass needs from its visitor: the
// rewritten body HTML plus any newly discovered assets this chapter
// introduced (already deduplicated against prior chapters).
type VisitResult struct {
	BodyHTML    string
	InlineCSS   string
	NewCSS      []string // URLs not seen before this chapter, in fetch order
	NewImages   []ImageRef
	IsCover     bool
}

// ImageRef is one image discovered in a chapter, with the local
// filename it should be saved under.
type ImageRef struct {
	URL      string
	Filename string
}

// Visit parses rawHTML for one chapter and returns the rewritten
// content plus newly-discovered assets. chapter.AssetBaseURL is used
// to resolve image src attributes that are relative to the API, per
// the teacher's processImages apiV2Detected branch.
func (v *ChapterVisitor) Visit(rawHTML string, chapter models.Chapter, isFirstChapter bool) (VisitResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return VisitResult{}, fmt.Errorf("parse chapter html: %w", err)
	}

	content := doc.Find("#sbo-rt-content")
	if content.Length() == 0 {
		content = doc.Find("body")
	}

	result := VisitResult{}

	result.InlineCSS, result.NewCSS = v.collectStylesheets(doc, chapter)
	v.convertSVGImages(doc)
	result.NewImages = v.collectImages(content, chapter)

	if isFirstChapter && v.coverImage == "" {
		if cover := v.extractCoverImage(content); cover != "" {
			v.mu.Lock()
			v.coverImage = cover
			v.mu.Unlock()
			result.IsCover = true
		}
	}

	v.rewriteLinks(content)

	bodyHTML, err := content.Html()
	if err != nil {
		return VisitResult{}, fmt.Errorf("serialize chapter html: %w", err)
	}
	result.BodyHTML = bodyHTML

	return result, nil
}

// collectStylesheets mirrors processStylesheets: chapter-declared
// stylesheets and site styles become <link> tags against a locally
// numbered Style##.css, inline <style> tags are inlined verbatim
// (expanding any data-template attribute first).
func (v *ChapterVisitor) collectStylesheets(doc *goquery.Document, chapter models.Chapter) (string, []string) {
	var page strings.Builder
	var fresh []string

	addStylesheet := func(url string) {
		v.mu.Lock()
		idx, known := v.indexOfCSS(url)
		if !known {
			v.cssOrder = append(v.cssOrder, url)
			v.cssSeen[url] = true
			idx = len(v.cssOrder) - 1
			fresh = append(fresh, url)
		}
		v.mu.Unlock()
		fmt.Fprintf(&page, `<link href="Styles/Style%02d.css" rel="stylesheet" type="text/css" />`+"\n", idx)
	}

	for _, ss := range chapter.Stylesheets {
		addStylesheet(ss)
	}
	for _, ss := range chapter.SiteStyles {
		addStylesheet(ss)
	}

	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		if tmpl, exists := s.Attr("data-template"); exists && tmpl != "" {
			s.SetText(tmpl)
			s.RemoveAttr("data-template")
		}
		if html, err := s.Html(); err == nil {
			page.WriteString("<style>")
			page.WriteString(html)
			page.WriteString("</style>\n")
		}
	})

	return page.String(), fresh
}

func (v *ChapterVisitor) indexOfCSS(url string) (int, bool) {
	if !v.cssSeen[url] {
		return 0, false
	}
	for i, u := range v.cssOrder {
		if u == url {
			return i, true
		}
	}
	return 0, false
}

// convertSVGImages turns inline SVG <image> elements into plain <img>
// tags, since most EPUB readers handle the latter far more reliably.
// Mirrors the teacher's convertSVGImages.
func (v *ChapterVisitor) convertSVGImages(doc *goquery.Document) {
	doc.Find("image").Each(func(_ int, image *goquery.Selection) {
		var href string
		for _, attr := range []string{"href", "xlink:href"} {
			if val, exists := image.Attr(attr); exists && val != "" {
				href = val
				break
			}
		}
		if href == "" {
			return
		}
		svg := image.ParentsFiltered("svg").First()
		if svg.Length() == 0 {
			return
		}
		parent := svg.Parent()
		svg.Remove()
		parent.AppendHtml(fmt.Sprintf(`<img src="%s"/>`, href))
	})
}

// collectImages gathers images declared in the chapter's metadata and
// any <img> tags found in the parsed content, deduplicating across the
// whole book by local filename. Mirrors processImages.
func (v *ChapterVisitor) collectImages(content *goquery.Selection, chapter models.Chapter) []ImageRef {
	assetBaseURL := resolveAssetBaseURL(chapter, v.bookID)
	var fresh []ImageRef

	addImage := func(rawSrc, resolvedURL string) {
		filename := filepath.Base(rawSrc)
		v.mu.Lock()
		already := v.imageSeen[filename]
		if !already {
			v.imageSeen[filename] = true
			v.imageOrder = append(v.imageOrder, filename)
		}
		v.mu.Unlock()
		if !already {
			fresh = append(fresh, ImageRef{URL: resolvedURL, Filename: filename})
		}
	}

	for _, img := range chapter.Images {
		full := img
		if !strings.HasPrefix(img, "http") {
			full = assetBaseURL + "/" + img
		}
		addImage(img, full)
	}

	content.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, exists := img.Attr("src")
		if !exists || src == "" {
			return
		}
		addImage(src, resolveImageURL(src, assetBaseURL, v.bookID))
	})

	return fresh
}

func resolveAssetBaseURL(chapter models.Chapter, bookID string) string {
	if chapter.AssetBaseURL != "" {
		return chapter.AssetBaseURL
	}
	return fmt.Sprintf("api/v2/epubs/urn:orm:book:%s/files", bookID)
}

func resolveImageURL(src, assetBaseURL, bookID string) string {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "/"):
		return src
	default:
		return assetBaseURL + "/" + src
	}
}

// extractCoverImage returns the local filename of the first image that
// looks like a cover (explicit "cover" in the src, or the very first
// image on the first chapter page), matching extractCover.
func (v *ChapterVisitor) extractCoverImage(content *goquery.Selection) string {
	var cover string
	content.Find("img").EachWithBreak(func(i int, img *goquery.Selection) bool {
		src, exists := img.Attr("src")
		if !exists {
			return true
		}
		if strings.Contains(src, "cover") || i == 0 {
			cover = filepath.Base(src)
			return false
		}
		return true
	})
	return cover
}

// rewriteLinks points intra-book anchors and image sources at the
// EPUB's own local layout, matching fixLinks.
func (v *ChapterVisitor) rewriteLinks(content *goquery.Selection) {
	content.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, exists := a.Attr("href")
		if !exists || strings.HasPrefix(href, "mailto") {
			return
		}
		if strings.HasPrefix(href, "http") {
			if idx := strings.Index(href, v.bookID); idx >= 0 {
				href = href[idx+len(v.bookID):]
			} else {
				return
			}
		}
		a.SetAttr("href", strings.Replace(href, ".html", ".xhtml", 1))
	})

	content.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, exists := img.Attr("src")
		if !exists {
			return
		}
		if !strings.HasPrefix(src, "http") {
			if looksLikeImagePath(src) {
				img.SetAttr("src", "Images/"+filepath.Base(src))
			}
			return
		}
		if strings.Contains(src, v.bookID) {
			img.SetAttr("src", "Images/"+filepath.Base(src))
		}
	})
}

func looksLikeImagePath(src string) bool {
	lower := strings.ToLower(src)
	if strings.Contains(lower, "cover") || strings.Contains(lower, "images") || strings.Contains(lower, "graphics") {
		return true
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".svg"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// CSSCount and CoverImage expose the accumulated book-wide state the
// Builder needs once all chapters are visited.
func (v *ChapterVisitor) CSSCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cssOrder)
}

func (v *ChapterVisitor) Images() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.imageOrder))
	copy(out, v.imageOrder)
	return out
}

func (v *ChapterVisitor) CoverImage() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.coverImage
}
