package epub

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	"oreilly-library/internal/models"
)

// BookPackage is the immutable, fully-assembled intermediate value the
// variant renderers (RenderLegacyOPF / RenderEnhancedOPF) consume. Keeping it
// immutable and building each variant as a pure function over it is
// how this implementation avoids the "dual EPUB variant cross-
// contaminates shared state" failure mode spec.md §9 flags as an Open
// Question: legacy/enhanced/kindle rendering never mutate a shared
// *Client the way the teacher's single-pass CreateEPUB does.
type BookPackage struct {
	BookID     string
	Metadata   models.BookMetadata
	Chapters   []models.Chapter // in spine order, Filename already ".xhtml"
	TOC        []models.TOCItem
	CSSCount   int
	Images     []string // local filenames, in discovery order
	CoverImage string   // local filename, empty if none found
}

func isbnOrBookID(p BookPackage) string {
	if p.Metadata.ISBN != "" {
		return p.Metadata.ISBN
	}
	return p.BookID
}

func imageMediaType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	default:
		return "image/jpeg"
	}
}

// buildManifestAndSpine produces the shared <item>/<itemref> entries
// for chapters, images and CSS, used by both the legacy and enhanced
// OPF renderers. extraManifestItems (e.g. the EPUB3 nav document) are
// appended after the chapter, image and CSS items.
func buildManifestAndSpine(p BookPackage, extraManifestItems string) (manifest, spine string) {
	var m, s strings.Builder

	if p.CoverImage != "" {
		m.WriteString(`<item id="cover" href="cover.xhtml" media-type="application/xhtml+xml" />` + "\n")
		s.WriteString(`<itemref idref="cover"/>` + "\n")
	}

	for _, ch := range p.Chapters {
		itemID := html.EscapeString(strings.TrimSuffix(ch.Filename, filepath.Ext(ch.Filename)))
		m.WriteString(fmt.Sprintf(`<item id="%s" href="%s" media-type="application/xhtml+xml" />`+"\n", itemID, ch.Filename))
		s.WriteString(fmt.Sprintf(`<itemref idref="%s"/>`+"\n", itemID))
	}

	for _, img := range p.Images {
		ext := strings.ToLower(filepath.Ext(img))
		name := strings.TrimSuffix(img, ext)
		id := "img_" + html.EscapeString(name)
		if img == p.CoverImage {
			id = "coverimg"
		}
		m.WriteString(fmt.Sprintf(`<item id="%s" href="Images/%s" media-type="%s" />`+"\n", id, img, imageMediaType(img)))
	}

	for i := 0; i < p.CSSCount; i++ {
		m.WriteString(fmt.Sprintf(`<item id="style_%02d" href="Styles/Style%02d.css" media-type="text/css" />`+"\n", i, i))
	}

	m.WriteString(extraManifestItems)

	return m.String(), s.String()
}

func buildDublinCore(p BookPackage) (authors, subjects string) {
	var a, s strings.Builder
	for _, author := range p.Metadata.Authors {
		fmt.Fprintf(&a, `<dc:creator opf:file-as="%s" opf:role="aut">%s</dc:creator>`+"\n",
			html.EscapeString(author), html.EscapeString(author))
	}
	for _, subject := range p.Metadata.Subjects {
		fmt.Fprintf(&s, `<dc:subject>%s</dc:subject>`+"\n", html.EscapeString(subject))
	}
	return a.String(), s.String()
}

// RenderLegacyOPF produces an EPUB2 content.opf, grounded on the
// teacher's createContentOPF.
func RenderLegacyOPF(p BookPackage) string {
	manifest, spine := buildManifestAndSpine(p, "")
	authors, subjects := buildDublinCore(p)

	coverPageRef := "cover.xhtml"
	if p.CoverImage == "" && len(p.Chapters) > 0 {
		coverPageRef = p.Chapters[0].Filename
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid" version="2.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
<dc:title>%s</dc:title>
%s<dc:description>%s</dc:description>
%s<dc:publisher>%s</dc:publisher>
<dc:rights>%s</dc:rights>
<dc:language>en-US</dc:language>
<dc:date>%s</dc:date>
<dc:identifier id="bookid">%s</dc:identifier>
<meta name="cover" content="coverimg"/>
</metadata>
<manifest>
<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml" />
%s</manifest>
<spine toc="ncx">
%s</spine>
<guide><reference href="%s" title="Cover" type="cover" /></guide>
</package>`,
		html.EscapeString(p.Metadata.Title),
		authors,
		html.EscapeString(p.Metadata.Description),
		subjects,
		html.EscapeString(p.Metadata.Publisher),
		html.EscapeString(p.Metadata.Rights),
		p.Metadata.Issued,
		isbnOrBookID(p),
		manifest,
		spine,
		coverPageRef,
	)
}

// RenderEnhancedOPF produces an EPUB3 content.opf with a nav document
// entry in the manifest, grounded on epub_enhanced.py's
// create_enhanced_content_opf. isKindle adds an is_kindle meta element
// so downstream tooling can detect the variant; the rest of the
// document is the same for both variants.
func RenderEnhancedOPF(p BookPackage, isKindle bool) string {
	navItem := `<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>` + "\n"
	manifest, spine := buildManifestAndSpine(p, navItem)
	authors, subjects := buildDublinCore(p)

	kindleMeta := ""
	if isKindle {
		kindleMeta = `<meta name="is_kindle" content="true"/>` + "\n"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid" version="3.0">
<metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
<dc:title>%s</dc:title>
%s<dc:description>%s</dc:description>
%s<dc:publisher>%s</dc:publisher>
<dc:rights>%s</dc:rights>
<dc:language>en-US</dc:language>
<dc:date>%s</dc:date>
<dc:identifier id="bookid">%s</dc:identifier>
<meta property="dcterms:modified">%s</meta>
<meta name="cover" content="coverimg"/>
%s</metadata>
<manifest>
<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml" />
%s</manifest>
<spine toc="ncx">
%s</spine>
</package>`,
		html.EscapeString(p.Metadata.Title),
		authors,
		html.EscapeString(p.Metadata.Description),
		subjects,
		html.EscapeString(p.Metadata.Publisher),
		html.EscapeString(p.Metadata.Rights),
		p.Metadata.Issued,
		isbnOrBookID(p),
		time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		kindleMeta,
		manifest,
		spine,
	)
}
