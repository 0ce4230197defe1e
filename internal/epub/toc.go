package epub

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"oreilly-library/internal/models"
)

// renderNavPoints recursively renders NCX navPoint elements, grounded
// on the teacher's parseTOC / LegacyEpubGenerator.parse_toc.
func renderNavPoints(items []models.TOCItem, playOrder int) (string, int, int) {
	var out strings.Builder
	maxDepth := 0

	for _, item := range items {
		depth := item.Depth
		if depth == 0 {
			depth = 1
		}
		if depth > maxDepth {
			maxDepth = depth
		}

		id := item.Fragment
		if id == "" {
			id = strings.TrimSuffix(filepath.Base(item.Href), filepath.Ext(item.Href))
		}

		href := strings.Replace(filepath.Base(item.Href), ".html", ".xhtml", 1)
		if item.Fragment != "" {
			href = fmt.Sprintf("%s#%s", href, item.Fragment)
		}

		fmt.Fprintf(&out, `<navPoint id="%s" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/>`,
			html.EscapeString(id), playOrder, html.EscapeString(item.Label), href)
		playOrder++

		if len(item.Children) > 0 {
			childXML, childDepth, nextOrder := renderNavPoints(item.Children, playOrder)
			out.WriteString(childXML)
			playOrder = nextOrder
			if childDepth > maxDepth {
				maxDepth = childDepth
			}
		}

		out.WriteString("</navPoint>\n")
	}

	return out.String(), maxDepth, playOrder
}

// RenderTOCNCX produces toc.ncx, used by both the Legacy and Enhanced
// variants (EPUB3 readers fall back to the NCX when nav.xhtml is
// absent or unsupported, so it is always generated).
func RenderTOCNCX(p BookPackage) string {
	navMap, maxDepth, _ := renderNavPoints(p.TOC, 1)

	authors := ""
	if len(p.Metadata.Authors) > 0 {
		authors = p.Metadata.Authors[0]
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" standalone="no" ?>
<!DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd">
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
<head>
<meta content="ID:ISBN:%s" name="dtb:uid"/>
<meta content="%d" name="dtb:depth"/>
<meta content="0" name="dtb:totalPageCount"/>
<meta content="0" name="dtb:maxPageNumber"/>
</head>
<docTitle><text>%s</text></docTitle>
<docAuthor><text>%s</text></docAuthor>
<navMap>%s</navMap>
</ncx>`,
		isbnOrBookID(p),
		maxDepth,
		html.EscapeString(p.Metadata.Title),
		html.EscapeString(authors),
		navMap,
	)
}
