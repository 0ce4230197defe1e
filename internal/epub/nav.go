package epub

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"oreilly-library/internal/models"
)

// renderNavList renders an EPUB3 nav.xhtml <ol>/<li> tree, grounded on
// epub_enhanced.py's create_navigation_document.
func renderNavList(items []models.TOCItem) string {
	if len(items) == 0 {
		return ""
	}
	var out strings.Builder
	out.WriteString("<ol>\n")
	for _, item := range items {
		href := strings.Replace(filepath.Base(item.Href), ".html", ".xhtml", 1)
		if item.Fragment != "" {
			href = fmt.Sprintf("%s#%s", href, item.Fragment)
		}
		fmt.Fprintf(&out, `<li><a href="%s">%s</a>`, href, html.EscapeString(item.Label))
		if len(item.Children) > 0 {
			out.WriteString(renderNavList(item.Children))
		}
		out.WriteString("</li>\n")
	}
	out.WriteString("</ol>\n")
	return out.String()
}

// RenderNavXHTML produces the EPUB3 navigation document required by
// the Enhanced and Kindle variants.
func RenderNavXHTML(p BookPackage) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>%s</title></head>
<body>
<nav epub:type="toc" id="toc">
<h1>%s</h1>
%s</nav>
</body>
</html>`,
		html.EscapeString(p.Metadata.Title),
		html.EscapeString(p.Metadata.Title),
		renderNavList(p.TOC),
	)
}
