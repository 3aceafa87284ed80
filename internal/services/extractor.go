package services

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// contentSelectors are tried in order; site-specific containers come first.
var contentSelectors = []string{
	".entry",            // hanoimoi
	".b-maincontent",    // hanoimoi
	".details__content", // laodong
	".cms-body",         // vietnamplus
	"#article-body",     // tienphong, sggp
	".article-body",
	".fck_detail", // vnexpress, dantri
	".post-content",
	`[role="main"]`,
	"article",
	".article-content",
	".content-detail",
	".detail-content",
	".post_content",
	".body-content",
	"#content",
	".content",
}

const noiseSelector = "script, style, nav, footer, header, iframe, noscript"

// ExtractMainText returns the whitespace-collapsed body text of an article
// page, capped at maxRunes. The first selector whose text is longer than
// minRunes wins; otherwise the whole document is used.
func ExtractMainText(rawHTML string, minRunes, maxRunes int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	doc.Find(noiseSelector).Remove()

	target := doc.Selection
	for _, selector := range contentSelectors {
		found := doc.Find(selector).First()
		if found.Length() == 0 {
			continue
		}
		if utf8.RuneCountInString(selectionText(found)) > minRunes {
			target = found
			break
		}
	}

	return truncateRunes(collapseWhitespace(selectionText(target)), maxRunes)
}

// selectionText joins every text node under the selection with single spaces.
func selectionText(selection *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, node := range selection.Nodes {
		walk(node)
	}
	return strings.Join(parts, " ")
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
