package mail

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const blockSelector = "p, div, li, tr, table, h1, h2, h3, h4, h5, h6, blockquote, pre, ul, ol"

var wsRun = regexp.MustCompile(`\s+`)

// HTMLToText renders an HTML body as plain text. Block elements end a line,
// and anchors become "text <href>" so their links stay visible to extraction.
func HTMLToText(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src
	}

	doc.Find("script, style, head, title").Remove()
	for _, n := range doc.Nodes {
		collapseSpace(n)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		text := strings.TrimSpace(a.Text())
		switch {
		case href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:"):
			a.ReplaceWithHtml(html.EscapeString(text))
		case text == "" || text == href:
			a.ReplaceWithHtml(html.EscapeString(href))
		default:
			a.ReplaceWithHtml(html.EscapeString(text + " <" + href + ">"))
		}
	})

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find(blockSelector).AfterHtml("\n\n")

	return tidyLines(doc.Text())
}

// collapseSpace folds source formatting whitespace the way a browser would,
// leaving <pre> alone.
func collapseSpace(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			c.Data = wsRun.ReplaceAllString(c.Data, " ")
		case c.Type == html.ElementNode && c.Data == "pre":
		default:
			collapseSpace(c)
		}
	}
}

// tidyLines trims every line and keeps at most one blank line between paragraphs.
func tidyLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, l)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// BodyText picks the plain-text part when there is one, else renders the HTML part.
func BodyText(plain, htmlPart string) string {
	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain)
	}
	if strings.TrimSpace(htmlPart) != "" {
		return HTMLToText(htmlPart)
	}
	return ""
}
