package docfetch

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// page is the converted form of one fetched document.
type page struct {
	Title       string
	Description string
	Markdown    string
}

// converter turns fetched HTML into markdown. Readability extracts the
// article body first so navigation, footers, and ads never reach the
// markdown; pages readability cannot parse fall back to full-document
// conversion.
type converter struct {
	md *md.Converter
}

func newConverter() *converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return &converter{md: c}
}

func (c *converter) convert(body []byte, pageURL *url.URL) (*page, error) {
	meta := extractMeta(body)

	contentHTML := string(body)
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		if strings.TrimSpace(article.Content) != "" {
			contentHTML = article.Content
		}
		if meta.Title == "" {
			meta.Title = strings.TrimSpace(article.Title)
		}
		if meta.Description == "" {
			meta.Description = strings.TrimSpace(article.Excerpt)
		}
	}

	markdown, err := c.md.ConvertString(contentHTML)
	if err != nil {
		return nil, err
	}
	markdown = tidyMarkdown(markdown)

	if meta.Title == "" {
		meta.Title = firstHeading(markdown)
	}

	return &page{
		Title:       meta.Title,
		Description: meta.Description,
		Markdown:    markdown,
	}, nil
}

type pageMeta struct {
	Title       string
	Description string
}

// extractMeta walks the document head for <title>, og:title, and the
// description metas. og: values fill in whatever the plain tags lack.
func extractMeta(body []byte) pageMeta {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return pageMeta{}
	}

	var meta pageMeta
	var ogTitle, ogDescription string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				var name, property, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "name":
						name = strings.ToLower(a.Val)
					case "property":
						property = strings.ToLower(a.Val)
					case "content":
						content = strings.TrimSpace(a.Val)
					}
				}
				switch {
				case name == "description" && meta.Description == "":
					meta.Description = content
				case property == "og:title" && ogTitle == "":
					ogTitle = content
				case property == "og:description" && ogDescription == "":
					ogDescription = content
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if meta.Title == "" {
		meta.Title = ogTitle
	}
	if meta.Description == "" {
		meta.Description = ogDescription
	}
	return meta
}

// firstHeading returns the first H1 of the markdown, if any.
func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func tidyMarkdown(markdown string) string {
	markdown = excessiveLinesRe.ReplaceAllString(markdown, "\n\n")
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// truncateMarkdown cuts markdown to at most max characters, preferring a
// line boundary so a heading or sentence is not split mid-way.
func truncateMarkdown(markdown string, max int) (string, bool) {
	if len(markdown) <= max {
		return markdown, false
	}

	cut := strings.LastIndex(markdown[:max], "\n")
	if cut < max/2 {
		cut = max
	}
	return strings.TrimSpace(markdown[:cut]), true
}
