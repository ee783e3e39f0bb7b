package htmlmeta

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// skipTags are never walked into by the structured-text extractor.
var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "footer": true, "header": true, "aside": true,
}

var recurseTags = map[string]bool{
	"article": true, "section": true, "div": true, "main": true, "body": true, "html": true,
}

// ExtractStructuredText walks the DOM preserving headings, paragraphs,
// lists, blockquotes, code blocks, inline formatting, images, and GFM
// tables, resolving relative href/src against baseURL.
func ExtractStructuredText(doc *goquery.Document, baseURL string) string {
	var b strings.Builder
	base, _ := url.Parse(baseURL)

	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			n := node.Get(0)
			if n == nil || n.Type != html.ElementNode {
				return
			}
			tag := goquery.NodeName(node)
			if skipTags[tag] {
				return
			}

			switch {
			case len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6':
				level := int(tag[1] - '0')
				b.WriteString(strings.Repeat("#", level))
				b.WriteString(" ")
				b.WriteString(inline(node, base))
				b.WriteString("\n\n")

			case tag == "p":
				text := inline(node, base)
				if strings.TrimSpace(text) != "" {
					b.WriteString(text)
					b.WriteString("\n\n")
				}

			case tag == "blockquote":
				for _, line := range strings.Split(strings.TrimSpace(node.Text()), "\n") {
					b.WriteString("> ")
					b.WriteString(strings.TrimSpace(line))
					b.WriteString("\n")
				}
				b.WriteString("\n")

			case tag == "pre":
				code := node.Find("code").First()
				lang := ""
				if cls, ok := code.Attr("class"); ok {
					lang = strings.TrimPrefix(cls, "language-")
				}
				b.WriteString("```" + lang + "\n")
				b.WriteString(node.Text())
				b.WriteString("\n```\n\n")

			case tag == "ul":
				node.Children().Each(func(_ int, li *goquery.Selection) {
					if goquery.NodeName(li) != "li" {
						return
					}
					b.WriteString("- ")
					b.WriteString(inline(li, base))
					b.WriteString("\n")
				})
				b.WriteString("\n")

			case tag == "ol":
				i := 1
				node.Children().Each(func(_ int, li *goquery.Selection) {
					if goquery.NodeName(li) != "li" {
						return
					}
					b.WriteString(strconv.Itoa(i) + ". ")
					b.WriteString(inline(li, base))
					b.WriteString("\n")
					i++
				})
				b.WriteString("\n")

			case tag == "img":
				src, _ := node.Attr("src")
				alt, _ := node.Attr("alt")
				b.WriteString(fmt.Sprintf("![%s](%s)\n\n", alt, resolve(src, base)))

			case tag == "table":
				writeTable(&b, node)

			case recurseTags[tag]:
				walk(node)

			default:
				walk(node)
			}
		})
	}

	walk(doc.Selection)
	return strings.TrimSpace(b.String())
}

// inline renders bold/italic/code/link inline formatting within a block
// element as Markdown.
func inline(sel *goquery.Selection, base *url.URL) string {
	var b strings.Builder
	sel.Contents().Each(func(_ int, node *goquery.Selection) {
		n := node.Get(0)
		if n == nil {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type != html.ElementNode {
			return
		}
		switch goquery.NodeName(node) {
		case "strong", "b":
			b.WriteString("**" + node.Text() + "**")
		case "em", "i":
			b.WriteString("*" + node.Text() + "*")
		case "code":
			b.WriteString("`" + node.Text() + "`")
		case "a":
			href, _ := node.Attr("href")
			b.WriteString(fmt.Sprintf("[%s](%s)", node.Text(), resolve(href, base)))
		case "br":
			b.WriteString("\n")
		default:
			b.WriteString(node.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

func resolve(raw string, base *url.URL) string {
	if raw == "" || base == nil {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return raw
	}
	return base.ResolveReference(u).String()
}

// writeTable emits a GFM pipe-table for a <table> element.
func writeTable(b *strings.Builder, table *goquery.Selection) {
	var rows [][]string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return
	}
	writeRow := func(cells []string) {
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	writeRow(rows[0])
	sep := make([]string, len(rows[0]))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows[1:] {
		writeRow(r)
	}
	b.WriteString("\n")
}
