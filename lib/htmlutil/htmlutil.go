package htmlutil

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// attrEntities only lists the three entities a server escapes attribute values with.
// &amp; must be last, otherwise "&amp;quot;" would become a quote instead of "&quot;".
var attrEntities = []struct {
	entity string
	value  string
}{
	{entity: "&quot;", value: `"`},
	{entity: "&#39;", value: "'"},
	{entity: "&amp;", value: "&"},
}

// UnescapeAttr reverses the attribute escaping of quotes, apostrophes and ampersands,
// in that order. No other html entity is touched.
func UnescapeAttr(s string) string {
	for _, e := range attrEntities {
		s = strings.ReplaceAll(s, e.entity, e.value)
	}
	return s
}

// FindAttr parses a document and returns the value of `attr` on the first element
// matching `selector`. The html parser decodes every entity in the value.
func FindAttr(document []byte, selector, attr string) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return "", false, err
	}
	value, ok := doc.Find(selector).First().Attr(attr)
	return value, ok, nil
}

// GetText concatenates all the text nodes under a node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

// Title returns the trimmed text of the document's <title>, it is used to describe
// pages that did not contain what was expected.
func Title(document []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(document))
	if err != nil {
		return ""
	}
	nodes := doc.Find("head title").Nodes
	if len(nodes) == 0 {
		return ""
	}
	return strings.TrimSpace(GetText(nodes[0]))
}
