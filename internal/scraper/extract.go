package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractFragments returns the distinct text nodes of body that contain
// needle, in document order. Matching is a case-sensitive literal substring
// test on the raw node text. Returned fragments have whitespace runs collapsed
// to a single space so each is a single line. A body that cannot be parsed
// yields no fragments.
func ExtractFragments(body, needle string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, root := range doc.Nodes {
		walkText(root, func(raw string) {
			if !strings.Contains(raw, needle) {
				return
			}
			frag := normalizeFragment(raw)
			if frag == "" {
				return
			}
			if _, dup := seen[frag]; dup {
				return
			}
			seen[frag] = struct{}{}
			out = append(out, frag)
		})
	}
	return out
}

func walkText(n *html.Node, visit func(string)) {
	if n.Type == html.TextNode {
		visit(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, visit)
	}
}

func normalizeFragment(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// EncodeFragments joins fragments into a cache value.
func EncodeFragments(fragments []string) string {
	return strings.Join(fragments, "\n")
}

// DecodeFragments parses a cache value into a set. Blank lines are ignored.
func DecodeFragments(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(value, "\n") {
		if line == "" {
			continue
		}
		set[line] = struct{}{}
	}
	return set
}
