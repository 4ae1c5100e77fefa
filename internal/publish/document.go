package publish

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// document keeps track of whether the input was a fragment so that
// rendering does not wrap a fragment in <html><head><body>.
type document struct {
	*goquery.Document
	fragment bool
}

func parseDocument(src string) (*document, error) {
	if isFullDocument(src) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
		if err != nil {
			return nil, err
		}
		return &document{Document: doc}, nil
	}

	body := func() *html.Node {
		return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(src), body())
	if err != nil {
		return nil, err
	}
	root := body()
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return &document{Document: goquery.NewDocumentFromNode(root), fragment: true}, nil
}

func (d *document) render() (string, error) {
	return d.Html()
}

func isFullDocument(src string) bool {
	head := strings.ToLower(strings.TrimSpace(src))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype") || strings.Contains(head, "<html")
}

// rewriteFunc maps one reference to its replacement. image marks references
// that count as published images; prefix names generated files.
type rewriteFunc func(raw, prefix string, image bool) (string, bool)

var (
	lazyImageAttrs = []string{"data-src", "data-original", "data-url", "data-image", "data-bg", "data-background"}
	srcsetAttrs    = []string{"srcset", "data-srcset", "data-responsive-srcset"}
	cssURLPattern  = regexp.MustCompile(`url\(([^)]*)\)`)
)

// rewriteReferences visits every asset reference of the document. Image
// sources go first so that a file shared with other references is
// attributed to the image.
func rewriteReferences(doc *document, fn rewriteFunc) {
	rewriteImages(doc, fn)

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, a := range lazyImageAttrs {
			rewriteAttr(s, a, "img", false, fn)
		}
		for _, a := range srcsetAttrs {
			rewriteSrcset(s, a, fn)
		}
	})
	doc.Find("source").Each(func(_ int, s *goquery.Selection) {
		rewriteSrcset(s, "srcset", fn)
		rewriteSrcset(s, "data-srcset", fn)
		rewriteAttr(s, "src", "media", false, fn)
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if isImageLink(s) {
			rewriteAttr(s, "href", "img", false, fn)
		}
	})
	doc.Find("audio, video").Each(func(_ int, s *goquery.Selection) {
		rewriteAttr(s, "src", "media", false, fn)
		rewriteAttr(s, "poster", "poster", false, fn)
	})

	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if out, changed := rewriteCSS(style, fn); changed {
			s.SetAttr("style", out)
		}
	})
	doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.TextNode {
					continue
				}
				if out, changed := rewriteCSS(c.Data, fn); changed {
					c.Data = out
				}
			}
		}
	})
}

// rewriteImages covers the image-bearing references: <img src> and the
// href of SVG <image>, plain or xlink-namespaced.
func rewriteImages(doc *document, fn rewriteFunc) {
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		rewriteAttr(s, "src", "img", true, fn)
	})
	doc.Find("image").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for i, a := range n.Attr {
				if a.Key != "href" && a.Key != "xlink:href" {
					continue
				}
				if v, ok := fn(a.Val, "img", true); ok {
					n.Attr[i].Val = v
				}
			}
		}
	})
}

func rewriteAttr(s *goquery.Selection, attr, prefix string, image bool, fn rewriteFunc) {
	v, ok := s.Attr(attr)
	if !ok || v == "" {
		return
	}
	if out, changed := fn(v, prefix, image); changed {
		s.SetAttr(attr, out)
	}
}

// rewriteSrcset handles "url [descriptor], url [descriptor]" lists,
// preserving each descriptor.
func rewriteSrcset(s *goquery.Selection, attr string, fn rewriteFunc) {
	v, ok := s.Attr(attr)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	changed := false
	var items []string
	for _, item := range strings.Split(v, ",") {
		parts := strings.Fields(item)
		if len(parts) == 0 {
			continue
		}
		if out, ok := fn(parts[0], "img", false); ok {
			parts[0] = out
			changed = true
		}
		items = append(items, strings.Join(parts, " "))
	}
	if changed {
		s.SetAttr(attr, strings.Join(items, ", "))
	}
}

func rewriteCSS(css string, fn rewriteFunc) (string, bool) {
	changed := false
	out := cssURLPattern.ReplaceAllStringFunc(css, func(m string) string {
		inner := strings.Trim(strings.TrimSpace(m[len("url(") : len(m)-1]), `'"`)
		if next, ok := fn(inner, "img", false); ok {
			changed = true
			return "url('" + next + "')"
		}
		return m
	})
	return out, changed
}

func isImageLink(s *goquery.Selection) bool {
	rel, _ := s.Attr("rel")
	as, _ := s.Attr("as")
	return strings.Contains(strings.ToLower(rel), "icon") || strings.EqualFold(strings.TrimSpace(as), "image")
}
