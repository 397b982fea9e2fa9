package scanner

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Minimum on-screen size for decorating an anchor, in CSS pixels.
const (
	MinAnchorWidth  = 100
	MinAnchorHeight = 60
)

// Geometry is an element's declared size. Zero means unknown.
type Geometry struct {
	Width  float64
	Height float64
}

// LargeEnough applies the anchor heuristic: strictly wider than 100 and
// taller than 60, so icons and text links are left alone.
func (g Geometry) LargeEnough() bool {
	return g.Width > MinAnchorWidth && g.Height > MinAnchorHeight
}

// GeometryOf reads the size from width/height attributes or inline style.
// Anchors usually wrap a thumbnail, so the first descendant image counts
// when it is larger.
func GeometryOf(n *html.Node) Geometry {
	g := declaredSize(n)
	if img := firstDescendant(n, atom.Img); img != nil {
		ig := declaredSize(img)
		if ig.Width > g.Width {
			g.Width = ig.Width
		}
		if ig.Height > g.Height {
			g.Height = ig.Height
		}
	}
	return g
}

func declaredSize(n *html.Node) Geometry {
	var g Geometry
	g.Width = parsePixels(attr(n, "width"))
	g.Height = parsePixels(attr(n, "height"))
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(prop)) {
		case "width":
			if px := parsePixels(val); px > 0 {
				g.Width = px
			}
		case "height":
			if px := parsePixels(val); px > 0 {
				g.Height = px
			}
		}
	}
	return g
}

// parsePixels accepts "120" and "120px"; anything relative is unknown.
func parsePixels(s string) float64 {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "!important"), " ")
	s = strings.TrimSuffix(s, "px")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstDescendant(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
		if found := firstDescendant(c, a); found != nil {
			return found
		}
	}
	return nil
}
