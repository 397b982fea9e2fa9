// Package scanner finds downloadable media on a page and attaches a
// download affordance to each, once.
//
// Two kinds of element qualify: playable media (video and audio) and
// anchors that point at a known video permalink and are big enough to be
// a thumbnail. Clicking an affordance emits exactly one download intent.
package scanner

import (
	"fmt"
	"io"
	"path"
	"strings"
	"weak"

	"github.com/h2non/filetype"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/moderndownloader/bridge/internal/engine/types"
	"github.com/moderndownloader/bridge/internal/utils"
)

// Kind is the affordance class.
type Kind int

const (
	KindMedia Kind = iota
	KindAnchor
)

func (k Kind) String() string {
	if k == KindMedia {
		return "media"
	}
	return "link"
}

// Quality is one entry of the affordance's quality menu.
type Quality string

const (
	QualityBest  Quality = "best"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	QualityAudio Quality = "audio"
)

// Choice is a labelled quality menu entry.
type Choice struct {
	Label   string
	Quality Quality
}

// Choices is the quality menu, default first.
var Choices = []Choice{
	{Label: "Best Quality", Quality: QualityBest},
	{Label: "1080p", Quality: Quality1080p},
	{Label: "720p", Quality: Quality720p},
	{Label: "Audio Only", Quality: QualityAudio},
}

// ParseQuality accepts a Quality value or a menu label.
func ParseQuality(s string) (Quality, error) {
	for _, c := range Choices {
		if strings.EqualFold(s, string(c.Quality)) || strings.EqualFold(s, c.Label) {
			return c.Quality, nil
		}
	}
	return "", fmt.Errorf("unknown quality %q", s)
}

// Options maps a menu choice onto intent options. Best adds nothing.
func (q Quality) Options() types.IntentOptions {
	switch q {
	case QualityAudio:
		return types.IntentOptions{IsAudioOnly: true}
	case QualityBest, "":
		return types.IntentOptions{}
	default:
		return types.IntentOptions{PreferredQuality: string(q)}
	}
}

// IntentSink receives the intents emitted by affordance clicks.
type IntentSink interface {
	Emit(intent types.DownloadIntent)
}

// SinkFunc adapts a function to IntentSink.
type SinkFunc func(types.DownloadIntent)

func (f SinkFunc) Emit(intent types.DownloadIntent) { f(intent) }

// Page is a parsed document plus the set of elements already decorated.
// The set holds weak references so a replaced document's nodes can be
// collected. A Page is used from one goroutine at a time.
type Page struct {
	URL       string
	Doc       *html.Node
	decorated map[weak.Pointer[html.Node]]struct{}
}

// NewPage wraps an already parsed document.
func NewPage(pageURL string, doc *html.Node) *Page {
	return &Page{URL: pageURL, Doc: doc, decorated: make(map[weak.Pointer[html.Node]]struct{})}
}

// ParsePage parses r as HTML.
func ParsePage(pageURL string, r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return NewPage(pageURL, doc), nil
}

// Replace swaps in a new document (after a mutation). Nodes carried over
// from the old tree keep their decoration.
func (p *Page) Replace(doc *html.Node) {
	p.Doc = doc
}

// Decorated reports whether n already carries an affordance.
func (p *Page) Decorated(n *html.Node) bool {
	_, ok := p.decorated[weak.Make(n)]
	return ok
}

func (p *Page) markDecorated(n *html.Node) {
	p.decorated[weak.Make(n)] = struct{}{}
}

// DecoratedCount prunes collected nodes and returns how many live
// elements are decorated.
func (p *Page) DecoratedCount() int {
	for k := range p.decorated {
		if k.Value() == nil {
			delete(p.decorated, k)
		}
	}
	return len(p.decorated)
}

// Affordance is the download control attached to one container element.
type Affordance struct {
	Container *html.Node
	TargetURL string
	PageURL   string
	Kind      Kind
	// AudioDefault is set for audio elements and audio file URLs; the
	// default choice then asks for audio only.
	AudioDefault bool

	sink IntentSink
}

// Click emits one intent for the chosen quality.
func (a *Affordance) Click(q Quality) types.DownloadIntent {
	opts := q.Options()
	if a.AudioDefault && (q == QualityBest || q == "") {
		opts.IsAudioOnly = true
	}
	intent := types.DownloadIntent{MediaURL: a.TargetURL, PageURL: a.PageURL, Options: opts}
	if a.sink != nil {
		a.sink.Emit(intent)
	}
	return intent
}

// Scanner finds affordances. It is stateless; decoration state lives on
// the Page.
type Scanner struct {
	Sink IntentSink
}

// Scan decorates every qualifying element not decorated before and
// returns the new affordances in document order.
func (s *Scanner) Scan(p *Page) []*Affordance {
	if p == nil || p.Doc == nil {
		return nil
	}
	var found []*Affordance

	// Media first, so a player inside a permalink anchor is decorated on
	// the player's container rather than as a thumbnail.
	walk(p.Doc, func(n *html.Node) {
		if n.DataAtom != atom.Video && n.DataAtom != atom.Audio {
			return
		}
		container := parentElement(n)
		if container == nil || p.Decorated(container) {
			return
		}
		target := ResolveMediaURL(p.URL, n)
		if target == "" {
			return
		}
		p.markDecorated(container)
		found = append(found, &Affordance{
			Container:    container,
			TargetURL:    target,
			PageURL:      p.URL,
			Kind:         KindMedia,
			AudioDefault: n.DataAtom == atom.Audio || IsAudioURL(target),
			sink:         s.Sink,
		})
	})

	walk(p.Doc, func(n *html.Node) {
		if n.DataAtom != atom.A || p.Decorated(n) {
			return
		}
		href := attr(n, "href")
		if href == "" {
			return
		}
		abs := utils.ResolveReference(p.URL, href)
		if !MatchesVideoPattern(abs) || !GeometryOf(n).LargeEnough() {
			return
		}
		p.markDecorated(n)
		target := CleanPermalink(abs)
		found = append(found, &Affordance{
			Container:    n,
			TargetURL:    target,
			PageURL:      p.URL,
			Kind:         KindAnchor,
			AudioDefault: IsAudioURL(target),
			sink:         s.Sink,
		})
	})

	return found
}

// ResolveMediaURL picks the most specific URL for a media element: a
// permalink anchor among its ancestors, then its own source unless that
// is a blob or a preview, then the page itself when it is a permalink.
// Returns "" when nothing fits.
func ResolveMediaURL(pageURL string, media *html.Node) string {
	if link := nearestPermalink(pageURL, media); link != "" {
		return link
	}
	if src := mediaSource(media); src != "" {
		abs := utils.ResolveReference(pageURL, src)
		if !isTransient(abs) {
			return abs
		}
	}
	if MatchesVideoPattern(pageURL) {
		return CleanPermalink(pageURL)
	}
	return ""
}

func nearestPermalink(pageURL string, n *html.Node) string {
	cur := parentElement(n)
	for depth := 0; cur != nil && depth < MaxAncestorDepth; depth++ {
		if cur.DataAtom == atom.A {
			if href := attr(cur, "href"); href != "" {
				abs := utils.ResolveReference(pageURL, href)
				if MatchesVideoPattern(abs) && !strings.Contains(abs, "preview") {
					return CleanPermalink(abs)
				}
			}
		}
		cur = parentElement(cur)
	}
	return ""
}

// mediaSource mirrors currentSrc: the src attribute, else the first
// <source> child with a src.
func mediaSource(media *html.Node) string {
	if src := strings.TrimSpace(attr(media, "src")); src != "" {
		return src
	}
	for c := media.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Source {
			if src := strings.TrimSpace(attr(c, "src")); src != "" {
				return src
			}
		}
	}
	return ""
}

// IsAudioURL reports whether the URL's extension is a known audio type.
func IsAudioURL(u string) bool {
	ext := strings.TrimPrefix(path.Ext(utils.StripQuery(u)), ".")
	if ext == "" {
		return false
	}
	kind := filetype.GetType(strings.ToLower(ext))
	return kind != filetype.Unknown && kind.MIME.Type == "audio"
}

func parentElement(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
		if p.Type == html.DocumentNode {
			return nil
		}
	}
	return nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
