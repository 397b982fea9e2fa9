package scanner

import (
	"context"
	"time"

	"golang.org/x/net/html"

	"github.com/moderndownloader/bridge/internal/clock"
)

// Injector rescans a page on a fixed interval and whenever the document
// changes, reporting newly decorated affordances.
type Injector struct {
	Scanner *Scanner
	Clock   clock.Clock
	// OnDecorate receives each batch of new affordances.
	OnDecorate func([]*Affordance)
}

// Run scans once immediately, then on every tick and on every mutation
// until ctx is done. A mutation carries the new document, or nil when the
// current document changed in place.
func (in *Injector) Run(ctx context.Context, page *Page, interval time.Duration, mutations <-chan *html.Node) error {
	c := in.Clock
	if c == nil {
		c = clock.Real()
	}
	in.scan(page)

	ticks, stop := c.NewTicker(interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticks:
			in.scan(page)
		case doc, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			if doc != nil {
				page.Replace(doc)
			}
			in.scan(page)
		}
	}
}

func (in *Injector) scan(page *Page) {
	found := in.Scanner.Scan(page)
	if len(found) > 0 && in.OnDecorate != nil {
		in.OnDecorate(found)
	}
}
