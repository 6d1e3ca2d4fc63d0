// Package htmldoc applies the pure text scanner to an HTML document:
// detected addresses become mailto anchors, and every mailto anchor is
// classified and annotated with its status.
package htmldoc

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"

	"crmscan/internal/classify"
	"crmscan/internal/scan"
	"crmscan/pkg/email"
)

// Attribute markers. Linked spans and processed anchors are tagged so
// repeated scans of the same document are no-ops for them; authors can tag
// regions with AttrSkip to keep the scanner out.
const (
	AttrDone  = "data-crmscan-done"
	AttrPlain = "data-crmscan-plain"
	AttrSkip  = "data-crmscan-skip"
)

// skipTags are elements whose text must never be rewritten: interactive
// controls, editable or code-like regions, and non-text subtrees.
var skipTags = map[string]bool{
	"a": true, "input": true, "textarea": true, "select": true,
	"option": true, "button": true, "script": true, "style": true,
	"code": true, "pre": true, "kbd": true, "samp": true,
	"svg": true, "canvas": true,
}

var skipRoles = map[string]bool{"textbox": true, "combobox": true, "listbox": true}

// ClassifyFunc resolves one normalized address to a status. Errors map to
// StatusError for presentation.
type ClassifyFunc func(ctx context.Context, address string) (classify.Status, error)

// VisibleFunc reports whether an element is currently visible to the user.
// A nil VisibleFunc treats everything as visible; implementations should
// fail open when geometry is unavailable.
type VisibleFunc func(n *html.Node) bool

// Processor rewrites and classifies addresses in parsed documents.
type Processor struct {
	classify ClassifyFunc
	visible  VisibleFunc
	limiter  *rate.Limiter
	logger   *slog.Logger
	linked   func()
}

type Option func(*Processor)

// WithVisibility restricts linking and anchor processing to elements the
// given predicate reports visible.
func WithVisibility(f VisibleFunc) Option {
	return func(p *Processor) { p.visible = f }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithLinkCounter registers a callback invoked per promoted text span.
func WithLinkCounter(f func()) Option {
	return func(p *Processor) { p.linked = f }
}

// New constructs a Processor. throttle paces successive classification calls
// within one anchor's address list.
func New(classifyFn ClassifyFunc, throttle time.Duration, opts ...Option) *Processor {
	if throttle <= 0 {
		throttle = 250 * time.Millisecond
	}
	p := &Processor{
		classify: classifyFn,
		limiter:  rate.NewLimiter(rate.Every(throttle), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Scan promotes detected addresses to mailto anchors, then classifies all
// mailto anchors in the document.
func (p *Processor) Scan(ctx context.Context, doc *goquery.Document) error {
	p.LinkTexts(doc)
	return p.ProcessAnchors(ctx, doc)
}

// LinkTexts walks the document's text nodes and replaces each detected
// address span with a mailto anchor whose visible text is the reconstructed
// address.
func (p *Processor) LinkTexts(doc *goquery.Document) {
	if len(doc.Nodes) == 0 {
		return
	}
	// collect first: rewriting mutates the tree under the walk
	var textNodes []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			textNodes = append(textNodes, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Nodes[0])

	for _, n := range textNodes {
		p.linkTextNode(n)
	}
}

func (p *Processor) linkTextNode(n *html.Node) {
	parent := n.Parent
	if parent == nil || shouldSkip(parent) {
		return
	}
	if p.visible != nil && !p.visible(parent) {
		return
	}

	matches := scan.Find(n.Data)
	if len(matches) == 0 {
		return
	}

	last := 0
	for _, m := range matches {
		if m.Start > last {
			parent.InsertBefore(textNode(n.Data[last:m.Start]), n)
		}
		parent.InsertBefore(anchorNode(m.Email), n)
		if p.linked != nil {
			p.linked()
		}
		last = m.End
	}
	if last < len(n.Data) {
		parent.InsertBefore(textNode(n.Data[last:]), n)
	}
	parent.RemoveChild(n)
}

// ProcessAnchors classifies every unprocessed mailto anchor. An anchor's
// target may list several comma-separated addresses; they are classified in
// order with pacing in between, and the anchor is styled by the most severe
// status among them.
func (p *Processor) ProcessAnchors(ctx context.Context, doc *goquery.Document) error {
	var scanErr error
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "mailto:") {
			return true
		}
		if p.visible != nil && len(sel.Nodes) > 0 && !p.visible(sel.Nodes[0]) {
			return true
		}
		if v, ok := sel.Attr(AttrDone); ok && v == "1" {
			return true
		}
		sel.SetAttr(AttrDone, "1")

		if err := p.processAnchor(ctx, sel, href); err != nil {
			scanErr = err
			return false
		}
		return true
	})
	return scanErr
}

func (p *Processor) processAnchor(ctx context.Context, sel *goquery.Selection, href string) error {
	raw := strings.TrimSpace(href)
	raw = raw[len("mailto:"):]
	if q := strings.IndexByte(raw, '?'); q >= 0 {
		raw = raw[:q]
	}

	var statuses []classify.Status
	for _, part := range strings.Split(raw, ",") {
		addr := email.Normalize(part)
		if addr == "" {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		st, err := p.classify(ctx, addr)
		if err != nil {
			p.logger.Debug("classification failed", "email", addr, "error", err)
			st = classify.StatusError
		}
		statuses = append(statuses, st)
	}
	applyStatus(sel, classify.Worst(statuses))
	return nil
}

func applyStatus(sel *goquery.Selection, st classify.Status) {
	sel.RemoveClass("crmscan-red crmscan-yellow crmscan-green crmscan-error")
	sel.AddClass("crmscan-" + string(st))
	sel.SetAttr("title", "CRM: "+st.Explanation())
}

// shouldSkip reports whether any ancestor of the text span makes it
// ineligible for rewriting.
func shouldSkip(el *html.Node) bool {
	for ; el != nil; el = el.Parent {
		if el.Type != html.ElementNode {
			continue
		}
		if skipTags[el.Data] {
			return true
		}
		for _, attr := range el.Attr {
			switch attr.Key {
			case "contenteditable":
				if attr.Val == "" || strings.EqualFold(attr.Val, "true") {
					return true
				}
			case "role":
				if skipRoles[strings.ToLower(attr.Val)] {
					return true
				}
			case AttrSkip:
				return true
			}
		}
	}
	return false
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func anchorNode(addr string) *html.Node {
	a := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.A,
		Data:     "a",
		Attr: []html.Attribute{
			{Key: "href", Val: "mailto:" + addr},
			{Key: AttrPlain, Val: "1"},
		},
	}
	a.AppendChild(textNode(addr))
	return a
}
