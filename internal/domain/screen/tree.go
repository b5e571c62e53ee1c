package screen

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/GriffinCanCode/readerfleet/internal/shared/utils"
)

// ErrEmptyTree is returned when a snapshot has no elements
var ErrEmptyTree = errors.New("screen tree is empty")

// Tree is an immutable snapshot of the device UI hierarchy
type Tree struct {
	root       *xmlquery.Node
	raw        []byte
	capturedAt time.Time
	signature  string
}

// Parse builds a tree from a uiautomator dump or Appium page source.
// Leading non-XML noise (e.g. "UI hierchary dumped to: ...") is skipped.
func Parse(raw []byte) (*Tree, error) {
	start := bytes.IndexByte(raw, '<')
	if start < 0 {
		return nil, ErrEmptyTree
	}
	body := raw[start:]

	root, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse screen tree: %w", err)
	}

	t := &Tree{root: root, raw: body, capturedAt: time.Now()}
	if t.Len() == 0 {
		return nil, ErrEmptyTree
	}
	t.signature = t.computeSignature()
	return t, nil
}

// MustParse is Parse for fixtures; it panics on malformed input
func MustParse(raw string) *Tree {
	t, err := Parse([]byte(raw))
	if err != nil {
		panic(err)
	}
	return t
}

// Raw returns the XML the tree was parsed from
func (t *Tree) Raw() []byte {
	if t == nil {
		return nil
	}
	return t.raw
}

// CapturedAt returns when the tree was parsed
func (t *Tree) CapturedAt() time.Time {
	return t.capturedAt
}

// Signature is a digest of the visible structure. Two snapshots with the
// same signature are considered the same settled frame.
func (t *Tree) Signature() string {
	if t == nil {
		return ""
	}
	return t.signature
}

// Len returns the number of UI elements in the tree
func (t *Tree) Len() int {
	if t == nil || t.root == nil {
		return 0
	}
	n := 0
	t.walk(func(*xmlquery.Node) { n++ })
	return n
}

// Query evaluates a compiled XPath expression
func (t *Tree) Query(expr *xpath.Expr) []*Element {
	if t == nil || t.root == nil {
		return nil
	}
	nodes := xmlquery.QuerySelectorAll(t.root, expr)
	return wrap(nodes)
}

// QueryString compiles and evaluates an XPath expression
func (t *Tree) QueryString(expr string) ([]*Element, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	return t.Query(compiled), nil
}

// Size returns the screen dimensions. Appium page sources carry them on
// the hierarchy element; uiautomator dumps fall back to the largest bounds.
func (t *Tree) Size() (width, height int) {
	if t == nil || t.root == nil {
		return 0, 0
	}
	if h := xmlquery.FindOne(t.root, "/hierarchy"); h != nil {
		w, errW := strconv.Atoi(h.SelectAttr("width"))
		hh, errH := strconv.Atoi(h.SelectAttr("height"))
		if errW == nil && errH == nil && w > 0 && hh > 0 {
			return w, hh
		}
	}

	var best Rect
	t.walk(func(n *xmlquery.Node) {
		if r, err := ParseBounds(n.SelectAttr("bounds")); err == nil && r.Area() > best.Area() {
			best = r
		}
	})
	return best.X2, best.Y2
}

// ElementAt returns the deepest element whose bounds contain p
func (t *Tree) ElementAt(p Point) *Element {
	if t == nil || t.root == nil {
		return nil
	}
	var (
		hit      *xmlquery.Node
		hitDepth = -1
	)
	t.walkDepth(func(n *xmlquery.Node, depth int) {
		r, err := ParseBounds(n.SelectAttr("bounds"))
		if err != nil || !r.Contains(p) {
			return
		}
		if depth >= hitDepth {
			hit, hitDepth = n, depth
		}
	})
	if hit == nil {
		return nil
	}
	return &Element{node: hit}
}

func (t *Tree) computeSignature() string {
	var sb strings.Builder
	t.walk(func(n *xmlquery.Node) {
		sb.WriteString(n.Data)
		for _, attr := range []string{"resource-id", "text", "content-desc", "bounds", "selected", "checked"} {
			sb.WriteByte('|')
			sb.WriteString(n.SelectAttr(attr))
		}
		sb.WriteByte('\n')
	})
	return utils.DefaultHasher().HashString(sb.String())
}

// walk visits every UI element, skipping the hierarchy wrapper
func (t *Tree) walk(fn func(*xmlquery.Node)) {
	t.walkDepth(func(n *xmlquery.Node, _ int) { fn(n) })
}

func (t *Tree) walkDepth(fn func(*xmlquery.Node, int)) {
	var visit func(n *xmlquery.Node, depth int)
	visit = func(n *xmlquery.Node, depth int) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if c.Data != "hierarchy" {
				fn(c, depth)
			}
			visit(c, depth+1)
		}
	}
	visit(t.root, 0)
}

func wrap(nodes []*xmlquery.Node) []*Element {
	elems := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &Element{node: n})
	}
	return elems
}
