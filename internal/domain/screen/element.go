package screen

import (
	"github.com/antchfx/xmlquery"
)

// Element is a node of a screen tree
type Element struct {
	node *xmlquery.Node
}

// Attr returns the named attribute, or ""
func (e *Element) Attr(name string) string {
	if e == nil || e.node == nil {
		return ""
	}
	return e.node.SelectAttr(name)
}

// Bool reads a "true"/"false" attribute
func (e *Element) Bool(name string) bool {
	return e.Attr(name) == "true"
}

// Class returns the widget class. Appium sources use it as the tag name,
// uiautomator dumps as an attribute.
func (e *Element) Class() string {
	if c := e.Attr("class"); c != "" {
		return c
	}
	if e == nil || e.node == nil {
		return ""
	}
	return e.node.Data
}

func (e *Element) ResourceID() string  { return e.Attr("resource-id") }
func (e *Element) Text() string        { return e.Attr("text") }
func (e *Element) ContentDesc() string { return e.Attr("content-desc") }
func (e *Element) Selected() bool      { return e.Bool("selected") }
func (e *Element) Enabled() bool       { return e.Attr("enabled") != "false" }

// Bounds parses the element's bounds attribute
func (e *Element) Bounds() (Rect, bool) {
	r, err := ParseBounds(e.Attr("bounds"))
	if err != nil {
		return Rect{}, false
	}
	return r, true
}

// Center returns the tap point of the element
func (e *Element) Center() (Point, bool) {
	r, ok := e.Bounds()
	if !ok || r.Area() == 0 {
		return Point{}, false
	}
	return r.Center(), true
}

// Children returns the element's direct child elements
func (e *Element) Children() []*Element {
	if e == nil || e.node == nil {
		return nil
	}
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, &Element{node: c})
		}
	}
	return out
}

// XML renders the element subtree
func (e *Element) XML() string {
	if e == nil || e.node == nil {
		return ""
	}
	return e.node.OutputXML(true)
}

// Describe returns a short human label for logs
func (e *Element) Describe() string {
	switch {
	case e == nil:
		return ""
	case e.ResourceID() != "":
		return e.ResourceID()
	case e.ContentDesc() != "":
		return e.Class() + "[desc=" + e.ContentDesc() + "]"
	case e.Text() != "":
		return e.Class() + "[text=" + e.Text() + "]"
	default:
		return e.Class()
	}
}
