package view

import (
	"fmt"
	"strings"

	"github.com/antchfx/xpath"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

// Strategy is how a locator searches the tree
type Strategy string

const (
	StrategyID       Strategy = "id"
	StrategyXPath    Strategy = "xpath"
	StrategyText     Strategy = "text"
	StrategyDesc     Strategy = "desc"
	StrategyClass    Strategy = "class"
	StrategyContains Strategy = "contains"
)

// Predicate is an extra condition over the elements a locator matched
type Predicate struct {
	Name string
	Test func(elems []*screen.Element) bool
}

// TextEquals holds when some matched element has exactly this text
func TextEquals(text string) Predicate {
	return Predicate{
		Name: "text=" + text,
		Test: func(elems []*screen.Element) bool {
			for _, e := range elems {
				if e.Text() == text {
					return true
				}
			}
			return false
		},
	}
}

// AtLeast holds when the locator matched n or more elements
func AtLeast(n int) Predicate {
	return Predicate{
		Name: fmt.Sprintf("count>=%d", n),
		Test: func(elems []*screen.Element) bool { return len(elems) >= n },
	}
}

// Selected holds when some matched element is selected
func Selected() Predicate {
	return Predicate{
		Name: "selected",
		Test: func(elems []*screen.Element) bool {
			for _, e := range elems {
				if e.Selected() {
					return true
				}
			}
			return false
		},
	}
}

// Locator describes how to find a marker element in a tree
type Locator struct {
	Strategy   Strategy
	Value      string
	Predicates []Predicate

	expr *xpath.Expr
}

func ByID(id string) Locator         { return Locator{Strategy: StrategyID, Value: id} }
func ByXPath(expr string) Locator    { return Locator{Strategy: StrategyXPath, Value: expr} }
func ByText(text string) Locator     { return Locator{Strategy: StrategyText, Value: text} }
func ByDesc(desc string) Locator     { return Locator{Strategy: StrategyDesc, Value: desc} }
func ByClass(class string) Locator   { return Locator{Strategy: StrategyClass, Value: class} }
func ByContains(text string) Locator { return Locator{Strategy: StrategyContains, Value: text} }

// Where returns a copy of l with extra predicates
func (l Locator) Where(preds ...Predicate) Locator {
	out := l
	out.Predicates = append(append([]Predicate(nil), l.Predicates...), preds...)
	return out
}

// XPath returns the XPath expression the locator evaluates
func (l Locator) XPath() string {
	switch l.Strategy {
	case StrategyID:
		return "//*[@resource-id=" + Literal(l.Value) + "]"
	case StrategyText:
		return "//*[@text=" + Literal(l.Value) + "]"
	case StrategyDesc:
		return "//*[@content-desc=" + Literal(l.Value) + "]"
	case StrategyClass:
		return "//*[@class=" + Literal(l.Value) + " or name()=" + Literal(l.Value) + "]"
	case StrategyContains:
		return "//*[contains(@text, " + Literal(l.Value) + ") or contains(@content-desc, " + Literal(l.Value) + ")]"
	default:
		return l.Value
	}
}

// Compile validates the locator and caches its expression
func (l Locator) Compile() (Locator, error) {
	if l.Value == "" {
		return l, fmt.Errorf("locator %s has empty value", l.Strategy)
	}
	expr, err := xpath.Compile(l.XPath())
	if err != nil {
		return l, fmt.Errorf("locator %s %q: %w", l.Strategy, l.Value, err)
	}
	l.expr = expr
	return l, nil
}

// Find returns every element matching the locator, ignoring predicates
func (l Locator) Find(tree *screen.Tree) []*screen.Element {
	if tree == nil {
		return nil
	}
	if l.expr == nil {
		compiled, err := l.Compile()
		if err != nil {
			return nil
		}
		l = compiled
	}
	return tree.Query(l.expr)
}

// Match returns the first matching element when all predicates hold
func (l Locator) Match(tree *screen.Tree) (*screen.Element, bool) {
	elems := l.Find(tree)
	if len(elems) == 0 {
		return nil, false
	}
	for _, p := range l.Predicates {
		if !p.Test(elems) {
			return nil, false
		}
	}
	return elems[0], true
}

// Selector maps the locator onto an Appium locator strategy
func (l Locator) Selector() (using, value string) {
	switch l.Strategy {
	case StrategyID:
		return "id", l.Value
	case StrategyDesc:
		return "accessibility id", l.Value
	case StrategyClass:
		return "class name", l.Value
	default:
		return "xpath", l.XPath()
	}
}

// Key identifies the locator for duplicate detection
func (l Locator) Key() string {
	names := make([]string, 0, len(l.Predicates))
	for _, p := range l.Predicates {
		names = append(names, p.Name)
	}
	return string(l.Strategy) + ":" + l.Value + "|" + strings.Join(names, ",")
}

func (l Locator) String() string {
	return string(l.Strategy) + "=" + l.Value
}

// Literal quotes s as an XPath string literal
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}
