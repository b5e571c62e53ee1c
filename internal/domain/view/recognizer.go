package view

import (
	"fmt"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

// Variant picks a sub-state when any of its locators matches
type Variant struct {
	SubState SubState
	Locators []Locator
}

// Rule recognizes one identity. Any matching locator is enough.
type Rule struct {
	Identity Identity
	Locators []Locator
	Variants []Variant
	Fallback SubState
}

// Tier is a priority band of rules. Tiers are evaluated in order.
type Tier struct {
	Name  string
	Rules []Rule
}

// Catalog is the ordered rule set a recognizer evaluates
type Catalog []Tier

// Result is the outcome of one recognition
type Result struct {
	View      View
	Element   *screen.Element
	Tier      string
	Locator   string
	Ambiguous []Identity
}

// Recognizer classifies screen trees against a validated catalog
type Recognizer struct {
	tiers []Tier
}

// NewRecognizer compiles and validates a catalog. Every identity must sit
// in exactly one tier, and no locator may be claimed by two identities.
func NewRecognizer(catalog Catalog) (*Recognizer, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("recognizer catalog is empty")
	}

	tierOf := make(map[Identity]string)
	owner := make(map[string]Identity)
	tiers := make([]Tier, 0, len(catalog))

	for _, tier := range catalog {
		compiled := Tier{Name: tier.Name, Rules: make([]Rule, 0, len(tier.Rules))}

		for _, rule := range tier.Rules {
			if !rule.Identity.Known() {
				return nil, fmt.Errorf("tier %q: rule for %s is not a recognizable identity", tier.Name, rule.Identity)
			}
			if prev, dup := tierOf[rule.Identity]; dup {
				return nil, fmt.Errorf("identity %s appears in tiers %q and %q", rule.Identity, prev, tier.Name)
			}
			if len(rule.Locators) == 0 {
				return nil, fmt.Errorf("identity %s has no locators", rule.Identity)
			}
			tierOf[rule.Identity] = tier.Name

			out := Rule{Identity: rule.Identity, Fallback: rule.Fallback}
			locs, err := compileAll(rule.Locators)
			if err != nil {
				return nil, fmt.Errorf("identity %s: %w", rule.Identity, err)
			}
			for _, l := range locs {
				if other, taken := owner[l.Key()]; taken && other != rule.Identity {
					return nil, fmt.Errorf("locator %s claimed by both %s and %s", l, other, rule.Identity)
				}
				owner[l.Key()] = rule.Identity
			}
			out.Locators = locs

			for _, v := range rule.Variants {
				vlocs, err := compileAll(v.Locators)
				if err != nil {
					return nil, fmt.Errorf("identity %s variant %s: %w", rule.Identity, v.SubState, err)
				}
				out.Variants = append(out.Variants, Variant{SubState: v.SubState, Locators: vlocs})
			}

			compiled.Rules = append(compiled.Rules, out)
		}
		tiers = append(tiers, compiled)
	}

	return &Recognizer{tiers: tiers}, nil
}

// MustRecognizer panics if the catalog is invalid
func MustRecognizer(catalog Catalog) *Recognizer {
	r, err := NewRecognizer(catalog)
	if err != nil {
		panic(err)
	}
	return r
}

// Recognize classifies the tree. It has no side effects and returns
// Unknown for a nil or empty tree.
func (r *Recognizer) Recognize(tree *screen.Tree) Result {
	if tree == nil || tree.Len() == 0 {
		return Result{View: Of(Unknown)}
	}

	for _, tier := range r.tiers {
		var (
			winner *Result
			others []Identity
		)
		for _, rule := range tier.Rules {
			el, loc, ok := matchAny(tree, rule.Locators)
			if !ok {
				continue
			}
			if winner != nil {
				others = append(others, rule.Identity)
				continue
			}
			winner = &Result{
				View:    With(rule.Identity, refine(tree, rule)),
				Element: el,
				Tier:    tier.Name,
				Locator: loc.String(),
			}
		}
		if winner != nil {
			winner.Ambiguous = others
			return *winner
		}
	}

	return Result{View: Of(Unknown)}
}

// Identities lists the identities in priority order
func (r *Recognizer) Identities() []Identity {
	var out []Identity
	for _, tier := range r.tiers {
		for _, rule := range tier.Rules {
			out = append(out, rule.Identity)
		}
	}
	return out
}

func refine(tree *screen.Tree, rule Rule) SubState {
	for _, v := range rule.Variants {
		if _, _, ok := matchAny(tree, v.Locators); ok {
			return v.SubState
		}
	}
	return rule.Fallback
}

func matchAny(tree *screen.Tree, locs []Locator) (*screen.Element, Locator, bool) {
	for _, l := range locs {
		if el, ok := l.Match(tree); ok {
			return el, l, true
		}
	}
	return nil, Locator{}, false
}

func compileAll(locs []Locator) ([]Locator, error) {
	out := make([]Locator, 0, len(locs))
	for _, l := range locs {
		c, err := l.Compile()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
