/*
Package view classifies screen trees into a closed set of view identities.

# Recognition

A Catalog is an ordered list of tiers. Each tier holds rules, one per
identity, and each rule lists locators; the first tier with a matching rule
wins. Overlay-like screens (permission prompts, captcha, 2FA) sit in earlier
tiers than the screens they cover, since the covered screen's markers remain
in the tree.

NewRecognizer validates a catalog once: an identity may appear in a single
tier only, and a locator may belong to a single identity. Recognize is a pure
function of the tree, so the controller may call it speculatively.

# Sub-states

Some identities carry sub-states where the distinction changes legal
actions. Library is "empty" or "populated", decided by the rule's variants.

	r := view.MustRecognizer(view.DefaultCatalog())
	res := r.Recognize(tree)
	if res.View.Matches(view.With(view.Library, view.Populated)) {
		...
	}
*/
package view
