package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/readerfleet/internal/domain/device"
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// LibraryHandler works the library tab and its signed-out variant
type LibraryHandler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewLibraryHandler creates a library handler. A nil source seeds from the clock.
func NewLibraryHandler(src rand.Source) *LibraryHandler {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &LibraryHandler{rnd: rand.New(src)}
}

func (h *LibraryHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerLibrary }

func (h *LibraryHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.SignIn:
		return &Outcome{}, env.tap(ctx, "sign in button", librarySignIn...)
	case statemachine.OpenBook:
		return h.openBook(ctx, env)
	case statemachine.OpenRandomBook:
		return h.openRandom(ctx, env)
	case statemachine.ScrollLibrary:
		return h.scroll(ctx, env)
	case statemachine.ListBooks:
		return h.list(ctx, env)
	case statemachine.OpenSettings:
		return &Outcome{}, env.tap(ctx, "more tab", moreTab...)
	case statemachine.GoHome:
		return &Outcome{}, env.tap(ctx, "home tab", homeTab...)
	}
	return nil, unsupported(h.Kind(), action)
}

type book struct {
	index int
	title string
	elem  *screen.Element
}

func (b book) target() device.Target {
	p, _ := b.elem.Center()
	return device.Target{
		Using: "xpath",
		Value: fmt.Sprintf("(%s)[%d]", libraryItemsXPath, b.index+1),
		Point: p,
		Label: "book " + b.title,
	}
}

func books(tree *screen.Tree) []book {
	if tree == nil {
		return nil
	}
	elems, err := tree.QueryString(libraryItemsXPath)
	if err != nil {
		return nil
	}
	out := make([]book, 0, len(elems))
	for i, el := range elems {
		out = append(out, book{index: i, title: titleOf(el), elem: el})
	}
	return out
}

// titleOf picks the row's first non-empty text, else its description
func titleOf(el *screen.Element) string {
	if t := el.Text(); t != "" {
		return t
	}
	for _, c := range el.Children() {
		if t := titleOf(c); t != "" {
			return t
		}
	}
	return el.ContentDesc()
}

func (b book) matches(title string) bool {
	return strings.Contains(strings.ToLower(b.title+" "+b.elem.ContentDesc()), strings.ToLower(title))
}

// DefaultMaxScrolls bounds a library scan when "max_scrolls" is not given
const DefaultMaxScrolls = 20

func maxScrolls(env *Env) int {
	if n := env.Params.Int("max_scrolls", DefaultMaxScrolls); n >= 0 {
		return n
	}
	return DefaultMaxScrolls
}

// openBook opens the book matching "title", or the visible row at
// "index". A title not on screen is searched for from the top of the
// list, at most "max_scrolls" swipes deep.
func (h *LibraryHandler) openBook(ctx context.Context, env *Env) (*Outcome, error) {
	title, byTitle := env.Params.String("title")
	index := env.Params.Int("index", 0)

	list := books(env.Tree)
	var chosen *book
	for i := range list {
		if byTitle && list[i].matches(title) {
			chosen = &list[i]
			break
		}
		if !byTitle && list[i].index == index {
			chosen = &list[i]
			break
		}
	}

	scrolls := 0
	if chosen == nil && byTitle && len(list) > 0 {
		if err := h.rewind(ctx, env, maxScrolls(env)); err != nil {
			return nil, err
		}
		var err error
		chosen, scrolls, err = h.scan(ctx, env, maxScrolls(env), func(b book) bool { return b.matches(title) })
		if err != nil {
			return nil, err
		}
	}
	if chosen == nil {
		want := fmt.Sprintf("index %d among %d shown", index, len(list))
		if byTitle {
			want = fmt.Sprintf("title %q after %d scrolls", title, scrolls)
		}
		return nil, fault.New(fault.KindInvalidRequest, "handlers.open_book", "no book with %s", want).
			WithAction(string(statemachine.OpenBook)).WithAccount(env.AccountID)
	}

	if err := driverFault("handlers.tap", env.Driver.Tap(ctx, chosen.target())); err != nil {
		return nil, err
	}
	return payload("index", chosen.index, "title", chosen.title, "scrolls", scrolls), nil
}

// list collects every title from the top of the library down
func (h *LibraryHandler) list(ctx context.Context, env *Env) (*Outcome, error) {
	if len(books(env.Tree)) == 0 {
		return payload("books", []string{}, "count", 0, "scrolls", 0, "complete", true), nil
	}
	limit := maxScrolls(env)
	if err := h.rewind(ctx, env, limit); err != nil {
		return nil, err
	}

	var titles []string
	_, scrolls, err := h.scan(ctx, env, limit, func(b book) bool {
		titles = append(titles, b.title)
		return false
	})
	if err != nil {
		return nil, err
	}
	return payload("books", titles, "count", len(titles), "scrolls", scrolls, "complete", scrolls < limit), nil
}

// scan visits each row not seen before, swiping down the list until
// visit returns true, a swipe shows nothing new, or limit swipes are
// spent. Rows are deduplicated by title.
func (h *LibraryHandler) scan(ctx context.Context, env *Env, limit int, visit func(book) bool) (*book, int, error) {
	seen := make(map[string]bool)
	for scrolls := 0; ; scrolls++ {
		fresh := 0
		for _, b := range books(env.Tree) {
			if seen[b.title] {
				continue
			}
			seen[b.title] = true
			fresh++
			if visit(b) {
				return &b, scrolls, nil
			}
		}
		if (fresh == 0 && scrolls > 0) || scrolls >= limit {
			return nil, scrolls, nil
		}
		if err := h.swipe(ctx, env, true); err != nil {
			return nil, scrolls, err
		}
	}
}

// rewind swipes back to the top of the list, stopping once a swipe
// leaves the screen unchanged
func (h *LibraryHandler) rewind(ctx context.Context, env *Env, limit int) error {
	for i := 0; i < limit; i++ {
		before := env.Tree.Signature()
		if err := h.swipe(ctx, env, false); err != nil {
			return err
		}
		if env.Tree.Signature() == before {
			return nil
		}
	}
	return nil
}

// swipe moves the list one screen, down the list when forward, and
// refreshes the tree
func (h *LibraryHandler) swipe(ctx context.Context, env *Env, forward bool) error {
	area, ok := scrollArea(env)
	if !ok {
		return fault.New(fault.KindDriverFault, "handlers.swipe", "library list has no bounds").WithAccount(env.AccountID)
	}
	low := screen.Point{X: area.Center().X, Y: area.Y1 + area.Height()*4/5}
	high := screen.Point{X: low.X, Y: area.Y1 + area.Height()/5}
	from, to := low, high
	if !forward {
		from, to = high, low
	}
	if err := driverFault("handlers.swipe", env.Driver.Swipe(ctx, from, to)); err != nil {
		return err
	}
	return env.settle(ctx)
}

func (h *LibraryHandler) openRandom(ctx context.Context, env *Env) (*Outcome, error) {
	list := books(env.Tree)
	if len(list) == 0 {
		if _, _, err := env.find(ctx, "library list", libraryList...); err != nil {
			return nil, err
		}
		if list = books(env.Tree); len(list) == 0 {
			return nil, fault.New(fault.KindDriverFault, "handlers.open_random_book", "library list has no rows").
				WithAccount(env.AccountID)
		}
	}

	h.mu.Lock()
	pick := list[h.rnd.Intn(len(list))]
	h.mu.Unlock()

	if err := driverFault("handlers.tap", env.Driver.Tap(ctx, pick.target())); err != nil {
		return nil, err
	}
	return payload("index", pick.index, "title", pick.title), nil
}

// scroll swipes the library list up by "pages" screens
func (h *LibraryHandler) scroll(ctx context.Context, env *Env) (*Outcome, error) {
	pages := env.Params.Int("pages", 1)
	if pages < 1 {
		pages = 1
	}

	area, ok := scrollArea(env)
	if !ok {
		el, _, err := env.find(ctx, "library list", append(libraryList, libraryTab...)...)
		if err != nil {
			return nil, err
		}
		if area, ok = el.Bounds(); !ok {
			return nil, fault.New(fault.KindDriverFault, "handlers.scroll_library", "library list has no bounds")
		}
	}

	from := screen.Point{X: area.Center().X, Y: area.Y1 + area.Height()*4/5}
	to := screen.Point{X: from.X, Y: area.Y1 + area.Height()/5}
	for i := 0; i < pages; i++ {
		if err := driverFault("handlers.swipe", env.Driver.Swipe(ctx, from, to)); err != nil {
			return nil, err
		}
	}
	return payload("pages", pages), nil
}

func scrollArea(env *Env) (screen.Rect, bool) {
	for _, l := range libraryList {
		if el, ok := l.Match(env.Tree); ok {
			if r, ok := el.Bounds(); ok && r.Area() > 0 {
				return r, true
			}
		}
	}
	w, hgt := env.Tree.Size()
	if w == 0 || hgt == 0 {
		return screen.Rect{}, false
	}
	return screen.Rect{X1: 0, Y1: 0, X2: w, Y2: hgt}, true
}

// HomeHandler works the home tab
type HomeHandler struct{}

func (h *HomeHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerHome }

func (h *HomeHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.GoLibrary:
		return &Outcome{}, env.tap(ctx, "library tab", libraryTab...)
	case statemachine.OpenSettings:
		return &Outcome{}, env.tap(ctx, "more tab", moreTab...)
	}
	return nil, unsupported(h.Kind(), action)
}
