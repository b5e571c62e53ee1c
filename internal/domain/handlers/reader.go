package handlers

import (
	"context"
	"strings"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
	"github.com/GriffinCanCode/readerfleet/internal/shared/fault"
)

// ReaderHandler turns pages and extracts text inside an open book
type ReaderHandler struct{}

func (h *ReaderHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerReader }

func (h *ReaderHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.NextPage:
		return h.turn(ctx, env, true)
	case statemachine.PrevPage:
		return h.turn(ctx, env, false)
	case statemachine.ReadText:
		return h.read(env), nil
	case statemachine.CloseBook:
		if env.has(readerClose...) {
			return &Outcome{}, env.tap(ctx, "close book", readerClose...)
		}
		return &Outcome{}, driverFault("handlers.back", env.Driver.Back(ctx))
	}
	return nil, unsupported(h.Kind(), action)
}

// turn taps the outer tenth of the page on the requested side, "pages"
// times
func (h *ReaderHandler) turn(ctx context.Context, env *Env, forward bool) (*Outcome, error) {
	pages := env.Params.Int("pages", 1)
	if pages < 1 {
		pages = 1
	}

	area, err := pageArea(ctx, env)
	if err != nil {
		return nil, err
	}
	p := screen.Point{Y: area.Y1 + area.Height()/2}
	if forward {
		p.X = area.X2 - area.Width()/10
	} else {
		p.X = area.X1 + area.Width()/10
	}

	before := currentPage(env.Tree)
	for i := 0; i < pages; i++ {
		if err := env.tapPoint(ctx, "page edge", p); err != nil {
			return nil, err
		}
	}
	return payload("pages", pages, "from_page", before), nil
}

func pageArea(ctx context.Context, env *Env) (screen.Rect, error) {
	if w, h := env.Tree.Size(); w > 0 && h > 0 {
		for _, l := range readerContent {
			if el, ok := l.Match(env.Tree); ok {
				if r, ok := el.Bounds(); ok && r.Area() > 0 {
					return r, nil
				}
			}
		}
		return screen.Rect{X2: w, Y2: h}, nil
	}
	el, _, err := env.find(ctx, "reader content", readerContent...)
	if err != nil {
		return screen.Rect{}, err
	}
	r, ok := el.Bounds()
	if !ok {
		return screen.Rect{}, fault.New(fault.KindDriverFault, "handlers.page_area", "reader content has no bounds")
	}
	return r, nil
}

// read collects visible text under the reader content, footer excluded
func (h *ReaderHandler) read(env *Env) *Outcome {
	var lines []string
	for _, l := range readerContent {
		root, ok := l.Match(env.Tree)
		if !ok {
			continue
		}
		collectText(root, &lines)
		break
	}
	return payload(
		"text", strings.Join(lines, "\n"),
		"page", currentPage(env.Tree),
	)
}

func collectText(el *screen.Element, out *[]string) {
	if el.ResourceID() == view.AppID("reader_footer_page_number_text") {
		return
	}
	if t := strings.TrimSpace(el.Text()); t != "" {
		*out = append(*out, t)
	}
	for _, c := range el.Children() {
		collectText(c, out)
	}
}

func currentPage(tree *screen.Tree) string {
	for _, l := range pageNumber {
		if el, ok := l.Match(tree); ok {
			return el.Text()
		}
	}
	return ""
}
