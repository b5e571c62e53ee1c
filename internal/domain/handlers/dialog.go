package handlers

import (
	"context"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

// DialogHandler clears system overlays and the dialogs the reader raises
// over an open book
type DialogHandler struct{}

func (h *DialogHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerDialog }

func (h *DialogHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.DismissDialog:
		switch env.From.Identity {
		case view.LastReadPage:
			return h.lastRead(ctx, env)
		case view.AboutBook:
			return h.aboutBook(ctx, env)
		}
		if env.Params.Bool("allow", true) {
			return payload("allowed", true), env.tap(ctx, "allow button", permissionAllow...)
		}
		return payload("allowed", false), env.tap(ctx, "deny button", permissionDeny...)

	case statemachine.WaitForApp:
		if env.Params.Bool("close", false) {
			return payload("closed", true), env.tap(ctx, "close app button", anrClose...)
		}
		return payload("closed", false), env.tap(ctx, "wait button", anrWait...)
	}
	return nil, unsupported(h.Kind(), action)
}

// lastRead answers the "go to last read page" prompt. "goto_last_read"
// picks YES; the default stays on the page the book opened at.
func (h *DialogHandler) lastRead(ctx context.Context, env *Env) (*Outcome, error) {
	var text string
	if el, _, ok := first(env.Tree, lastReadMessage); ok {
		text = el.Text()
	}
	jump := env.Params.Bool("goto_last_read", false)
	out := payload("dialog", view.LastReadPage.String(), "dialog_text", text, "goto_last_read", jump)
	if jump {
		return out, env.tap(ctx, "yes button", lastReadYes...)
	}
	return out, env.tap(ctx, "no button", lastReadNo...)
}

// aboutBook closes the bottom sheet by tapping the dimmed area above it
func (h *DialogHandler) aboutBook(ctx context.Context, env *Env) (*Outcome, error) {
	w, hgt := env.Tree.Size()
	if w == 0 || hgt == 0 {
		w, hgt = 1080, 2400
	}
	p := screen.Point{X: w / 2, Y: hgt / 8}
	if el, _, ok := first(env.Tree, aboutBookContent); ok {
		if r, ok := el.Bounds(); ok && r.Y1 > 0 {
			p.Y = r.Y1 / 2
		}
	}
	return payload("dialog", view.AboutBook.String()), env.tapPoint(ctx, "above about book sheet", p)
}
