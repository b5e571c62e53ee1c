package handlers

import (
	"context"

	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
)

// SettingsHandler works the "More" tab
type SettingsHandler struct{}

func (h *SettingsHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerSettings }

func (h *SettingsHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.Sync:
		if err := env.tap(ctx, "sync item", syncItem...); err != nil {
			return nil, err
		}
		if err := env.settle(ctx); err != nil {
			return nil, err
		}
		out := payload("synced", true)
		if el, _, ok := first(env.Tree, lastSynced); ok {
			out.Payload["status"] = el.Text()
		}
		return out, nil

	case statemachine.GoLibrary:
		return &Outcome{}, env.tap(ctx, "library tab", libraryTab...)

	case statemachine.SignOut:
		if err := env.tap(ctx, "sign out item", signOutItem...); err != nil {
			return nil, err
		}
		if err := env.settle(ctx); err != nil {
			return nil, err
		}
		if env.has(dialogConfirm...) {
			return &Outcome{}, env.tap(ctx, "confirm sign out", dialogConfirm...)
		}
		return &Outcome{}, nil
	}
	return nil, unsupported(h.Kind(), action)
}
