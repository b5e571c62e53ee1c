package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/readerfleet/internal/domain/statemachine"
)

// AuthHandler drives the credential screens
type AuthHandler struct{}

func (h *AuthHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerAuth }

func (h *AuthHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.Login:
		return h.login(ctx, env)
	case statemachine.SubmitPassword:
		password, err := env.Params.Require(action, "password")
		if err != nil {
			return nil, err
		}
		return &Outcome{}, h.submitPassword(ctx, env, password)
	}
	return nil, unsupported(h.Kind(), action)
}

// login enters the email and, when a password is supplied and the app asks
// for it on the next page, continues straight through
func (h *AuthHandler) login(ctx context.Context, env *Env) (*Outcome, error) {
	email, err := env.Params.Require(statemachine.Login, "email")
	if err != nil {
		return nil, err
	}
	password, hasPassword := env.Params.String("password")

	if err := env.typeInto(ctx, "email field", email, emailField...); err != nil {
		return nil, err
	}
	if err := env.tap(ctx, "continue button", continueButton...); err != nil {
		return nil, err
	}
	if !hasPassword {
		return payload("password_submitted", false), nil
	}

	if err := env.settle(ctx); err != nil {
		return nil, err
	}
	if !env.has(passwordField...) {
		env.log().Info("password page not shown after email", zap.String("account_id", env.AccountID))
		return payload("password_submitted", false), nil
	}
	if err := h.submitPassword(ctx, env, password); err != nil {
		return nil, err
	}
	return payload("password_submitted", true), nil
}

func (h *AuthHandler) submitPassword(ctx context.Context, env *Env, password string) error {
	if err := env.typeInto(ctx, "password field", password, passwordField...); err != nil {
		return err
	}
	return env.tap(ctx, "sign-in button", signInSubmit...)
}

// ChallengeHandler answers 2FA and captcha prompts with caller-supplied values
type ChallengeHandler struct{}

func (h *ChallengeHandler) Kind() statemachine.HandlerKind { return statemachine.HandlerChallenge }

func (h *ChallengeHandler) Handle(ctx context.Context, env *Env, action statemachine.Action) (*Outcome, error) {
	switch action {
	case statemachine.SubmitTwoFA:
		code, err := env.Params.Require(action, "code")
		if err != nil {
			return nil, err
		}
		if err := env.typeInto(ctx, "otp field", code, otpField...); err != nil {
			return nil, err
		}
		return &Outcome{}, env.tap(ctx, "otp submit", otpSubmit...)

	case statemachine.SolveCaptcha:
		solution, err := env.Params.Require(action, "solution")
		if err != nil {
			return nil, err
		}
		if err := env.typeInto(ctx, "captcha field", solution, captchaField...); err != nil {
			return nil, err
		}
		return &Outcome{}, env.tap(ctx, "captcha submit", captchaSubmit...)
	}
	return nil, unsupported(h.Kind(), action)
}
