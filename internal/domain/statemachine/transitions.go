package statemachine

import (
	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

const (
	Login          Action = "login"
	SubmitPassword Action = "submit_password"
	SubmitTwoFA    Action = "submit_2fa"
	SolveCaptcha   Action = "solve_captcha"
	DismissDialog  Action = "dismiss_dialog"
	WaitForApp     Action = "wait_for_app"
	SignIn         Action = "sign_in"
	OpenBook       Action = "open_book"
	OpenRandomBook Action = "open_random_book"
	ScrollLibrary  Action = "scroll_library"
	ListBooks      Action = "list_books"
	OpenSettings   Action = "open_settings"
	GoHome         Action = "go_home"
	GoLibrary      Action = "go_library"
	NextPage       Action = "next_page"
	PrevPage       Action = "prev_page"
	ReadText       Action = "read_text"
	CloseBook      Action = "close_book"
	Sync           Action = "sync"
	SignOut        Action = "sign_out"
)

const (
	HandlerAuth      HandlerKind = "auth"
	HandlerChallenge HandlerKind = "challenge"
	HandlerDialog    HandlerKind = "dialog"
	HandlerLibrary   HandlerKind = "library"
	HandlerHome      HandlerKind = "home"
	HandlerReader    HandlerKind = "reader"
	HandlerSettings  HandlerKind = "settings"
)

// NonCoalescing lists actions whose repeats are distinct requests even
// with identical params
var NonCoalescing = map[Action]bool{
	OpenRandomBook: true,
}

var (
	library   = view.Of(view.Library)
	populated = view.With(view.Library, view.Populated)
	book      = view.Of(view.BookOpen)
	home      = view.Of(view.Home)
	settings  = view.Of(view.Settings)
	login     = view.Of(view.AuthLogin)
	password  = view.Of(view.AuthPassword)
	twoFA     = view.Of(view.TwoFactor)
	captcha   = view.Of(view.Captcha)
	signedOut = view.Of(view.LibrarySignIn)
	lastRead  = view.Of(view.LastReadPage)
	aboutBook = view.Of(view.AboutBook)
)

// opened is where opening a book may land: the page itself or a dialog
// the reader raises over it
var opened = []view.View{book, lastRead, aboutBook}

// afterOverlay is where the app may land once a system dialog is gone
var afterOverlay = []view.View{library, home, login, signedOut, book}

// DefaultTransitions is the transition graph of the reading app. Actions
// with several possible outcomes list every accepted destination.
func DefaultTransitions() []Transition {
	return []Transition{
		{From: login, Action: Login, Targets: []view.View{library, twoFA, captcha, password}, Handler: HandlerAuth},
		{From: password, Action: SubmitPassword, Targets: []view.View{library, twoFA, captcha}, Handler: HandlerAuth},

		{From: twoFA, Action: SubmitTwoFA, Targets: []view.View{library, captcha}, Handler: HandlerChallenge},
		{From: captcha, Action: SolveCaptcha, Targets: []view.View{library, twoFA, password}, Handler: HandlerChallenge},

		{From: view.Of(view.NotificationPermission), Action: DismissDialog, Targets: afterOverlay, Handler: HandlerDialog},
		{From: view.Of(view.AppNotResponding), Action: WaitForApp, Targets: afterOverlay, Handler: HandlerDialog},
		{From: lastRead, Action: DismissDialog, Targets: []view.View{book, aboutBook}, Handler: HandlerDialog},
		{From: aboutBook, Action: DismissDialog, Targets: []view.View{book}, Handler: HandlerDialog},

		{From: signedOut, Action: SignIn, Targets: []view.View{login}, Handler: HandlerLibrary},
		{From: populated, Action: OpenBook, Targets: opened, Handler: HandlerLibrary},
		{From: populated, Action: OpenRandomBook, Targets: opened, Handler: HandlerLibrary},
		{From: library, Action: ScrollLibrary, Targets: []view.View{library}, Handler: HandlerLibrary},
		{From: library, Action: ListBooks, Targets: []view.View{library}, Handler: HandlerLibrary},
		{From: library, Action: OpenSettings, Targets: []view.View{settings}, Handler: HandlerLibrary},
		{From: library, Action: GoHome, Targets: []view.View{home}, Handler: HandlerLibrary},

		{From: home, Action: GoLibrary, Targets: []view.View{library}, Handler: HandlerHome},
		{From: home, Action: OpenSettings, Targets: []view.View{settings}, Handler: HandlerHome},

		{From: book, Action: NextPage, Targets: []view.View{book}, Handler: HandlerReader},
		{From: book, Action: PrevPage, Targets: []view.View{book}, Handler: HandlerReader},
		{From: book, Action: ReadText, Targets: []view.View{book}, Handler: HandlerReader},
		{From: book, Action: CloseBook, Targets: []view.View{library}, Handler: HandlerReader},

		{From: settings, Action: Sync, Targets: []view.View{settings}, Handler: HandlerSettings},
		{From: settings, Action: GoLibrary, Targets: []view.View{library}, Handler: HandlerSettings},
		{From: settings, Action: SignOut, Targets: []view.View{login, signedOut}, Handler: HandlerSettings},
	}
}

// ImpliedAuth maps an arrived view to the auth state it proves. Overlays
// and Unknown prove nothing.
func ImpliedAuth(v view.View) (account.AuthState, bool) {
	switch v.Identity {
	case view.TwoFactor:
		return account.AuthPendingTwoFA, true
	case view.Captcha:
		return account.AuthPendingCaptcha, true
	case view.Library, view.Home, view.BookOpen, view.Settings, view.LastReadPage, view.AboutBook:
		return account.AuthAuthenticated, true
	case view.AuthLogin, view.AuthPassword, view.LibrarySignIn:
		return account.AuthUnauthenticated, true
	}
	return "", false
}
