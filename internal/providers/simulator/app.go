package simulator

import (
	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

// Script configures how a simulated account's app behaves
type Script struct {
	// Initial is the first screen of a fresh install
	Initial Screen
	// PasswordPage splits sign-in into an email page and a password page
	PasswordPage bool
	// LoginResult is where valid credentials land: library, two_factor
	// or captcha
	LoginResult Screen
	// OTP is the accepted 2FA code. Empty accepts any code.
	OTP string
	// AfterCaptcha is where a solved captcha lands. Empty means library.
	AfterCaptcha Screen
	Books        []string
	// LastReadDialog asks whether to jump to the furthest page read when
	// a book reopens behind it
	LastReadDialog bool
	// AboutBook raises the about-this-book sheet on a book's first open
	AboutBook bool
	// BootPolls is how many status polls report booting before ready
	BootPolls int
}

// DefaultScript signs straight into a small populated library
func DefaultScript() Script {
	return Script{
		Initial:      ScreenLogin,
		PasswordPage: false,
		LoginResult:  ScreenLibrary,
		Books:        []string{"Nineteen Eighty-Four", "Brave New World", "The Left Hand of Darkness"},
		BootPolls:    1,
	}
}

// appState is the in-app state a snapshot preserves
type appState struct {
	screen     Screen
	overlay    Overlay
	fields     map[string]string
	signedIn   bool
	books      []string
	scroll     int
	book       int
	page       int
	furthest   map[int]int
	opened     map[int]bool
	lastSynced string
	syncs      int
	notice     string
}

func newAppState(s Script) *appState {
	return &appState{
		screen: s.Initial,
		fields: make(map[string]string),
		books:    append([]string(nil), s.Books...),
		page:     1,
		furthest: make(map[int]int),
		opened:   make(map[int]bool),
	}
}

func (a *appState) clone() *appState {
	out := *a
	out.fields = make(map[string]string, len(a.fields))
	for k, v := range a.fields {
		out.fields[k] = v
	}
	out.books = append([]string(nil), a.books...)
	out.furthest = make(map[int]int, len(a.furthest))
	for k, v := range a.furthest {
		out.furthest[k] = v
	}
	out.opened = make(map[int]bool, len(a.opened))
	for k, v := range a.opened {
		out.opened[k] = v
	}
	return &out
}

func (a *appState) visibleBooks() []string {
	if a.scroll >= len(a.books) {
		return nil
	}
	end := a.scroll + visibleRow
	if end > len(a.books) {
		end = len(a.books)
	}
	return a.books[a.scroll:end]
}

func (a *appState) bookTitle() string {
	if a.book >= 0 && a.book < len(a.books) {
		return a.books[a.book]
	}
	return ""
}

func (a *appState) show(s Screen) {
	a.screen = s
	a.notice = ""
}

// openBook shows a book at its first page, raising whichever reader
// dialog the script enables
func (a *appState) openBook(script Script, idx int) {
	a.book, a.page = idx, 1
	a.show(ScreenBook)
	switch {
	case script.LastReadDialog && a.furthest[idx] > 1:
		a.overlay = OverlayLastRead
	case script.AboutBook && !a.opened[idx]:
		a.overlay = OverlayAboutBook
	}
	a.opened[idx] = true
}

func (a *appState) turn(delta int) {
	if a.page+delta < 1 {
		return
	}
	a.page += delta
	if a.page > a.furthest[a.book] {
		a.furthest[a.book] = a.page
	}
}

// land applies the result of a successful credential or challenge step
func (a *appState) land(s Screen) {
	if s == "" || s == ScreenLibrary {
		a.signedIn = true
		a.fields = make(map[string]string)
		a.show(ScreenLibrary)
		return
	}
	a.show(s)
}

// tap handles a press on the element with resource id, at point p
func (a *appState) tap(script Script, id string, p screen.Point) {
	if a.overlay != OverlayNone {
		a.tapOverlay(id, p)
		return
	}
	switch a.screen {
	case ScreenLogin:
		if id == idContinue && a.fields[idEmailField] != "" {
			if script.PasswordPage {
				a.show(ScreenPassword)
			} else {
				a.land(script.LoginResult)
			}
		}
	case ScreenPassword:
		if id == idSignInSubmit && a.fields[idPasswordField] != "" {
			a.land(script.LoginResult)
		}
	case ScreenTwoFactor:
		if id == idOTPSubmit {
			code := a.fields[idOTPField]
			if code != "" && (script.OTP == "" || code == script.OTP) {
				a.land(ScreenLibrary)
				return
			}
			a.fields[idOTPField] = ""
			a.notice = "The code you entered is not valid"
		}
	case ScreenCaptcha:
		if id == idCaptchaSubmit && a.fields[idCaptchaField] != "" {
			a.fields[idCaptchaField] = ""
			a.land(script.AfterCaptcha)
		}
	case ScreenLibrarySignIn:
		if id == idLibrarySignIn {
			a.show(ScreenLogin)
		}
	case ScreenLibrary:
		switch id {
		case idBookRow, idBookTitle, idBookAuthor:
			if p.Y < listTop || p.Y >= tabTop {
				return
			}
			idx := a.scroll + (p.Y-listTop)/rowHeight
			if idx < len(a.books) {
				a.openBook(script, idx)
			}
		default:
			a.tapTab(id)
		}
	case ScreenHome:
		a.tapTab(id)
	case ScreenSettings:
		switch id {
		case idSyncItem:
			a.syncs++
			a.lastSynced = "Last synced: just now"
		case idSignOutItem:
			a.overlay = overlayConfirm
		default:
			a.tapTab(id)
		}
	case ScreenBook:
		switch {
		case id == idReaderClose:
			a.show(ScreenLibrary)
		case p.X >= width*4/5:
			a.turn(1)
		case p.X <= width/5:
			a.turn(-1)
		}
	}
}

func (a *appState) tapTab(id string) {
	switch id {
	case idHomeTab:
		a.show(ScreenHome)
	case idLibraryTab:
		a.scroll = 0
		a.show(ScreenLibrary)
	case idMoreTab:
		a.show(ScreenSettings)
	}
}

func (a *appState) tapOverlay(id string, p screen.Point) {
	switch a.overlay {
	case OverlayLastRead:
		switch id {
		case idDialogConfirm:
			a.overlay = OverlayNone
			a.page = a.furthest[a.book]
		case idDialogCancel:
			a.overlay = OverlayNone
		}
	case OverlayAboutBook:
		if p.Y < sheetTop {
			a.overlay = OverlayNone
		}
	case OverlayPermission:
		if id == idPermAllow || id == idPermDeny {
			a.overlay = OverlayNone
		}
	case OverlayANR:
		if id == idANRWait {
			a.overlay = OverlayNone
		}
		if id == idANRClose {
			a.overlay = OverlayNone
			a.relaunch()
		}
	case overlayConfirm:
		switch id {
		case idDialogConfirm:
			a.overlay = OverlayNone
			a.signedIn = false
			a.show(ScreenLibrarySignIn)
		case idDialogCancel:
			a.overlay = OverlayNone
		}
	}
}

// relaunch is a cold start of the app on an already booted device
func (a *appState) relaunch() {
	if a.signedIn {
		a.scroll = 0
		a.show(ScreenLibrary)
		return
	}
	a.show(ScreenLibrarySignIn)
}

func (a *appState) typeText(id, text string) bool {
	if a.overlay != OverlayNone || !inputFields[id] {
		return false
	}
	a.fields[id] = text
	return true
}

var inputFields = map[string]bool{
	idEmailField:    true,
	idPasswordField: true,
	idOTPField:      true,
	idCaptchaField:  true,
}

func (a *appState) swipe(from, to screen.Point) {
	if a.overlay != OverlayNone {
		return
	}
	switch a.screen {
	case ScreenLibrary:
		if from.Y > to.Y {
			last := len(a.books) - visibleRow
			if last < 0 {
				last = 0
			}
			a.scroll += visibleRow
			if a.scroll > last {
				a.scroll = last
			}
		} else if from.Y < to.Y {
			a.scroll = 0
		}
	case ScreenBook:
		if from.X > to.X {
			a.turn(1)
		} else if from.X < to.X {
			a.turn(-1)
		}
	}
}

func (a *appState) back() {
	switch a.overlay {
	case OverlayPermission, overlayConfirm, OverlayLastRead, OverlayAboutBook:
		a.overlay = OverlayNone
		return
	}
	switch a.screen {
	case ScreenBook, ScreenHome, ScreenSettings:
		a.show(ScreenLibrary)
	case ScreenPassword:
		a.show(ScreenLogin)
	}
}
