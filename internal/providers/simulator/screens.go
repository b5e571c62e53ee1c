package simulator

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

// Screen is a page of the simulated reading app
type Screen string

const (
	ScreenLogin         Screen = "login"
	ScreenPassword      Screen = "password"
	ScreenTwoFactor     Screen = "two_factor"
	ScreenCaptcha       Screen = "captcha"
	ScreenLibrary       Screen = "library"
	ScreenLibrarySignIn Screen = "library_sign_in"
	ScreenHome          Screen = "home"
	ScreenSettings      Screen = "settings"
	ScreenBook          Screen = "book"
	// ScreenBlank matches no known view
	ScreenBlank Screen = "blank"
)

// Overlay is a system dialog drawn over the current screen
type Overlay string

const (
	OverlayNone       Overlay = ""
	OverlayPermission Overlay = "permission"
	OverlayANR        Overlay = "anr"
	OverlayLastRead   Overlay = "last_read_page"
	OverlayAboutBook  Overlay = "about_book"
	overlayConfirm    Overlay = "confirm_sign_out"
)

const (
	width      = 1080
	height     = 2400
	listTop    = 300
	tabTop     = 2250
	rowHeight  = 250
	visibleRow = (tabTop - listTop) / rowHeight
	sheetTop   = 1500
)

var (
	idEmailField     = "ap_email"
	idPasswordField  = "ap_password"
	idContinue       = "continue"
	idSignInSubmit   = "signInSubmit"
	idOTPField       = "auth-mfa-otpcode"
	idOTPSubmit      = "auth-signin-button"
	idCaptchaField   = "auth-captcha-guess"
	idCaptchaSubmit  = "auth-captcha-continue"
	idPermMessage    = "com.android.permissioncontroller:id/permission_message"
	idPermAllow      = "com.android.permissioncontroller:id/permission_allow_button"
	idPermDeny       = "com.android.permissioncontroller:id/permission_deny_button"
	idANRWait        = "android:id/aerr_wait"
	idANRClose       = "android:id/aerr_close"
	idDialogConfirm  = "android:id/button1"
	idDialogCancel   = "android:id/button2"
	idDialogMessage  = "android:id/message"
	idSheetContainer = view.AppID("bottom_sheet_container")
	idSheetContent   = view.AppID("bottom_sheet_content")
	idTouchOutside   = view.AppID("touch_outside")
	idLibrarySignIn  = view.AppID("empty_library_sign_in")
	idLibraryRoot    = view.AppID("library_root_view")
	idLibraryEmpty   = view.AppID("library_empty_view")
	idRecycler       = view.AppID("recycler_view")
	idBookRow        = view.AppID("badgeable_cover")
	idBookTitle      = view.AppID("lib_book_row_title")
	idBookAuthor     = view.AppID("lib_book_row_author")
	idHomeTab        = view.AppID("home_tab")
	idLibraryTab     = view.AppID("library_tab")
	idMoreTab        = view.AppID("more_tab")
	idMoreRoot       = view.AppID("more_screenlet_root")
	idSyncItem       = view.AppID("sync_item_id")
	idSyncStatus     = view.AppID("sync_status_text")
	idSignOutItem    = view.AppID("sign_out_item_id")
	idReaderRoot     = view.AppID("reader_root_view")
	idReaderContent  = view.AppID("reader_content_fragment_container")
	idReaderPage     = view.AppID("reader_footer_page_number_text")
	idReaderClose    = view.AppID("reader_close_button")
	idHomeFeed       = view.AppID("home_feed")
	idBlankContainer = view.AppID("interstitial_container")
)

type node struct {
	class    string
	attrs    []string
	bounds   screen.Rect
	children []node
}

func el(class string, r screen.Rect, attrs ...string) node {
	return node{class: class, attrs: attrs, bounds: r}
}

func (n node) with(children ...node) node {
	n.children = append(n.children, children...)
	return n
}

func rect(x1, y1, x2, y2 int) screen.Rect {
	return screen.Rect{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

var full = rect(0, 0, width, height)

func (n node) write(buf *bytes.Buffer) {
	buf.WriteString("<node class=\"")
	xml.EscapeText(buf, []byte(n.class))
	buf.WriteByte('"')
	for i := 0; i+1 < len(n.attrs); i += 2 {
		fmt.Fprintf(buf, " %s=\"", n.attrs[i])
		xml.EscapeText(buf, []byte(n.attrs[i+1]))
		buf.WriteByte('"')
	}
	fmt.Fprintf(buf, " bounds=\"%s\"", n.bounds)
	if len(n.children) == 0 {
		buf.WriteString("/>")
		return
	}
	buf.WriteByte('>')
	for _, c := range n.children {
		c.write(buf)
	}
	buf.WriteString("</node>")
}

// render produces the page source of the app state
func render(s *appState) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8"?><hierarchy index="0" rotation="0" width="%d" height="%d">`, width, height)
	root := el("android.widget.FrameLayout", full, "package", view.AppPackage).with(screenNode(s))
	root.write(&buf)
	if ov := overlayNode(s); ov != nil {
		ov.write(&buf)
	}
	buf.WriteString("</hierarchy>")
	return buf.Bytes()
}

func screenNode(s *appState) node {
	switch s.screen {
	case ScreenLogin:
		return el("android.webkit.WebView", full, "text", "Amazon Sign-In").with(
			el("android.widget.TextView", rect(60, 200, 1020, 300), "text", "Sign in"),
			el("android.widget.EditText", rect(60, 400, 1020, 520),
				"resource-id", idEmailField, "hint", "Email or phone number", "text", s.fields[idEmailField]),
			el("android.widget.Button", rect(60, 600, 1020, 720), "resource-id", idContinue, "text", "Continue"),
		)
	case ScreenPassword:
		return el("android.webkit.WebView", full, "text", "Amazon Sign-In").with(
			el("android.widget.TextView", rect(60, 200, 1020, 300), "text", s.fields[idEmailField]),
			el("android.widget.EditText", rect(60, 400, 1020, 520),
				"resource-id", idPasswordField, "hint", "Amazon password", "password", "true",
				"text", strings.Repeat("•", len(s.fields[idPasswordField]))),
			el("android.widget.Button", rect(60, 600, 1020, 720), "resource-id", idSignInSubmit, "text", "Sign in"),
		)
	case ScreenTwoFactor:
		return el("android.webkit.WebView", full, "text", "Amazon Sign-In").with(
			el("android.widget.TextView", rect(60, 200, 1020, 300), "text", "Two-Step Verification"),
			el("android.widget.TextView", rect(60, 320, 1020, 380), "text", s.notice),
			el("android.widget.EditText", rect(60, 400, 1020, 520), "resource-id", idOTPField, "text", s.fields[idOTPField]),
			el("android.widget.Button", rect(60, 600, 1020, 720), "resource-id", idOTPSubmit, "text", "Sign in"),
		)
	case ScreenCaptcha:
		return el("android.webkit.WebView", full, "text", "Amazon Sign-In").with(
			el("android.widget.TextView", rect(60, 200, 1020, 300), "text", "Solve this puzzle to protect your account"),
			el("android.widget.Image", rect(60, 320, 1020, 620), "text", "captcha image"),
			el("android.widget.EditText", rect(60, 660, 1020, 780), "resource-id", idCaptchaField, "text", s.fields[idCaptchaField]),
			el("android.widget.Button", rect(60, 820, 1020, 940), "resource-id", idCaptchaSubmit, "text", "Continue"),
		)
	case ScreenLibrarySignIn:
		return el("android.widget.LinearLayout", full).with(
			el("android.widget.TextView", rect(60, 800, 1020, 900), "text", "Sign in to access your Kindle Library"),
			el("android.widget.Button", rect(240, 1000, 840, 1120), "resource-id", idLibrarySignIn, "text", "SIGN IN"),
		)
	case ScreenLibrary:
		return el("android.widget.LinearLayout", full).with(libraryNode(s), tabBar(idLibraryTab))
	case ScreenHome:
		return el("android.widget.LinearLayout", full).with(
			el("android.widget.ScrollView", rect(0, 0, width, tabTop), "resource-id", idHomeFeed).with(
				el("android.widget.TextView", rect(60, 100, 1020, 200), "text", "Recommended for you"),
			),
			tabBar(idHomeTab),
		)
	case ScreenSettings:
		return el("android.widget.LinearLayout", full).with(
			el("android.widget.ScrollView", rect(0, 0, width, tabTop), "resource-id", idMoreRoot).with(
				el("android.widget.TextView", rect(0, 200, width, 350), "resource-id", idSyncItem, "text", "Sync"),
				el("android.widget.TextView", rect(0, 350, width, 420), "resource-id", idSyncStatus, "text", s.lastSynced),
				el("android.widget.TextView", rect(0, 500, width, 650), "resource-id", idSignOutItem, "text", "Sign out"),
			),
			tabBar(idMoreTab),
		)
	case ScreenBook:
		return el("android.widget.FrameLayout", full, "resource-id", idReaderRoot).with(
			el("android.widget.ImageButton", rect(0, 0, 150, 150), "resource-id", idReaderClose, "content-desc", "Close book"),
			el("android.widget.FrameLayout", rect(0, 150, width, 2250), "resource-id", idReaderContent).with(
				el("android.widget.TextView", rect(60, 200, 1020, 300), "text", s.bookTitle()),
				el("android.widget.TextView", rect(60, 320, 1020, 2200), "text", pageText(s.bookTitle(), s.page)),
			),
			el("android.widget.TextView", rect(0, 2250, width, 2400), "resource-id", idReaderPage, "text", fmt.Sprintf("Page %d", s.page)),
		)
	default:
		return el("android.widget.FrameLayout", full, "resource-id", idBlankContainer).with(
			el("android.widget.ProgressBar", rect(490, 1150, 590, 1250)),
		)
	}
}

func libraryNode(s *appState) node {
	root := el("android.widget.FrameLayout", rect(0, 0, width, tabTop), "resource-id", idLibraryRoot)
	if len(s.books) == 0 {
		return root.with(el("android.widget.TextView", rect(60, 800, 1020, 900),
			"resource-id", idLibraryEmpty, "text", "It's empty here"))
	}
	list := el("androidx.recyclerview.widget.RecyclerView", rect(0, listTop, width, tabTop), "resource-id", idRecycler)
	for i, title := range s.visibleBooks() {
		top := listTop + i*rowHeight
		list = list.with(el("android.widget.LinearLayout", rect(0, top, width, top+rowHeight),
			"resource-id", idBookRow, "content-desc", title+", Book").with(
			el("android.widget.TextView", rect(200, top+40, 1020, top+120), "resource-id", idBookTitle, "text", title),
			el("android.widget.TextView", rect(200, top+130, 1020, top+200), "resource-id", idBookAuthor, "text", "Author"),
		))
	}
	return root.with(list)
}

func tabBar(selected string) node {
	tab := func(id, label string, x1, x2 int) node {
		desc := label + ", Tab"
		sel := "false"
		if id == selected {
			desc += " selected"
			sel = "true"
		}
		return el("android.widget.FrameLayout", rect(x1, tabTop, x2, height),
			"resource-id", id, "content-desc", desc, "selected", sel)
	}
	return el("android.widget.LinearLayout", rect(0, tabTop, width, height)).with(
		tab(idHomeTab, "HOME", 0, 360),
		tab(idLibraryTab, "LIBRARY", 360, 720),
		tab(idMoreTab, "More", 720, 1080),
	)
}

func overlayNode(s *appState) *node {
	var n node
	switch s.overlay {
	case OverlayPermission:
		n = el("android.widget.FrameLayout", full, "package", "com.android.permissioncontroller").with(
			el("android.widget.LinearLayout", rect(100, 900, 980, 1500)).with(
				el("android.widget.TextView", rect(140, 940, 940, 1100),
					"resource-id", idPermMessage, "text", "Allow Kindle to send you notifications?"),
				el("android.widget.Button", rect(140, 1200, 940, 1320), "resource-id", idPermAllow, "text", "Allow"),
				el("android.widget.Button", rect(140, 1340, 940, 1460), "resource-id", idPermDeny, "text", "Don't allow"),
			),
		)
	case OverlayANR:
		n = el("android.widget.FrameLayout", full, "package", "android").with(
			el("android.widget.LinearLayout", rect(100, 900, 980, 1500)).with(
				el("android.widget.TextView", rect(140, 940, 940, 1100), "text", "Kindle isn't responding"),
				el("android.widget.Button", rect(140, 1200, 940, 1320), "resource-id", idANRClose, "text", "Close app"),
				el("android.widget.Button", rect(140, 1340, 940, 1460), "resource-id", idANRWait, "text", "Wait"),
			),
		)
	case overlayConfirm:
		n = el("android.widget.FrameLayout", full, "package", "android").with(
			el("android.widget.LinearLayout", rect(100, 900, 980, 1500)).with(
				el("android.widget.TextView", rect(140, 940, 940, 1100), "text", "Sign out of this device?"),
				el("android.widget.Button", rect(140, 1200, 520, 1320), "resource-id", idDialogCancel, "text", "CANCEL"),
				el("android.widget.Button", rect(560, 1200, 940, 1320), "resource-id", idDialogConfirm, "text", "SIGN OUT"),
			),
		)
	case OverlayLastRead:
		n = el("android.widget.FrameLayout", full, "package", "android").with(
			el("android.widget.LinearLayout", rect(100, 900, 980, 1500)).with(
				el("android.widget.TextView", rect(140, 940, 940, 1100), "resource-id", idDialogMessage,
					"text", fmt.Sprintf("You are currently on page %d. Go to page %d?", s.page, s.furthest[s.book])),
				el("android.widget.Button", rect(140, 1200, 520, 1320), "resource-id", idDialogCancel, "text", "NO"),
				el("android.widget.Button", rect(560, 1200, 940, 1320), "resource-id", idDialogConfirm, "text", "YES"),
			),
		)
	case OverlayAboutBook:
		n = el("android.widget.FrameLayout", full, "resource-id", idSheetContainer).with(
			el("android.widget.FrameLayout", full, "resource-id", idTouchOutside, "clickable", "true"),
			el("android.widget.LinearLayout", rect(0, sheetTop, width, height), "resource-id", idSheetContent).with(
				el("android.widget.TextView", rect(60, sheetTop+60, 1020, sheetTop+160), "text", "About this book"),
				el("android.widget.TextView", rect(60, sheetTop+180, 1020, sheetTop+280), "text", s.bookTitle()),
			),
		)
	default:
		return nil
	}
	return &n
}

func pageText(title string, page int) string {
	return fmt.Sprintf("%s. Page %d. It was a bright cold day in April, and the clocks were striking thirteen.", title, page)
}
