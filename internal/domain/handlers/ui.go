package handlers

import (
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

func must(l view.Locator) view.Locator {
	c, err := l.Compile()
	if err != nil {
		panic(err)
	}
	return c
}

// Interaction targets. Recognition markers live in the view catalog; these
// are the controls handlers press once a view is known.
var (
	emailField = []view.Locator{
		must(view.ByXPath("//android.widget.EditText[@hint='Email or phone number']")),
		must(view.ByID("ap_email")),
	}
	passwordField = []view.Locator{
		must(view.ByXPath("//android.widget.EditText[@password='true']")),
		must(view.ByID("ap_password")),
	}
	continueButton = []view.Locator{
		must(view.ByID("continue")),
		must(view.ByXPath("//android.widget.Button[@text='Continue']")),
	}
	signInSubmit = []view.Locator{
		must(view.ByID("signInSubmit")),
		must(view.ByXPath("//android.widget.Button[@text='Sign in']")),
	}

	otpField = []view.Locator{
		must(view.ByID("auth-mfa-otpcode")),
	}
	otpSubmit = []view.Locator{
		must(view.ByID("auth-signin-button")),
		must(view.ByXPath("//android.widget.Button[@text='Sign in']")),
	}
	captchaField = []view.Locator{
		must(view.ByXPath("//android.widget.EditText[contains(@resource-id, 'captcha')]")),
	}
	captchaSubmit = []view.Locator{
		must(view.ByXPath("//android.widget.Button[contains(@resource-id, 'captcha') or @text='Continue']")),
	}

	permissionAllow = []view.Locator{
		must(view.ByID("com.android.permissioncontroller:id/permission_allow_button")),
	}
	permissionDeny = []view.Locator{
		must(view.ByID("com.android.permissioncontroller:id/permission_deny_button")),
	}
	anrWait = []view.Locator{
		must(view.ByID("android:id/aerr_wait")),
	}
	anrClose = []view.Locator{
		must(view.ByID("android:id/aerr_close")),
	}

	librarySignIn = []view.Locator{
		must(view.ByID(view.AppID("empty_library_sign_in"))),
		must(view.ByXPath("//android.widget.Button[@text='SIGN IN']")),
	}
	libraryList = []view.Locator{
		must(view.ByID(view.AppID("recycler_view"))),
	}
	libraryTab = []view.Locator{
		must(view.ByID(view.AppID("library_tab"))),
		must(view.ByContains("LIBRARY, Tab")),
	}
	homeTab = []view.Locator{
		must(view.ByID(view.AppID("home_tab"))),
		must(view.ByContains("HOME, Tab")),
	}
	moreTab = []view.Locator{
		must(view.ByID(view.AppID("more_tab"))),
		must(view.ByContains("More, Tab")),
	}

	readerContent = []view.Locator{
		must(view.ByID(view.AppID("reader_content_fragment_container"))),
		must(view.ByID(view.AppID("reader_view"))),
	}
	pageNumber = []view.Locator{
		must(view.ByID(view.AppID("reader_footer_page_number_text"))),
	}
	readerClose = []view.Locator{
		must(view.ByID(view.AppID("reader_close_button"))),
		must(view.ByDesc("Close book")),
	}

	syncItem = []view.Locator{
		must(view.ByID(view.AppID("sync_item_id"))),
	}
	lastSynced = []view.Locator{
		must(view.ByID(view.AppID("sync_status_text"))),
	}
	signOutItem = []view.Locator{
		must(view.ByID(view.AppID("sign_out_item_id"))),
		must(view.ByText("Sign out")),
	}
	dialogConfirm = []view.Locator{
		must(view.ByID("android:id/button1")),
	}

	lastReadMessage = []view.Locator{
		must(view.ByID("android:id/message")),
	}
	lastReadYes = []view.Locator{
		must(view.ByID("android:id/button1")),
		must(view.ByXPath("//android.widget.Button[@text='YES']")),
	}
	lastReadNo = []view.Locator{
		must(view.ByID("android:id/button2")),
		must(view.ByXPath("//android.widget.Button[@text='NO']")),
	}
	aboutBookContent = []view.Locator{
		must(view.ByID(view.AppID("bottom_sheet_content"))),
	}
)

// libraryItemsXPath selects the book rows of the library list
var libraryItemsXPath = "//*[@resource-id=" + view.Literal(view.AppID("recycler_view")) + "]/*"
