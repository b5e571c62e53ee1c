package view

// AppPackage is the package of the automated reading app
const AppPackage = "com.amazon.kindle"

// AppID qualifies a resource name with the app package
func AppID(name string) string {
	return AppPackage + ":id/" + name
}

// DefaultCatalog returns the shipped recognition rules. Overlays and
// challenges come first because the screen beneath them keeps its markers
// in the tree.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			Name: "overlay",
			Rules: []Rule{
				{
					Identity: NotificationPermission,
					Locators: []Locator{
						ByID("com.android.permissioncontroller:id/permission_message"),
						ByID("com.android.permissioncontroller:id/permission_allow_button"),
					},
				},
				{
					Identity: AppNotResponding,
					Locators: []Locator{
						ByID("android:id/aerr_wait"),
						ByContains("isn't responding"),
					},
				},
			},
		},
		{
			Name: "challenge",
			Rules: []Rule{
				{
					Identity: Captcha,
					Locators: []Locator{
						ByXPath("//*[contains(@resource-id, 'captcha')]"),
						ByXPath("//android.widget.Image[contains(@text, 'captcha')]"),
						ByContains("Solve this puzzle"),
					},
				},
				{
					Identity: TwoFactor,
					Locators: []Locator{
						ByXPath("//android.widget.EditText[@resource-id='auth-mfa-otpcode']"),
						ByContains("Two-Step Verification"),
					},
				},
			},
		},
		{
			Name: "auth",
			Rules: []Rule{
				{
					Identity: AuthPassword,
					Locators: []Locator{
						ByXPath("//android.widget.EditText[@password='true']"),
						ByXPath("//android.widget.EditText[@hint='Amazon password']"),
					},
				},
				{
					Identity: AuthLogin,
					Locators: []Locator{
						ByXPath("//android.webkit.WebView[@text='Amazon Sign-In']//android.widget.EditText[@hint='Email or phone number']"),
						ByXPath("//android.widget.EditText[@hint='Email or phone number']"),
					},
				},
			},
		},
		{
			// drawn over an open book, whose markers stay in the tree
			Name: "reader-overlay",
			Rules: []Rule{
				{
					Identity: LastReadPage,
					Locators: []Locator{
						ByXPath("//android.widget.TextView[@resource-id='android:id/message' and contains(@text, 'You are currently on page')]"),
						ByXPath("//android.widget.TextView[@resource-id='android:id/message' and contains(@text, 'You are currently at location')]"),
					},
				},
				{
					Identity: AboutBook,
					Locators: []Locator{
						ByXPath("//android.widget.FrameLayout[@resource-id='" + AppID("bottom_sheet_container") + "']//android.widget.FrameLayout[@clickable='true']"),
					},
				},
			},
		},
		{
			Name: "reader",
			Rules: []Rule{
				{
					Identity: BookOpen,
					Locators: []Locator{
						ByID(AppID("reader_drawer_layout")),
						ByID(AppID("reader_root_view")),
						ByID(AppID("reader_view")),
						ByID(AppID("reader_content_fragment_container")),
						ByID(AppID("reader_footer_page_number_text")),
					},
				},
			},
		},
		{
			Name: "signed-out",
			Rules: []Rule{
				{
					Identity: LibrarySignIn,
					Locators: []Locator{
						ByID(AppID("empty_library_sign_in")),
						ByID(AppID("empty_library_logged_out")),
						ByXPath("//android.widget.Button[@text='SIGN IN']"),
						ByContains("Sign in to access your Kindle Library"),
					},
				},
			},
		},
		{
			Name: "home",
			Rules: []Rule{
				{
					Identity: Home,
					Locators: []Locator{
						ByDesc("HOME, Tab selected"),
						ByXPath("//*[@resource-id='" + AppID("home_tab") + "']//*[@selected='true']"),
					},
				},
			},
		},
		{
			Name: "settings",
			Rules: []Rule{
				{
					Identity: Settings,
					Locators: []Locator{
						ByID(AppID("more_screenlet_root")),
						ByDesc("More, Tab selected"),
						ByID(AppID("sync_item_id")),
					},
				},
			},
		},
		{
			Name: "library",
			Rules: []Rule{
				{
					Identity: Library,
					Locators: []Locator{
						ByDesc("LIBRARY, Tab selected"),
						ByID(AppID("library_root_view")),
						ByID(AppID("library_recycler_container")),
					},
					Variants: []Variant{
						{SubState: Empty, Locators: []Locator{
							ByID(AppID("library_empty_view")),
							ByContains("empty here"),
						}},
						{SubState: Populated, Locators: []Locator{
							ByXPath("//*[@resource-id='" + AppID("recycler_view") + "']/*"),
						}},
					},
					Fallback: Empty,
				},
			},
		},
	}
}
