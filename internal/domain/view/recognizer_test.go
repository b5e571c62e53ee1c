package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readerfleet/internal/domain/screen"
)

func page(body string) *screen.Tree {
	return screen.MustParse(`<hierarchy index="0" class="hierarchy" rotation="0" width="1080" height="2400">` +
		`<android.widget.FrameLayout bounds="[0,0][1080,2400]">` + body + `</android.widget.FrameLayout></hierarchy>`)
}

const (
	libraryPopulated = `<android.view.ViewGroup resource-id="com.amazon.kindle:id/library_root_view" bounds="[0,0][1080,2200]">` +
		`<androidx.recyclerview.widget.RecyclerView resource-id="com.amazon.kindle:id/recycler_view" bounds="[0,200][1080,2200]">` +
		`<android.widget.Button content-desc="Dune" bounds="[0,200][540,800]"/></androidx.recyclerview.widget.RecyclerView></android.view.ViewGroup>` +
		`<android.widget.LinearLayout content-desc="LIBRARY, Tab selected" selected="true" bounds="[0,2200][540,2400]"/>`
	libraryEmpty = `<android.view.ViewGroup resource-id="com.amazon.kindle:id/library_root_view" bounds="[0,0][1080,2200]">` +
		`<android.widget.TextView text="It's empty here" bounds="[100,900][980,1000]"/></android.view.ViewGroup>`
	captchaOverlay = `<android.webkit.WebView bounds="[0,0][1080,2400]">` +
		`<android.widget.Image text="captcha image" resource-id="auth-captcha-image" bounds="[100,400][980,800]"/></android.webkit.WebView>`
	permissionOverlay = `<android.widget.TextView resource-id="com.android.permissioncontroller:id/permission_message" text="Allow Kindle to send you notifications?" bounds="[60,800][1020,900]"/>`
	loginForm         = `<android.webkit.WebView text="Amazon Sign-In" bounds="[0,0][1080,2400]">` +
		`<android.widget.EditText hint="Email or phone number" bounds="[60,600][1020,700]"/></android.webkit.WebView>`
	readerPage = `<android.widget.FrameLayout resource-id="com.amazon.kindle:id/reader_root_view" bounds="[0,0][1080,2400]">` +
		`<android.widget.TextView resource-id="com.amazon.kindle:id/reader_footer_page_number_text" text="Page 4 of 320" bounds="[400,2300][680,2380]"/></android.widget.FrameLayout>`
	lastReadDialog = `<android.widget.FrameLayout bounds="[100,900][980,1500]">` +
		`<android.widget.TextView resource-id="android:id/message" text="You are currently on page 1. Go to page 57?" bounds="[140,940][940,1100]"/>` +
		`<android.widget.Button resource-id="android:id/button1" text="YES" bounds="[560,1200][940,1320]"/></android.widget.FrameLayout>`
	aboutBookSheet = `<android.widget.FrameLayout resource-id="com.amazon.kindle:id/bottom_sheet_container" bounds="[0,0][1080,2400]">` +
		`<android.widget.FrameLayout clickable="true" bounds="[0,0][1080,2400]"/>` +
		`<android.widget.LinearLayout bounds="[0,1500][1080,2400]"/></android.widget.FrameLayout>`
)

func TestRecognizeDefaultCatalog(t *testing.T) {
	r := MustRecognizer(DefaultCatalog())

	tests := []struct {
		name string
		body string
		want View
	}{
		{"populated library", libraryPopulated, With(Library, Populated)},
		{"empty library", libraryEmpty, With(Library, Empty)},
		{"captcha over library", libraryPopulated + captchaOverlay, Of(Captcha)},
		{"permission over library", libraryPopulated + permissionOverlay, Of(NotificationPermission)},
		{"login form", loginForm, Of(AuthLogin)},
		{"reader", readerPage, Of(BookOpen)},
		{"last read dialog over reader", readerPage + lastReadDialog, Of(LastReadPage)},
		{"about book sheet over reader", readerPage + aboutBookSheet, Of(AboutBook)},
		{"nothing known", `<android.widget.TextView text="Loading" bounds="[0,0][10,10]"/>`, Of(Unknown)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Recognize(page(tt.body))
			assert.Equal(t, tt.want, res.View)
			if !tt.want.IsUnknown() {
				assert.NotNil(t, res.Element)
				assert.NotEmpty(t, res.Tier)
			}
		})
	}
}

func TestRecognizeNilTree(t *testing.T) {
	r := MustRecognizer(DefaultCatalog())
	res := r.Recognize(nil)
	assert.True(t, res.View.IsUnknown())
	assert.Nil(t, res.Element)
}

func TestRecognizeIsPure(t *testing.T) {
	r := MustRecognizer(DefaultCatalog())
	tree := page(libraryPopulated + captchaOverlay)

	first := r.Recognize(tree)
	second := r.Recognize(tree)
	assert.Equal(t, first.View, second.View)
	assert.Equal(t, first.Locator, second.Locator)
}

func TestRecognizeReportsAmbiguity(t *testing.T) {
	catalog := Catalog{{
		Name: "same",
		Rules: []Rule{
			{Identity: Home, Locators: []Locator{ByText("A")}},
			{Identity: Settings, Locators: []Locator{ByText("B")}},
		},
	}}
	r := MustRecognizer(catalog)

	res := r.Recognize(page(`<android.widget.TextView text="A" bounds="[0,0][1,1]"/><android.widget.TextView text="B" bounds="[0,0][1,1]"/>`))
	assert.Equal(t, Of(Home), res.View)
	assert.Equal(t, []Identity{Settings}, res.Ambiguous)
}

func TestNewRecognizerValidation(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
	}{
		{"empty", Catalog{}},
		{
			"identity in two tiers",
			Catalog{
				{Name: "a", Rules: []Rule{{Identity: Library, Locators: []Locator{ByID("x")}}}},
				{Name: "b", Rules: []Rule{{Identity: Library, Locators: []Locator{ByID("y")}}}},
			},
		},
		{
			"shared locator",
			Catalog{{Name: "a", Rules: []Rule{
				{Identity: Library, Locators: []Locator{ByID("x")}},
				{Identity: Home, Locators: []Locator{ByID("x")}},
			}}},
		},
		{
			"unknown identity",
			Catalog{{Name: "a", Rules: []Rule{{Identity: Unknown, Locators: []Locator{ByID("x")}}}}},
		},
		{
			"no locators",
			Catalog{{Name: "a", Rules: []Rule{{Identity: Home}}}},
		},
		{
			"bad xpath",
			Catalog{{Name: "a", Rules: []Rule{{Identity: Home, Locators: []Locator{ByXPath("//*[@text='")}}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecognizer(tt.catalog)
			assert.Error(t, err)
		})
	}
}

func TestDefaultCatalogCoversEveryIdentity(t *testing.T) {
	r, err := NewRecognizer(DefaultCatalog())
	require.NoError(t, err)
	assert.ElementsMatch(t, Identities(), r.Identities())
}

func TestLocatorPredicates(t *testing.T) {
	tree := page(libraryPopulated)

	_, ok := ByDesc("LIBRARY, Tab selected").Where(Selected()).Match(tree)
	assert.True(t, ok)

	_, ok = ByXPath("//android.widget.Button").Where(AtLeast(2)).Match(tree)
	assert.False(t, ok)

	_, ok = ByClass("android.widget.Button").Where(TextEquals("")).Match(tree)
	assert.True(t, ok)
}

func TestLocatorQuoting(t *testing.T) {
	tree := page(`<android.widget.TextView text="It's empty here" bounds="[0,0][1,1]"/>`)
	_, ok := ByText("It's empty here").Match(tree)
	assert.True(t, ok)
}

func TestSelector(t *testing.T) {
	using, value := ByID("com.amazon.kindle:id/x").Selector()
	assert.Equal(t, "id", using)
	assert.Equal(t, "com.amazon.kindle:id/x", value)

	using, _ = ByContains("Dune").Selector()
	assert.Equal(t, "xpath", using)
}

func TestViewParsing(t *testing.T) {
	v, err := ParseView("library/populated")
	require.NoError(t, err)
	assert.Equal(t, With(Library, Populated), v)
	assert.True(t, v.Matches(Of(Library)))
	assert.False(t, Of(Library).Matches(With(Library, Populated)))

	_, err = ParseView("lobby")
	assert.Error(t, err)

	text, err := v.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "library/populated", string(text))
}
