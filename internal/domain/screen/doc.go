/*
Package screen models a UI hierarchy snapshot taken from the device.

A Tree is parsed once from the XML the driver returns (Appium page source or
a raw uiautomator dump) and is read-only afterwards, so recognizers and
handlers can share it freely. Queries use compiled XPath expressions.

	tree, err := screen.Parse(source)
	buttons := tree.Query(xpath.MustCompile("//android.widget.Button"))
	center, ok := buttons[0].Center()
*/
package screen
