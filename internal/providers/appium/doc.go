// Package appium adapts an Appium UiAutomator2 server to device.Driver.
//
// Each instance slot has its own server port. The client speaks W3C
// WebDriver over resty with a retryablehttp transport and a per-server
// circuit breaker. Reads (page source, screenshots, status) are retried
// on transient failures. Gestures are never retried, so a tap cannot
// land twice.
//
// Lost sessions and crashed instrumentation surface as
// device.ErrDisconnected; locator misses as device.ErrElementNotFound.
package appium
