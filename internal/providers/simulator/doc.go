// Package simulator is an in-process stand-in for emulators running the
// reading app. A Farm boots, snapshots and stops simulated devices and
// opens driver sessions on them. Each device renders its screens as
// uiautomator page sources using the app's real resource ids, so the
// recognizer and handlers run unchanged against it.
//
// Scripts decide where sign-in lands, which code passes 2FA and which
// books the library holds. Tests and local runs can also flip a device
// unhealthy, raise system dialogs, or force a screen.
package simulator
