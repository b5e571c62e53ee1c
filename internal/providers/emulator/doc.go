// Package emulator drives Android emulator processes and their quickboot
// snapshots through the SDK's emulator and adb tools.
//
// Each instance boots on its slot's console port, so its adb serial is
// emulator-<port>. Boot readiness is sys.boot_completed. Snapshots are
// saved and deleted under the name default_boot.
package emulator
