// Package main is the entry point for the readerfleet server.
//
// The server drives a fleet of Android emulators, one per reader account,
// and exposes account actions, profile management and idle sweeps over
// HTTP.
//
// Architecture:
//
//	HTTP client → readerfleet → Appium server → Android emulator (reader app)
//	                          → emulator / adb (boot, snapshot, stop)
//
// Configuration:
//   - Environment variables (12-factor)
//   - Optional YAML file via -config; set environment variables win
//   - CLI flags override both
//
// Usage:
//
//	# Production mode against a local Appium server
//	./server -config /etc/readerfleet.yaml
//
//	# Development mode with the in-process simulator
//	./server -dev -driver simulator
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown; running instances are
//     snapshotted and resumed on the next start
package main
