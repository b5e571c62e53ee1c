// Package device declares the ports the core uses to reach devices: the
// automation Driver, the Connector that opens driver sessions, and the
// Emulator process controller. Adapters live under internal/providers.
package device
