// Package automation is the entry point the transport layers call. It
// combines the request guard, the lifecycle orchestrator and the
// transition controller into four operations:
//
//   - ExecuteAction: serialise on the account's lane, make sure its
//     emulator is running, then observe, validate and act
//   - GetProfileStatus: read-only profile, instance and lane state
//   - ManageProfile: create, switch, delete or recreate a profile
//   - IdleSweep: pause instances idle past a timeout
//
// A DriverFault from the controller triggers a health probe. A healthy
// driver gets the whole action retried once; an unhealthy one leaves the
// instance Crashed and the fault surfaces with a recreate hint.
//
// The service never schedules sweeps itself; the server wiring owns the
// ticker.
package automation
