/*
Package lifecycle owns account profiles and the emulator instances that
serve them.

Instances move along a fixed graph:

	Absent ──► Booting ──► Running ──► Snapshotting ──► Stopped
	   ▲          │           │                           │
	   │          └─(abort)───┼──────► back to prior      │
	   │                      ▼                           │
	   └──────────────── Crashed          Stopped ──► Booting

A fixed pool of slots (display plus emulator, adb, appium, system,
chromedriver and VNC ports) bounds how many instances boot or run at once.
Slots are taken on entry to Booting and returned on arrival at Stopped or
Absent, inside the same critical section as the status change.

Each account has its own operation lock, so one account's three-minute boot
never blocks another account's status read or pause. Maintenance work
(idle sweeps and evictions) only runs through Lanes.TryRun, so it never
interrupts a user request.
*/
package lifecycle
