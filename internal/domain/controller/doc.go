/*
Package controller executes one action against one device.

Execute runs a fixed pipeline:

 1. snapshot and recognize, re-snapshotting while the screen is Unknown
 2. look the action up in the transition table; an illegal request fails
    with IllegalTransition before any tap, type, swipe or back
 3. run before hooks, the handler, then after hooks
 4. settle, re-recognize and compare the arrival against the accepted targets
 5. forward the arrived view and the auth state it implies to the
    ProfileUpdater

Landing outside the accepted targets is a soft failure: the result carries
Success=false and a Warning, and no error is returned. The controller never
writes profiles itself.
*/
package controller
