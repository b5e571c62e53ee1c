/*
Package handlers performs the device interactions behind each transition.

Handlers form a closed set keyed by statemachine.HandlerKind. The registry
is built once and passed to statemachine.New so every transition's handler
is checked at startup.

A handler receives an Env carrying the driver, the tree the current view
was recognized from, and the caller's params. Element lookups re-snapshot a
bounded number of times before escalating a DriverFault; multi-step handlers
settle between steps by polling until two consecutive trees share a
signature.

Handlers never decide whether the transition succeeded. The controller
re-recognizes the settled screen and compares it against the accepted
targets.
*/
package handlers
