/*
Package fault defines the typed failures that cross component boundaries.

Every error leaving the controller, orchestrator or guard is a *fault.Error so
the HTTP layer can choose status codes from the Kind alone.

# Kinds

	IllegalTransition    action not valid from the current view (client error)
	ViewUnrecognized     screen unclassifiable after bounded retries
	DriverFault          automation session errored or unresponsive
	EmulatorBootTimeout  device did not become ready in time
	InstanceCrashed      instance needs an explicit recreate
	ConcurrencyTimeout   caller gave up waiting for the account lane
	InvalidRequest       malformed input
	ProfileNotFound      no profile for the account
	NoCapacity           slot pool exhausted

# Usage

	err := fault.New(fault.KindIllegalTransition, "controller.execute",
		"%s not allowed from %s", action, current).
		WithAccount(accountID)

	if fault.Is(err, fault.KindDriverFault) {
		// recover
	}
*/
package fault
