/*
Package resilience provides a circuit breaker.

The automation core keeps one breaker per emulator instance for health
probes and one per Appium endpoint for HTTP calls. A tripped instance
breaker is how the orchestrator decides an instance has crashed.

	breaker := resilience.New("inst_01H...", resilience.Settings{
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
		OnStateChange: func(name string, from, to resilience.State) {
			if to == resilience.StateOpen {
				markCrashed(name)
			}
		},
	})

	err := breaker.Do(func() error { return driver.Health(ctx) })

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           v
	                                         Open

Trip and Reset force the state from outside, for example when an instance
is recreated.
*/
package resilience
