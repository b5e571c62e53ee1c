/*
Package monitoring provides Prometheus metrics for the automation core.

Metrics live on a private registry so several servers (or tests) can run in
one process. The bundle tracks HTTP requests, action outcomes, recognitions,
illegal transitions, driver faults, instance status changes, slot use, boot
durations, guard waits and sweep results.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "appium", "tap")
	err := client.Tap(ctx, target)
	timer.StopErr(err)

All Record, Set and Inc methods accept a nil receiver.
*/
package monitoring
