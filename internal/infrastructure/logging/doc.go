// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Core components take a plain *zap.Logger and attach the fields
// account_id, view, action, instance_id and status as they go.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	log := logging.ForAccount(logger.Component("controller"), accountID)
//	log.Info("action completed", zap.String("view", v.String()))
package logging
