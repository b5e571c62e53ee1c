// Package ws streams instance lifecycle events over WebSocket.
//
// Each connection subscribes to the orchestrator's event bus and receives
// every status transition, recreate and delete as a JSON frame. A client
// may narrow the stream to one account with ?account= or a subscribe
// frame.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - subscribe: Watch one account, or all when account is empty
//
// Message Types (Server → Client):
//   - system: Connection established
//   - event: A lifecycle event
//   - pong: Reply to ping
//   - subscribed: Filter changed
//   - error: Unknown frame
//
// Example Usage:
//
//	handler := ws.NewHandler(orchestrator.Events(), metrics, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
