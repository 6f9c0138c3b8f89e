// Package api implements the HTTP REST API and WebSocket server for Nodo Core.
//
// This package provides:
//   - REST endpoints for the device snapshot, command dispatch, and removal
//   - WebSocket hub for real-time device update broadcasts
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between LAN user interfaces (wall panels, mobile
// apps) and the hub controller. Every read is a copy handed out by the
// hub loop; every write goes through the loop's dispatch path. The API
// never touches registry or dispatcher internals.
//
// # Security
//
// The API is LAN-local and unauthenticated. Remote access is the cloud
// gateway's concern and is authenticated on that link, not here.
//
// # Graceful Degradation
//
// The server operates as long as the hub loop runs. Slow WebSocket
// clients are skipped, never waited on.
package api
