// Package api provides the JSON HTTP boundary of docent.
//
// The middleware stack, outermost first:
//
//	Recovery → RequestID → Logging → CORS → RateLimit → Routes
//
// Health probes (/health, /ready) bypass the stack via a top-level
// mux so they stay fast and unthrottled.
//
// Endpoints:
//   - POST   /api/v1/chat                  — answer one message
//   - POST   /api/v1/ingest                — ingest a source directory
//   - GET    /api/v1/sessions/{id}/history — conversation snapshot
//   - DELETE /api/v1/sessions/{id}         — clear a session
//   - GET    /api/v1/stats                 — index and session counters
//
// The package carries no domain logic: it validates request shape,
// maps the core's sentinel errors to status codes, and renders JSON.
// Everything substantive lives in internal/agent, internal/ingest,
// and internal/knowledge.
package api
