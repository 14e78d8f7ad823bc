// Package server exposes the draft pool over HTTP.
//
// # Overview
//
// Server owns the backing store, the draft.Pool built on top of it, the
// optional JWT verifier, and the HTTP listener. The listener is either a
// plain TCP socket or a tsnet node on the tailnet, with Funnel when public
// access is configured.
//
// # HTTP API
//
//	GET    /health                     liveness probe, never authenticated
//	GET    /api/drafts?prefix=P        list persisted records
//	GET    /api/drafts/{key}           current value, null when absent
//	PUT    /api/drafts/{key}           update the value, persisted after the delay
//	POST   /api/drafts/{key}/flush     persist the pending value now
//	DELETE /api/drafts/{key}           drop the draft and its record (admin)
//	GET    /api/stats                  pool counters
//
// When auth.jwt_secret is set every /api route requires a bearer token.
// Each response carries an X-Request-ID header.
//
// # Shutdown
//
// Shutdown stops the HTTP server first, then closes the pool so every
// pending draft is written before the backing store is closed.
package server
