// Package internal documents the AMS calendar server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: scheduling rules, availability, calendar, users, and regions
// - storage: Postgres repositories and migrations
// - jobs: River workers for notification email and session cleanup
// - auth, audit, config, email, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
