// Package workflow delivers detected workflow actions to external
// ticketing and notification systems with provider-specific payload
// shaping, retry with backoff, and idempotent replay of completed results.
package workflow
