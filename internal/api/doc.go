// Package api serves the facility API over HTTP with chi.
//
// Each sub-domain is mounted as a route group under the configured base path
// and authenticates against the backend bound to it. Groups whose backend
// was not configured explicitly are registered but left out of the
// discovery document at /openapi.json unless missing routes are shown.
//
// Filesystem operations are available synchronously under
// /filesystem/<op>/{resource_id} and as tasks under
// /filesystem/async/<op>/{resource_id}; the latter answer 202 with the
// task id and the URI to poll. Root routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
package api
