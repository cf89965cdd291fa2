// Package handlers provides the terminal stages of the request pipeline and
// the admin endpoints.
//
// Pipeline stages:
//   - Static: serves the public directory with long-lived caching headers
//   - NotFound: 404 for anything no earlier stage answered
//   - ServerError: the error stage, 500 with the failure logged
//
// Admin endpoints:
//   - Health, liveness and readiness probes
//   - Version and build information
//   - Prometheus metrics
package handlers
