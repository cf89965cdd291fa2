// Package server assembles the public request pipeline and the admin
// router, and runs both listeners until shutdown.
//
// The public pipeline runs, in order: metrics, access logging, body
// decoding, compression, minification, sessions, the static resolver and
// the not-found terminal. Failures anywhere are answered by
// handlers.ServerError.
//
// The admin listener, enabled with METRICS_ENABLED, exposes /metrics,
// /healthz, /livez, /readyz and /version.
package server
