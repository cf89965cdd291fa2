// Package main provides the entry point for static-server.
//
// static-server serves the files under a public directory. Every request
// passes through a fixed pipeline: metrics, access logging, request body
// decoding, response compression, JS/CSS/JSON minification, signed cookie
// sessions, the static resolver and finally a not-found responder.
//
// # Application Lifecycle
//
//  1. Configuration: defaults, then static-server.yaml, then environment
//     variables, then command-line flags
//  2. Metrics: collectors are initialized and filesystem retries observed
//  3. Server setup: the public pipeline and, when METRICS_ENABLED, the
//     admin listener with /metrics and health endpoints
//  4. Graceful shutdown: SIGINT/SIGTERM drain both listeners within
//     SHUTDOWN_TIMEOUT
//
// # Usage
//
//	static-server --port 8080 --public-dir ./site
//	static-server version
package main
