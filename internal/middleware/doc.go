// Package middleware provides the request-pipeline stages of the static
// server that are not tied to the file system.
//
// It includes:
//   - Access logging with a timestamped one-line format and an exact-path skip list
//   - Request body decoding for JSON and urlencoded payloads
//   - Response compression (gzip, deflate) with an extension skip list
//   - JavaScript, CSS and JSON minification of response bodies
//   - Signed-cookie sessions
//   - Prometheus request metrics
//
// Most stages are plain func(http.Handler) http.Handler middleware. The
// body decoder reports failures as errors so the pipeline can hand them to
// its error stage.
package middleware
