// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is loaded once via [LoadConfig] from, in increasing order of
// precedence: built-in defaults, an optional static-server.yaml (current
// directory or /etc/static-server/, or the file given with --config),
// environment variables and command-line flags. Every key maps onto the
// upper-cased environment variable of the same name:
//
//   - PORT: public HTTP port (default: 5000)
//   - PUBLIC_DIR: directory served as static assets (default: ./public)
//   - SESSION_SECRET: session cookie signing secret (default: a development value)
//   - SESSION_SECURE: mark the session cookie Secure (default: false)
//   - TRUST_PROXY: take client addresses from X-Forwarded-For (default: false)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - DEBUG: shorthand for LOG_LEVEL=debug
//   - LOG_SKIP_PATHS: comma-separated paths never access-logged (default: /myip)
//   - COMPRESS_SKIP_EXTENSIONS: comma-separated extensions never compressed (default: .jpg,.png)
//   - COMPRESS_MIN_SIZE: smallest response compressed, in bytes (default: 1024)
//   - BODY_LIMIT: largest accepted request body, in bytes (default: 102400)
//   - MINIFY_CACHE: cache minified output (default: false)
//   - MINIFY_CACHE_TTL: lifetime of cached minified output (default: 10m)
//   - METRICS_ENABLED: run the admin server (default: true)
//   - METRICS_PORT: admin server port (default: 9090)
//   - SHUTDOWN_TIMEOUT: graceful shutdown limit (default: 30s)
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [LogPipeline]: stage order of the public listener
//   - [LogHTTPRoutes]: admin routes (listed at debug level)
//   - [LogServerStarted]: endpoints, startup duration and the listening line
//   - [LogShutdownInitiated], [LogShutdownComplete]: graceful shutdown
package startup
