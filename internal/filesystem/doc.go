/*
Package filesystem provides resilient filesystem access for the static file
resolver, with automatic retry of NFS stale file handle errors.

# Purpose

The public directory is frequently a network mount. Opening or stat-ing a
file there can fail transiently with ESTALE when the server side changes.
This package retries exactly that error and nothing else.

# Usage

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())

[Dir] exposes the same behavior as an http.FileSystem rooted at a directory:

	public := filesystem.NewDir("./public", filesystem.DefaultRetryConfig())
	f, err := public.Open("/index.html")

# Retry Behavior

Backoff is exponential (github.com/cenkalti/backoff/v4) without jitter:
  - MaxRetries: 3
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors, including not-exist, fail immediately.

# Metrics

Register an [Observer] with SetObserver (the metrics package provides one)
to record operation durations and retry outcomes.
*/
package filesystem
