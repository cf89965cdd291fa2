package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
	"time"

	"static-server/internal/logging"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// policy builds the backoff schedule: doubling from InitialBackoff, capped at
// MaxBackoff, no jitter, at most MaxRetries retries.
func (c RetryConfig) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs fn until it succeeds, fails with anything but ESTALE, or
// the retry budget is spent.
func withRetry[T any](operation, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	attempts := 0
	var result T

	err := backoff.RetryNotify(func() error {
		v, err := fn()
		if err == nil {
			result = v
			return nil
		}
		if !isNFSStaleError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, config.policy(), func(err error, wait time.Duration) {
		attempts++
		if o := observe(); o != nil {
			o.ObserveRetryAttempt(operation)
		}
		logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
			operation, path, wait, attempts, config.MaxRetries)
	})

	if o := observe(); o != nil {
		var observed error
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			observed = err
		}
		o.ObserveOperation(operation, time.Since(start).Seconds(), observed)
	}

	switch {
	case err == nil && attempts > 0:
		logging.Info("NFS %s succeeded on retry %d for %s", operation, attempts, path)
		if o := observe(); o != nil {
			o.ObserveRetrySuccess(operation)
		}
	case err != nil && isNFSStaleError(err):
		logging.Warn("NFS %s failed after %d retries for %s: %v", operation, attempts, path, err)
		if o := observe(); o != nil {
			o.ObserveRetryFailure(operation)
		}
	}

	return result, err
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path string, config RetryConfig) (*os.File, error) {
	return withRetry("open", path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}
