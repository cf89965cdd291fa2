package handlers

import (
	"time"

	"static-server/internal/filesystem"
	"static-server/internal/startup"
)

// Handlers serves the public directory and the admin endpoints.
type Handlers struct {
	root      filesystem.Dir
	retry     filesystem.RetryConfig
	startTime time.Time
}

// New creates handlers for the configured public directory.
func New(config *startup.Config) *Handlers {
	retry := filesystem.DefaultRetryConfig()
	return &Handlers{
		root:      filesystem.NewDir(config.PublicDir, retry),
		retry:     retry,
		startTime: time.Now(),
	}
}
