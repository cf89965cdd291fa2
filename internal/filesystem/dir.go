package filesystem

import (
	"errors"
	"net/http"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned by Dir.Open for names that cannot name a file
// below the root.
var ErrInvalidPath = errors.New("filesystem: invalid character in file path")

// Dir is an http.FileSystem rooted at a directory whose opens retry NFS
// stale file handles. Like http.Dir it never resolves outside its root.
type Dir struct {
	root  string
	retry RetryConfig
}

// NewDir returns a Dir rooted at root.
func NewDir(root string, config RetryConfig) Dir {
	return Dir{root: root, retry: config}
}

// Root returns the directory the Dir serves from.
func (d Dir) Root() string {
	return d.root
}

// Open implements http.FileSystem.
func (d Dir) Open(name string) (http.File, error) {
	full, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := OpenWithRetry(full, d.retry)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d Dir) resolve(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}
	if filepath.Separator != '/' && strings.ContainsRune(name, filepath.Separator) {
		return "", ErrInvalidPath
	}
	root := d.root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, filepath.FromSlash(path.Clean("/"+name))), nil
}
