package handlers

import (
	"errors"
	"fmt"
	"html"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"syscall"

	"static-server/internal/filesystem"
	"static-server/internal/metrics"

	pkgerrors "github.com/pkg/errors"
)

// StaticMaxAge is the Cache-Control max-age of every served file: one year.
const StaticMaxAge = 31557600

const indexFile = "index.html"

var staticCacheControl = "public, max-age=" + strconv.Itoa(StaticMaxAge)

// Static serves files from the public directory. Requests that do not name
// a servable file are passed to next. I/O failures other than a missing
// file are returned.
func (h *Handlers) Static(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		next.ServeHTTP(w, r)
		return nil
	}

	name := path.Clean("/" + r.URL.Path)
	if hasDotSegment(name) {
		next.ServeHTTP(w, r)
		return nil
	}

	f, err := h.root.Open(name)
	if err != nil {
		if isNotFound(err) {
			next.ServeHTTP(w, r)
			return nil
		}
		return pkgerrors.Wrapf(err, "open %s", name)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return pkgerrors.Wrapf(err, "stat %s", name)
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			redirectToSlash(w, r, name)
			return nil
		}

		indexName := path.Join(name, indexFile)
		index, err := h.root.Open(indexName)
		if err != nil {
			if isNotFound(err) {
				next.ServeHTTP(w, r)
				return nil
			}
			return pkgerrors.Wrapf(err, "open %s", indexName)
		}
		defer index.Close()

		info, err = index.Stat()
		if err != nil {
			return pkgerrors.Wrapf(err, "stat %s", indexName)
		}
		if info.IsDir() {
			next.ServeHTTP(w, r)
			return nil
		}
		f = index
	}

	header := w.Header()
	header.Set("Cache-Control", staticCacheControl)
	header.Set("ETag", weakETag(info))
	header.Set("Accept-Ranges", "bytes")

	metrics.StaticFilesServed.Inc()
	if r.Method == http.MethodGet {
		metrics.StaticBytesServed.Add(float64(info.Size()))
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	return nil
}

// weakETag builds W/"<size hex>-<mtime ms hex>".
func weakETag(info fs.FileInfo) string {
	return fmt.Sprintf(`W/"%x-%x"`, info.Size(), info.ModTime().UnixMilli())
}

// hasDotSegment reports whether any segment of a cleaned path is a dotfile.
func hasDotSegment(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, filesystem.ErrInvalidPath)
}

// redirectToSlash sends a 301 to the slash form of the cleaned path. A
// request for //host therefore never yields a protocol-relative Location.
func redirectToSlash(w http.ResponseWriter, r *http.Request, name string) {
	target := (&url.URL{Path: strings.TrimSuffix(name, "/") + "/", RawQuery: r.URL.RawQuery}).String()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusMovedPermanently)
	if r.Method != http.MethodHead {
		fmt.Fprintf(w, "Redirecting to %s\n", html.EscapeString(target))
	}
}
