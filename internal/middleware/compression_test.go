package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

func TestDefaultCompressionConfig(t *testing.T) {
	config := DefaultCompressionConfig()

	if config.MinSize != 1024 {
		t.Errorf("Expected MinSize to be 1024, got %d", config.MinSize)
	}

	if config.Level != gzip.DefaultCompression {
		t.Errorf("Expected Level to be DefaultCompression (%d), got %d", gzip.DefaultCompression, config.Level)
	}

	expectedTypes := []string{"text/html", "text/css", "text/javascript", "application/json", "application/javascript"}
	for _, expected := range expectedTypes {
		if !compressibleContentType(expected, config.CompressibleTypes) {
			t.Errorf("Expected %s to be compressible", expected)
		}
	}

	if len(config.SkipExtensions) != 2 || config.SkipExtensions[0] != ".jpg" || config.SkipExtensions[1] != ".png" {
		t.Errorf("Expected SkipExtensions [.jpg .png], got %v", config.SkipExtensions)
	}
}

func TestNegotiateEncoding(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{"", ""},
		{"gzip", encodingGzip},
		{"deflate", encodingDeflate},
		{"gzip, deflate", encodingGzip},
		{"deflate, gzip", encodingGzip},
		{"gzip;q=0.5, deflate", encodingDeflate},
		{"GZIP", encodingGzip},
		{"gzip;q=0", ""},
		{"gzip;q=0, deflate;q=0", ""},
		{"*", encodingGzip},
		{"*;q=0.1, gzip;q=0", encodingDeflate},
		{"identity", ""},
		{"br", ""},
		{"br, deflate;q=0.8", encodingDeflate},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := negotiateEncoding(tt.header); got != tt.expected {
				t.Errorf("negotiateEncoding(%q) = %q, want %q", tt.header, got, tt.expected)
			}
		})
	}
}

func TestCompressibleContentType(t *testing.T) {
	types := DefaultCompressionConfig().CompressibleTypes
	tests := []struct {
		contentType string
		expected    bool
	}{
		{"text/html; charset=utf-8", true},
		{"TEXT/CSS", true},
		{"text/markdown", true},
		{"application/ld+json", true},
		{"image/svg+xml", true},
		{"image/png", false},
		{"image/jpeg", false},
		{"application/octet-stream", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := compressibleContentType(tt.contentType, types); got != tt.expected {
			t.Errorf("compressibleContentType(%q) = %v, want %v", tt.contentType, got, tt.expected)
		}
	}
}

func TestHasSkippedExtension(t *testing.T) {
	exts := []string{".jpg", ".png"}
	tests := []struct {
		path     string
		expected bool
	}{
		{"/photo.jpg", true},
		{"/img/logo.png", true},
		{"/img/LOGO.PNG", true},
		{"/index.html", false},
		{"/jpg", false},
		{"/photo.jpeg", false},
	}

	for _, tt := range tests {
		if got := hasSkippedExtension(tt.path, exts); got != tt.expected {
			t.Errorf("hasSkippedExtension(%q) = %v, want %v", tt.path, got, tt.expected)
		}
	}
}

func serveCompressed(t *testing.T, method, path, acceptEncoding, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Content-Length", "999999")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))

	req := httptest.NewRequest(method, path, http.NoBody)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCompressionMiddleware(t *testing.T) {
	large := bytes.Repeat([]byte("<p>static server</p>\n"), 500)

	tests := []struct {
		name             string
		method           string
		path             string
		acceptEncoding   string
		contentType      string
		body             []byte
		expectedEncoding string
	}{
		{"Gzips large html", http.MethodGet, "/index.html", "gzip, deflate", "text/html; charset=utf-8", large, "gzip"},
		{"Deflates when only deflate accepted", http.MethodGet, "/index.html", "deflate", "text/html", large, "deflate"},
		{"No encoding without Accept-Encoding", http.MethodGet, "/index.html", "", "text/html", large, ""},
		{"Small body not compressed", http.MethodGet, "/small.html", "gzip", "text/html", []byte("<p>hi</p>"), ""},
		{"Binary type not compressed", http.MethodGet, "/blob", "gzip", "application/octet-stream", large, ""},
		{"Missing content type not compressed", http.MethodGet, "/blob", "gzip", "", large, ""},
		{"png path never compressed", http.MethodGet, "/logo.png", "gzip", "text/plain", large, ""},
		{"jpg path never compressed", http.MethodGet, "/photo.jpg", "gzip", "text/html", large, ""},
		{"Extension match is case-insensitive", http.MethodGet, "/photo.JPG", "gzip", "text/html", large, ""},
		{"HEAD not compressed", http.MethodHead, "/index.html", "gzip", "text/html", large, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveCompressed(t, tt.method, tt.path, tt.acceptEncoding, tt.contentType, tt.body)
			res := rec.Result()

			if got := res.Header.Get("Content-Encoding"); got != tt.expectedEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.expectedEncoding)
			}

			if tt.expectedEncoding == "" {
				if tt.method != http.MethodHead && !bytes.Equal(rec.Body.Bytes(), tt.body) {
					t.Error("Uncompressed body was modified")
				}
				return
			}

			if res.Header.Get("Content-Length") != "" {
				t.Error("Content-Length must be removed from compressed responses")
			}
			if res.Header.Get("Vary") != "Accept-Encoding" {
				t.Errorf("Vary = %q, want Accept-Encoding", res.Header.Get("Vary"))
			}

			var reader io.ReadCloser
			var err error
			if tt.expectedEncoding == "gzip" {
				reader, err = gzip.NewReader(rec.Body)
			} else {
				reader, err = zlib.NewReader(rec.Body)
			}
			if err != nil {
				t.Fatalf("Failed to open %s stream: %v", tt.expectedEncoding, err)
			}
			defer reader.Close()

			decoded, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("Failed to decompress: %v", err)
			}
			if !bytes.Equal(decoded, tt.body) {
				t.Error("Decompressed body does not match original")
			}
		})
	}
}

func TestCompressionVaryWithoutAcceptEncoding(t *testing.T) {
	large := bytes.Repeat([]byte("a"), 4096)
	rec := serveCompressed(t, http.MethodGet, "/app.css", "", "text/css", large)

	if rec.Header().Get("Vary") != "Accept-Encoding" {
		t.Errorf("Compressible response should vary on Accept-Encoding, got %q", rec.Header().Get("Vary"))
	}
}

func TestCompressionRespectsExistingEncodingAndNoTransform(t *testing.T) {
	large := bytes.Repeat([]byte("x"), 4096)

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"already encoded", "Content-Encoding", "br"},
		{"no-transform", "Cache-Control", "public, no-transform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.Header().Set(tt.header, tt.value)
				w.Write(large)
			}))

			req := httptest.NewRequest(http.MethodGet, "/file.txt", http.NoBody)
			req.Header.Set("Accept-Encoding", "gzip")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if enc := rec.Header().Get("Content-Encoding"); enc == "gzip" {
				t.Error("Response must not be gzip-compressed")
			}
			if !bytes.Equal(rec.Body.Bytes(), large) {
				t.Error("Body was modified")
			}
		})
	}
}

func TestCompressionWithMultipleWrites(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		for i := 0; i < 100; i++ {
			w.Write([]byte(`{"key":"value","number":12345},`))
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/data.json", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatal("Expected gzip encoding")
	}

	gr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("Failed to create gzip reader: %v", err)
	}
	defer gr.Close()

	decoded, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("Failed to decompress: %v", err)
	}
	if strings.Count(string(decoded), `"number":12345`) != 100 {
		t.Error("Decompressed body lost writes")
	}
}

func TestCompressionNoContent(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("204 responses must not be encoded")
	}
	if rec.Body.Len() != 0 {
		t.Error("204 response must not have a body")
	}
}

func TestCompressResponseWriterBuffering(t *testing.T) {
	config := DefaultCompressionConfig()
	rec := httptest.NewRecorder()
	cw := newCompressResponseWriter(rec, config, newCompressorPools(config.Level), encodingGzip)
	cw.Header().Set("Content-Type", "text/html")

	cw.Write([]byte("small"))
	if cw.headerWritten {
		t.Error("Headers must not be written while below MinSize")
	}

	cw.Write(bytes.Repeat([]byte("x"), config.MinSize))
	if !cw.headerWritten || !cw.shouldCompress {
		t.Error("Crossing MinSize should start compression")
	}

	if err := cw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
