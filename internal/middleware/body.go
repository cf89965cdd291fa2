package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"static-server/internal/metrics"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// BodyConfig holds configuration for the body decoder
type BodyConfig struct {
	// Limit is the maximum body size in bytes, after decompression.
	Limit int64
	// ParameterLimit caps the number of urlencoded fields.
	ParameterLimit int
}

// DefaultBodyConfig returns a 100KiB limit and at most 1000 form fields.
func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		Limit:          100 << 10,
		ParameterLimit: 1000,
	}
}

// Body error types, in the spirit of the status each one maps to.
const (
	BodyParseFailed         = "entity.parse.failed"
	BodyTooLarge            = "entity.too.large"
	BodyTooManyParameters   = "parameters.too.many"
	BodyCharsetUnsupported  = "charset.unsupported"
	BodyEncodingUnsupported = "encoding.unsupported"
	BodyReadFailed          = "request.aborted"
)

// BodyError is returned by the body decoder for bodies it cannot accept.
type BodyError struct {
	Type   string
	Status int
	Err    error
}

func (e *BodyError) Error() string {
	if e.Err == nil {
		return e.Type
	}
	return e.Type + ": " + e.Err.Error()
}

func (e *BodyError) Unwrap() error {
	return e.Err
}

func bodyError(typ string, status int, err error) error {
	// WithStack records where decoding failed for the error responder's log.
	return errors.WithStack(&BodyError{Type: typ, Status: status, Err: err})
}

type bodyKey struct{}

// DecodedBody returns the payload attached by the body decoder: a
// map[string]any or []any for JSON, a map[string]any of string or []string
// for urlencoded forms.
func DecodedBody(r *http.Request) (any, bool) {
	v, ok := r.Context().Value(bodyKey{}).(decoded)
	if !ok {
		return nil, false
	}
	return v.value, true
}

type decoded struct{ value any }

const (
	formatJSON       = "json"
	formatURLEncoded = "urlencoded"
)

func bodyFormat(mediaType string) string {
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return formatJSON
	case mediaType == "application/x-www-form-urlencoded":
		return formatURLEncoded
	}
	return ""
}

func hasBody(r *http.Request) bool {
	return r.Body != nil && r.Body != http.NoBody &&
		(r.ContentLength > 0 || len(r.TransferEncoding) > 0)
}

// BodyDecoder returns a stage that decodes JSON and urlencoded request
// bodies and attaches the payload to the request context. Bodies it cannot
// decode fail the request with a *BodyError.
func BodyDecoder(config BodyConfig) func(http.ResponseWriter, *http.Request, http.Handler) error {
	return func(w http.ResponseWriter, r *http.Request, next http.Handler) error {
		if !hasBody(r) {
			next.ServeHTTP(w, r)
			return nil
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			next.ServeHTTP(w, r)
			return nil
		}
		format := bodyFormat(mediaType)
		if format == "" {
			next.ServeHTTP(w, r)
			return nil
		}

		value, raw, err := decodeBody(r, format, params["charset"], config)
		if err != nil {
			metrics.BodyDecodeTotal.WithLabelValues(format, "error").Inc()
			return err
		}
		metrics.BodyDecodeTotal.WithLabelValues(format, "success").Inc()

		r = r.WithContext(context.WithValue(r.Context(), bodyKey{}, decoded{value: value}))
		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r)
		return nil
	}
}

func decodeBody(r *http.Request, format, charset string, config BodyConfig) (any, []byte, error) {
	charset = strings.ToLower(charset)
	switch format {
	case formatJSON:
		if charset != "" && !strings.HasPrefix(charset, "utf-") {
			return nil, nil, bodyError(BodyCharsetUnsupported, http.StatusUnsupportedMediaType,
				fmt.Errorf("unsupported charset %q", charset))
		}
	case formatURLEncoded:
		if charset != "" && charset != "utf-8" {
			return nil, nil, bodyError(BodyCharsetUnsupported, http.StatusUnsupportedMediaType,
				fmt.Errorf("unsupported charset %q", charset))
		}
	}

	if config.Limit > 0 && r.ContentLength > config.Limit {
		return nil, nil, bodyError(BodyTooLarge, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body of %d bytes exceeds limit of %d", r.ContentLength, config.Limit))
	}

	raw, err := readBody(r, config.Limit)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case formatJSON:
		v, err := parseJSON(raw)
		return v, raw, err
	default:
		v, err := parseURLEncoded(raw, config.ParameterLimit)
		return v, raw, err
	}
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	var src io.Reader = r.Body
	defer r.Body.Close()

	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, bodyError(BodyParseFailed, http.StatusBadRequest, err)
		}
		defer gz.Close()
		src = gz
	case "deflate":
		zr, err := zlib.NewReader(r.Body)
		if err != nil {
			return nil, bodyError(BodyParseFailed, http.StatusBadRequest, err)
		}
		defer zr.Close()
		src = zr
	default:
		return nil, bodyError(BodyEncodingUnsupported, http.StatusUnsupportedMediaType,
			fmt.Errorf("unsupported content encoding %q", enc))
	}

	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, bodyError(BodyReadFailed, http.StatusBadRequest, err)
	}
	if limit > 0 && int64(len(raw)) > limit {
		return nil, bodyError(BodyTooLarge, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body exceeds limit of %d bytes", limit))
	}
	return raw, nil
}

// parseJSON accepts only objects and arrays. An empty body is an empty object.
func parseJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, bodyError(BodyParseFailed, http.StatusBadRequest,
			fmt.Errorf("unexpected token %q at start of JSON body", trimmed[0]))
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, bodyError(BodyParseFailed, http.StatusBadRequest, err)
	}
	return v, nil
}

// parseURLEncoded decodes a form. Repeated keys become []string. Pairs are
// split on '&' only, so ';' stays part of a value, and malformed escapes
// are kept as literal text.
func parseURLEncoded(raw []byte, parameterLimit int) (any, error) {
	body := string(raw)
	if parameterLimit > 0 && strings.Count(body, "&")+1 > parameterLimit {
		return nil, bodyError(BodyTooManyParameters, http.StatusRequestEntityTooLarge,
			fmt.Errorf("more than %d parameters", parameterLimit))
	}

	out := make(map[string]any)
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, value = unescapeForm(key), unescapeForm(value)

		switch prev := out[key].(type) {
		case nil:
			out[key] = value
		case string:
			out[key] = []string{prev, value}
		case []string:
			out[key] = append(prev, value)
		}
	}
	return out, nil
}

// unescapeForm decodes '+' and %XX sequences. A '%' not followed by two hex
// digits is kept as is.
func unescapeForm(s string) string {
	s = strings.ReplaceAll(s, "+", " ")
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
